package analyzer

// inventoryScript runs in the page and returns the raw inventory object. It
// must stay a pure expression (IIFE) so Runtime.evaluate can serialize the
// return value directly.
const inventoryScript = `
(() => {
  const cssEscape = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s.replace(/[^a-zA-Z0-9_-]/g, '\\$&');

  const selectorFor = (el) => {
    if (el.id) return '#' + cssEscape(el.id);
    const testId = el.getAttribute('data-testid');
    if (testId) return el.tagName.toLowerCase() + '[data-testid="' + testId + '"]';
    const name = el.getAttribute('name');
    if (name) return el.tagName.toLowerCase() + '[name="' + name + '"]';
    return el.tagName.toLowerCase();
  };

  const isVisible = (el) => {
    const style = window.getComputedStyle(el);
    if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
    const rect = el.getBoundingClientRect();
    return rect.width > 0 && rect.height > 0;
  };

  const describe = (el) => {
    const rect = el.getBoundingClientRect();
    const attrs = {};
    for (const key of ['id', 'name', 'aria-label', 'role', 'href', 'data-testid', 'value', 'title']) {
      const v = el.getAttribute(key);
      if (v !== null && v !== '') attrs[key] = v;
    }
    return {
      selector: selectorFor(el),
      tag: el.tagName.toLowerCase(),
      type: el.getAttribute('type') || '',
      text: (el.innerText || el.value || '').trim().slice(0, 200),
      placeholder: el.getAttribute('placeholder') || '',
      attributes: attrs,
      box: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
      visible: isVisible(el),
      enabled: !el.disabled
    };
  };

  const all = (sel, root) => Array.from((root || document).querySelectorAll(sel));

  const inputs = all('input:not([type=hidden]):not([type=submit]):not([type=button]), textarea').map(describe);
  const buttons = all('button, input[type=submit], input[type=button], [role=button]').map(describe);
  const links = all('a[href]').filter(isVisible).slice(0, 150).map(describe);
  const nav = all('nav a, header a, [role=navigation] a').filter(isVisible).slice(0, 80).map(describe);
  const selects = all('select').map(describe);

  const forms = all('form').slice(0, 25).map((form) => {
    const submitEl = form.querySelector('button[type=submit], input[type=submit], button:not([type])');
    return {
      selector: selectorFor(form),
      inputs: all('input:not([type=hidden]), textarea, select', form).map(describe),
      submit: submitEl ? describe(submitEl) : null
    };
  });

  return {
    url: window.location.href,
    title: document.title,
    inputs, buttons, links, nav, selects, forms
  };
})()
`
