package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/voxpilot/voxpilot/api/schemas"
)

// Search and click are best-effort multi-strategy searches: each strategy
// either succeeds, or reports not-applicable/failed and the next one runs.
// The chains are ordered slices so individual strategies stay testable.

// fixedSearchSelectors are tried when the analyzer produces no usable
// candidate. Ordered from strongest convention to weakest.
var fixedSearchSelectors = []string{
	`input[type="search"]`,
	`input[name="q"]`,
	`input[name="query"]`,
	`input[name="search"]`,
	`#search`,
	`input[placeholder*="earch"]`,
}

func (e *Engine) handleSearch(ctx context.Context, in schemas.Intent, res *schemas.StepResult) error {
	query := in.StringArg("query", "")
	if query == "" {
		return fmt.Errorf("search requires args.query")
	}

	candidates := make([]string, 0, 1+len(fixedSearchSelectors))
	analysis, err := e.analysis(ctx)
	if err != nil {
		// Analysis failure degrades search to the fixed candidates rather
		// than failing the step outright.
		e.logger.Debug("Page analysis unavailable for search.", zap.Error(err))
	} else {
		res.Analysis = analysis
		if best := analysis.BestSearchElement(); best != nil {
			candidates = append(candidates, best.Selector)
		}
	}
	candidates = append(candidates, fixedSearchSelectors...)

	var filled string
	for _, selector := range candidates {
		if err := e.page.Fill(ctx, selector, query); err == nil {
			filled = selector
			break
		}
	}
	if filled == "" {
		return fmt.Errorf("no interactable search input found (tried %d candidates)", len(candidates))
	}

	if err := e.submitSearch(ctx, filled); err != nil {
		return err
	}
	// A submitted search is a navigation boundary.
	e.state.BumpGeneration()
	return nil
}

// submitSearch walks the submit cascade: Enter keypress, a submit button,
// form submission, and finally a synthetic keydown for pages that hijack
// key events.
func (e *Engine) submitSearch(ctx context.Context, selector string) error {
	strategies := []struct {
		name string
		run  func() error
	}{
		{"enter", func() error { return e.page.Press(ctx, selector, "Enter") }},
		{"submit-button", func() error {
			return e.page.Click(ctx, `button[type="submit"], input[type="submit"]`)
		}},
		{"form-submit", func() error { return e.page.Submit(ctx, selector) }},
		{"keydown-dispatch", func() error {
			script := fmt.Sprintf(`
				(() => {
					const el = document.querySelector(%q);
					if (!el) return false;
					const ev = new KeyboardEvent('keydown', {key: 'Enter', code: 'Enter', keyCode: 13, bubbles: true});
					return el.dispatchEvent(ev);
				})()
			`, selector)
			var dispatched bool
			if err := e.page.Evaluate(ctx, script, &dispatched); err != nil {
				return err
			}
			if !dispatched {
				return fmt.Errorf("keydown dispatch found no element for %q", selector)
			}
			return nil
		}},
	}

	var lastErr error
	for _, s := range strategies {
		if err := s.run(); err != nil {
			e.logger.Debug("Submit strategy failed, trying next.",
				zap.String("strategy", s.name), zap.Error(err))
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("all submit strategies exhausted: %w", lastErr)
}

func (e *Engine) handleClick(ctx context.Context, in schemas.Intent, _ *schemas.StepResult) error {
	if in.Target == nil || in.Target.Empty() {
		return fmt.Errorf("click requires a target (selector, text, or role+name)")
	}
	t := in.Target

	type strategy struct {
		name string
		run  func() (bool, error) // applied, error
	}
	strategies := []strategy{
		{"selector", func() (bool, error) {
			if t.Selector == "" {
				return false, nil
			}
			return true, e.page.Click(ctx, t.Selector)
		}},
		{"text", func() (bool, error) {
			if t.Text == "" {
				return false, nil
			}
			return true, e.clickByText(ctx, t.Text)
		}},
		{"role-name", func() (bool, error) {
			if t.Role == "" || t.Name == "" {
				return false, nil
			}
			return true, e.clickByRole(ctx, t.Role, t.Name)
		}},
	}

	var lastErr error
	for _, s := range strategies {
		applied, err := s.run()
		if !applied {
			continue
		}
		if err == nil {
			return nil
		}
		e.logger.Debug("Click strategy failed, trying next.",
			zap.String("strategy", s.name), zap.Error(err))
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("no click strategy succeeded: %w", lastErr)
	}
	return fmt.Errorf("click target carries no usable locator")
}

// clickByText clicks the first clickable whose visible text matches
// case-insensitively, preferring exact matches over substring ones.
func (e *Engine) clickByText(ctx context.Context, text string) error {
	script := fmt.Sprintf(`
		(() => {
			const wanted = %q.trim().toLowerCase();
			const clickables = Array.from(document.querySelectorAll('a, button, [role=button], input[type=submit], input[type=button]'));
			const textOf = (el) => (el.innerText || el.value || '').trim().toLowerCase();
			let match = clickables.find(el => textOf(el) === wanted);
			if (!match) match = clickables.find(el => textOf(el).includes(wanted));
			if (!match) return false;
			match.scrollIntoView({block: 'center'});
			match.click();
			return true;
		})()
	`, text)
	var clicked bool
	if err := e.page.Evaluate(ctx, script, &clicked); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("no clickable element with text %q", text)
	}
	return nil
}

// clickByRole clicks the first element carrying the role whose accessible
// name (aria-label, name attribute, or visible text) matches.
func (e *Engine) clickByRole(ctx context.Context, role, name string) error {
	script := fmt.Sprintf(`
		(() => {
			const wanted = %q.trim().toLowerCase();
			const implicit = {button: 'button, input[type=submit], input[type=button]', link: 'a[href]'};
			let sel = '[role=' + %q + ']';
			if (implicit[%q]) sel += ', ' + implicit[%q];
			const nameOf = (el) => (el.getAttribute('aria-label') || el.getAttribute('name') || el.innerText || el.value || '').trim().toLowerCase();
			const match = Array.from(document.querySelectorAll(sel)).find(el => nameOf(el) === wanted || nameOf(el).includes(wanted));
			if (!match) return false;
			match.scrollIntoView({block: 'center'});
			match.click();
			return true;
		})()
	`, name, role, role, role)
	var clicked bool
	if err := e.page.Evaluate(ctx, script, &clicked); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("no %s element named %q", role, name)
	}
	return nil
}
