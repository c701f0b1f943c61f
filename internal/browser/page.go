package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/voxpilot/voxpilot/internal/config"
)

// Page is one chromedp tab. It implements the primitive surface the engine
// and analyzer drive; all higher-level strategy (fallback chains, analysis,
// retries) lives above it.
type Page struct {
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	cfg       config.BrowserConfig
	logger    *zap.Logger
}

// run executes chromedp actions against the tab under the caller's deadline.
// The tab context carries the browser connection; the caller context carries
// the per-step budget.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// combineContext derives a context that is cancelled when either parent is.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Alive reports whether the tab can still accept commands.
func (p *Page) Alive() bool { return p.ctx.Err() == nil }

// Close discards the tab. The chromedp cancel waits for the tab's browser to
// acknowledge the close; once the tab context is dead (a prior Close, or the
// browser torn down externally) that acknowledgement never arrives, so the
// wait must be skipped or Close blocks forever.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		if p.ctx.Err() != nil {
			return
		}
		p.cancel()
	})
}

// Navigate loads the URL and waits for the document body to exist.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))

	navTimeout := p.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	if err := p.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to %s timed out after %s: %w", url, navTimeout, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Back walks one entry back in tab history.
func (p *Page) Back(ctx context.Context) error {
	if err := p.run(ctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("history back failed: %w", err)
	}
	return nil
}

// Forward walks one entry forward in tab history.
func (p *Page) Forward(ctx context.Context) error {
	if err := p.run(ctx, chromedp.NavigateForward()); err != nil {
		return fmt.Errorf("history forward failed: %w", err)
	}
	return nil
}

// Click scrolls the element into view, waits for visibility, and clicks.
func (p *Page) Click(ctx context.Context, selector string) error {
	p.logger.Debug("Clicking element.", zap.String("selector", selector))
	if err := p.run(ctx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("click failed for selector %q: %w", selector, err)
	}
	return nil
}

// Fill clears the element and types the text into it.
func (p *Page) Fill(ctx context.Context, selector, text string) error {
	p.logger.Debug("Filling element.", zap.String("selector", selector), zap.Int("text_length", len(text)))
	if err := p.run(ctx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill failed for selector %q: %w", selector, err)
	}
	return nil
}

// Press sends a single key (e.g. Enter) to the element.
func (p *Page) Press(ctx context.Context, selector, key string) error {
	seq, err := keySequence(key)
	if err != nil {
		return err
	}
	if err := p.run(ctx, chromedp.SendKeys(selector, seq, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("key press %q failed for selector %q: %w", key, selector, err)
	}
	return nil
}

func keySequence(key string) (string, error) {
	switch strings.ToLower(key) {
	case "enter":
		return kb.Enter, nil
	case "tab":
		return kb.Tab, nil
	case "escape", "esc":
		return kb.Escape, nil
	default:
		if len([]rune(key)) == 1 {
			return key, nil
		}
		return "", fmt.Errorf("unsupported key %q", key)
	}
}

// SelectOption picks an option by visible label, falling back to value
// matching, and fires the change event the page's scripts listen for.
func (p *Page) SelectOption(ctx context.Context, selector, option string) error {
	script := fmt.Sprintf(`
		(() => {
			const sel = document.querySelector(%q);
			if (!sel) return 'no such select';
			const wanted = %q.trim().toLowerCase();
			let match = Array.from(sel.options).find(o => o.label.trim().toLowerCase() === wanted);
			if (!match) match = Array.from(sel.options).find(o => o.value.trim().toLowerCase() === wanted);
			if (!match) return 'no option matching';
			sel.value = match.value;
			sel.dispatchEvent(new Event('input', {bubbles: true}));
			sel.dispatchEvent(new Event('change', {bubbles: true}));
			return '';
		})()
	`, selector, option)

	var failure string
	if err := p.run(ctx, chromedp.Evaluate(script, &failure)); err != nil {
		return fmt.Errorf("select failed for selector %q: %w", selector, err)
	}
	if failure != "" {
		return fmt.Errorf("select failed for selector %q: %s %q", selector, failure, option)
	}
	return nil
}

// Submit submits the form owning the element.
func (p *Page) Submit(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Submit(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("submit failed for selector %q: %w", selector, err)
	}
	return nil
}

// ScrollBy smooth-scrolls the viewport by a signed pixel amount.
func (p *Page) ScrollBy(ctx context.Context, pixels float64) error {
	script := fmt.Sprintf(`window.scrollBy({top: %f, behavior: 'smooth'});`, pixels)
	if err := p.run(ctx,
		chromedp.Evaluate(script, nil),
		chromedp.Sleep(500*time.Millisecond),
	); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// Scroll moves the viewport. Directions: up, down, top, bottom.
func (p *Page) Scroll(ctx context.Context, direction string) error {
	var script string
	switch direction {
	case "down":
		script = `window.scrollBy({top: window.innerHeight * 0.8, behavior: 'smooth'});`
	case "up":
		script = `window.scrollBy({top: -window.innerHeight * 0.8, behavior: 'smooth'});`
	case "bottom":
		script = `window.scrollTo({top: document.body.scrollHeight, behavior: 'smooth'});`
	case "top":
		script = `window.scrollTo({top: 0, behavior: 'smooth'});`
	default:
		return fmt.Errorf("invalid scroll direction %q (supported: up, down, top, bottom)", direction)
	}
	if err := p.run(ctx,
		chromedp.Evaluate(script, nil),
		chromedp.Sleep(500*time.Millisecond),
	); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// WaitVisible blocks until the selector is visible or the context expires.
func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q failed: %w", selector, err)
	}
	return nil
}

// Evaluate runs a JavaScript expression and decodes its result into out.
func (p *Page) Evaluate(ctx context.Context, expression string, out any) error {
	if err := p.run(ctx, chromedp.Evaluate(expression, out)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// SetUploadFiles attaches local file paths to a file input.
func (p *Page) SetUploadFiles(ctx context.Context, selector string, paths []string) error {
	if err := p.run(ctx, chromedp.SetUploadFiles(selector, paths, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("file attach failed for selector %q: %w", selector, err)
	}
	return nil
}

// FullScreenshot captures the full page as PNG bytes. Quality 100 keeps
// chromedp on the lossless PNG path.
func (p *Page) FullScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// URL reports the tab's current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}
