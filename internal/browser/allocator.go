// Package browser owns the chromedp side of the system: allocator lifecycle
// and the concrete page implementation the engine drives.
package browser

import (
	"context"
	"errors"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/voxpilot/voxpilot/internal/config"
)

// Allocator provisions chromedp tab contexts. With a remote URL configured it
// attaches to an already-running Chrome over the DevTools protocol; otherwise
// it launches a local headless instance.
type Allocator struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewAllocator builds the allocator context. No browser process is spawned
// until the first page is created; chromedp defers the exec to first use.
func NewAllocator(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Allocator, error) {
	a := &Allocator{cfg: cfg, logger: logger.Named("browser")}

	if cfg.RemoteURL != "" {
		a.logger.Info("Using remote browser allocator.", zap.String("url", cfg.RemoteURL))
		a.ctx, a.cancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
		return a, nil
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", cfg.Headless),
	}
	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	a.logger.Info("Using local browser allocator.", zap.Bool("headless", cfg.Headless))
	a.ctx, a.cancel = chromedp.NewExecAllocator(ctx, opts...)
	return a, nil
}

// NewPage opens a fresh tab bound to this allocator.
func (a *Allocator) NewPage() (*Page, error) {
	if a.ctx.Err() != nil {
		return nil, errors.New("browser allocator is closed")
	}
	tabCtx, tabCancel := chromedp.NewContext(a.ctx)

	// Native dialogs (alert/confirm/prompt) block the renderer until handled,
	// which would stall every subsequent action past its timeout. Accept them
	// as they appear.
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if dialog, ok := ev.(*cdppage.EventJavascriptDialogOpening); ok {
			a.logger.Debug("Auto-accepting JavaScript dialog.",
				zap.String("type", dialog.Type.String()),
				zap.String("message", dialog.Message))
			go func() {
				_ = chromedp.Run(tabCtx, cdppage.HandleJavaScriptDialog(true))
			}()
		}
	})

	return &Page{
		ctx:    tabCtx,
		cancel: tabCancel,
		cfg:    a.cfg,
		logger: a.logger,
	}, nil
}

// Close tears down the allocator and every tab derived from it.
func (a *Allocator) Close() {
	a.cancel()
}
