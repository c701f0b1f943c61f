// Package engine executes validated intents against a live page. It walks a
// plan linearly, gives every intent its own deadline, and records exactly one
// StepResult per intent in input order. A step failure never aborts the rest
// of the plan.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/voxpilot/voxpilot/api/schemas"
	"github.com/voxpilot/voxpilot/internal/analyzer"
	"github.com/voxpilot/voxpilot/internal/artifacts"
)

// DefaultStepTimeout bounds a step when the intent carries no timeout_ms.
const DefaultStepTimeout = 15 * time.Second

// screenshotTimeout bounds the best-effort per-step capture separately from
// the step budget, so an expired step can still leave a screenshot behind.
const screenshotTimeout = 5 * time.Second

// Page is the primitive browser surface the engine drives. *browser.Page is
// the production implementation; tests substitute fakes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string) error
	Press(ctx context.Context, selector, key string) error
	SelectOption(ctx context.Context, selector, option string) error
	Submit(ctx context.Context, selector string) error
	ScrollBy(ctx context.Context, pixels float64) error
	WaitVisible(ctx context.Context, selector string) error
	Evaluate(ctx context.Context, expression string, out any) error
	SetUploadFiles(ctx context.Context, selector string, paths []string) error
	FullScreenshot(ctx context.Context) ([]byte, error)
}

// Analyzer produces a page inventory. *analyzer.Analyzer satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, page analyzer.Evaluator) (*schemas.PageAnalysis, error)
}

// Resolver maps an opaque upload fileRef back to a local path.
type Resolver interface {
	Resolve(ref string) (string, error)
}

// State is the navigation-aware analysis cache the engine consults between
// steps. *session.Session satisfies it; MemoryState serves standalone runs.
type State interface {
	Analysis() *schemas.PageAnalysis
	StoreAnalysis(*schemas.PageAnalysis)
	BumpGeneration()
}

// Options configure one Engine. Page, State, Analyzer and Logger are
// required; Resolver may be nil when uploads are not in play.
type Options struct {
	Page        Page
	State       State
	Analyzer    Analyzer
	Resolver    Resolver
	ArtifactDir string
	StepTimeout time.Duration
	Logger      *zap.Logger
}

// Engine executes plans against a single page.
type Engine struct {
	page        Page
	state       State
	analyzer    Analyzer
	resolver    Resolver
	artifactDir string
	stepTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func New(opts Options) *Engine {
	timeout := opts.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	return &Engine{
		page:        opts.Page,
		state:       opts.State,
		analyzer:    opts.Analyzer,
		resolver:    opts.Resolver,
		artifactDir: opts.ArtifactDir,
		stepTimeout: timeout,
		logger:      opts.Logger.Named("engine"),
		now:         time.Now,
	}
}

type handlerFunc func(e *Engine, ctx context.Context, in schemas.Intent, res *schemas.StepResult) error

// handlers is the engine's dispatch table. Types absent here are schema-valid
// but not executable; they fail per step, naming the type.
var handlers = map[schemas.IntentType]handlerFunc{
	schemas.IntentTypeNavigate:     (*Engine).handleNavigate,
	schemas.IntentTypeSearch:       (*Engine).handleSearch,
	schemas.IntentTypeClick:        (*Engine).handleClick,
	schemas.IntentTypeText:         (*Engine).handleType,
	schemas.IntentTypeSelect:       (*Engine).handleSelect,
	schemas.IntentTypeScroll:       (*Engine).handleScroll,
	schemas.IntentTypeBack:         (*Engine).handleBack,
	schemas.IntentTypeForward:      (*Engine).handleForward,
	schemas.IntentTypeWaitFor:      (*Engine).handleWaitFor,
	schemas.IntentTypeUpload:       (*Engine).handleUpload,
	schemas.IntentTypeExtractTable: (*Engine).handleExtractTable,
	schemas.IntentTypeScreenshot:   (*Engine).handleScreenshot,
	schemas.IntentTypeSummarize:    (*Engine).handleSummarize,
}

// SupportedTypes returns the intent types the dispatch table handles, sorted.
func SupportedTypes() []schemas.IntentType {
	out := make([]schemas.IntentType, 0, len(handlers))
	for t := range handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DeclinedTypes are schema-valid types the engine deliberately does not
// execute. The divergence test pins handled + declined == the closed enum.
func DeclinedTypes() []schemas.IntentType {
	return []schemas.IntentType{
		schemas.IntentTypeCancel,
		schemas.IntentTypeConfirm,
		schemas.IntentTypeFilter,
		schemas.IntentTypeSort,
		schemas.IntentTypeUnknown,
	}
}

// Run executes the intents in order and returns one StepResult per intent.
// The retries field on an intent is carried through to the result untouched:
// the engine performs exactly one attempt per intent, leaving retry looping
// to whatever orchestrates it.
func (e *Engine) Run(ctx context.Context, intents []schemas.Intent) []schemas.StepResult {
	results := make([]schemas.StepResult, 0, len(intents))
	for i, in := range intents {
		res := e.runStep(ctx, i, in)
		if !res.OK {
			e.logger.Warn("Step failed.",
				zap.Int("step", i+1),
				zap.String("type", string(in.Type)),
				zap.String("error", res.Error))
		}
		results = append(results, res)
	}
	return results
}

func (e *Engine) runStep(ctx context.Context, idx int, in schemas.Intent) schemas.StepResult {
	res := schemas.StepResult{Intent: in, OK: true}

	stepCtx, cancel := context.WithTimeout(ctx, in.EffectiveTimeout(e.stepTimeout))
	handler, ok := handlers[in.Type]
	if !ok {
		res.OK = false
		res.Error = fmt.Sprintf("unsupported intent type %q", in.Type)
	} else if err := handler(e, stepCtx, in, &res); err != nil {
		res.OK = false
		res.Error = err.Error()
	}
	cancel()

	// Best-effort capture on its own small budget; the screenshot intent
	// already wrote its own named capture.
	if res.Screenshot == "" {
		label := fmt.Sprintf("step-%02d-%s", idx+1, in.Type)
		e.captureScreenshot(ctx, label, &res)
	}
	return res
}

// captureScreenshot never turns a passing step into a failure.
func (e *Engine) captureScreenshot(ctx context.Context, label string, res *schemas.StepResult) {
	shotCtx, cancel := context.WithTimeout(ctx, screenshotTimeout)
	defer cancel()

	data, err := e.page.FullScreenshot(shotCtx)
	if err != nil {
		e.logger.Debug("Screenshot capture failed.", zap.String("label", label), zap.Error(err))
		return
	}
	path, err := artifacts.WriteScreenshot(e.artifactDir, artifacts.ScreenshotName(e.now(), label), data)
	if err != nil {
		e.logger.Warn("Screenshot write failed.", zap.String("label", label), zap.Error(err))
		return
	}
	res.Screenshot = path
}

// analysis serves the cached inventory when it is still valid for the
// current navigation state, recomputing otherwise.
func (e *Engine) analysis(ctx context.Context) (*schemas.PageAnalysis, error) {
	if a := e.state.Analysis(); a != nil {
		return a, nil
	}
	a, err := e.analyzer.Analyze(ctx, e.page)
	if err != nil {
		return nil, err
	}
	e.state.StoreAnalysis(a)
	return a, nil
}

func (e *Engine) handleNavigate(ctx context.Context, in schemas.Intent, _ *schemas.StepResult) error {
	url := in.StringArg("url", "")
	if url == "" {
		return fmt.Errorf("navigate requires args.url")
	}
	if err := e.page.Navigate(ctx, url); err != nil {
		return err
	}
	e.state.BumpGeneration()
	return nil
}

func (e *Engine) handleBack(ctx context.Context, _ schemas.Intent, _ *schemas.StepResult) error {
	if err := e.page.Back(ctx); err != nil {
		return err
	}
	e.state.BumpGeneration()
	return nil
}

func (e *Engine) handleForward(ctx context.Context, _ schemas.Intent, _ *schemas.StepResult) error {
	if err := e.page.Forward(ctx); err != nil {
		return err
	}
	e.state.BumpGeneration()
	return nil
}

func (e *Engine) handleType(ctx context.Context, in schemas.Intent, _ *schemas.StepResult) error {
	if in.Target == nil || in.Target.Selector == "" {
		return fmt.Errorf("type requires target.selector")
	}
	return e.page.Fill(ctx, in.Target.Selector, in.StringArg("value", ""))
}

func (e *Engine) handleSelect(ctx context.Context, in schemas.Intent, _ *schemas.StepResult) error {
	if in.Target == nil || in.Target.Selector == "" {
		return fmt.Errorf("select requires target.selector")
	}
	return e.page.SelectOption(ctx, in.Target.Selector, in.StringArg("value", ""))
}

// handleScroll is best-effort per contract: a scroll that goes nowhere is
// not a step failure.
func (e *Engine) handleScroll(ctx context.Context, in schemas.Intent, _ *schemas.StepResult) error {
	pixels := float64(in.IntArg("pixels", 800))
	if in.StringArg("direction", "down") == "up" {
		pixels = -pixels
	}
	if err := e.page.ScrollBy(ctx, pixels); err != nil {
		e.logger.Debug("Scroll failed (best-effort, ignored).", zap.Error(err))
	}
	return nil
}

func (e *Engine) handleWaitFor(ctx context.Context, in schemas.Intent, _ *schemas.StepResult) error {
	selector := in.StringArg("selector", "")
	if selector == "" {
		return fmt.Errorf("wait_for requires args.selector")
	}
	waitCtx := ctx
	if ms := in.IntArg("timeoutMs", 0); ms > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}
	return e.page.WaitVisible(waitCtx, selector)
}

func (e *Engine) handleUpload(ctx context.Context, in schemas.Intent, _ *schemas.StepResult) error {
	if in.Target == nil || in.Target.Selector == "" {
		return fmt.Errorf("upload requires target.selector")
	}
	ref := in.StringArg("fileRef", "")
	if ref == "" {
		return fmt.Errorf("upload requires args.fileRef")
	}
	if e.resolver == nil {
		return fmt.Errorf("no upload resolver configured")
	}
	path, err := e.resolver.Resolve(ref)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", ref, err)
	}
	return e.page.SetUploadFiles(ctx, in.Target.Selector, []string{path})
}

func (e *Engine) handleScreenshot(ctx context.Context, in schemas.Intent, res *schemas.StepResult) error {
	data, err := e.page.FullScreenshot(ctx)
	if err != nil {
		return err
	}
	name := artifacts.ScreenshotName(e.now(), in.StringArg("label", "screenshot"))
	path, err := artifacts.WriteScreenshot(e.artifactDir, name, data)
	if err != nil {
		return err
	}
	res.Screenshot = path
	return nil
}

// handleSummarize records an informational no-op: summarization happens
// upstream of execution, the step only acknowledges it.
func (e *Engine) handleSummarize(_ context.Context, _ schemas.Intent, res *schemas.StepResult) error {
	res.Data = map[string]any{"note": "summarization is handled upstream of execution"}
	return nil
}
