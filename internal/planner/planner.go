package planner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/voxpilot/voxpilot/api/schemas"
	"github.com/voxpilot/voxpilot/internal/config"
	"github.com/voxpilot/voxpilot/internal/intent"
)

// systemPrompt pins the generator to the plan JSON contract the validator
// enforces. Keeping the contract in the prompt and the validator in code is
// deliberate: the validator is the source of truth, the prompt just raises
// the first-attempt hit rate.
const systemPrompt = `You translate transcribed voice commands into browser automation plans.
Respond with ONLY a single JSON object, no prose and no markdown fences, shaped as:
{
  "version": "v1",
  "intents": [{"type": "...", "args": {...}, "target": {...}, "requires_confirmation": false}],
  "context_updates": {},
  "confidence": 0.0-1.0,
  "tts_summary": "short spoken confirmation",
  "follow_up_question": null
}
Allowed intent types: navigate, search, click, type, select, scroll, back, forward,
wait_for, upload, extract_table, screenshot, sort, filter, summarize, confirm, cancel, unknown.
Targets carry "selector", or "text", or "role" plus "name".
Set "requires_confirmation": true on upload intents and other risky actions.
If the command is ambiguous, lower the confidence and set "follow_up_question".`

// Planner composes a Generator with the validation/repair protocol.
type Planner struct {
	generator intent.Generator
	logger    *zap.Logger
}

// New builds the configured provider. Gemini is the only provider wired
// today; the switch keeps the seam the configuration promises.
func New(cfg config.PlannerConfig, logger *zap.Logger) (*Planner, error) {
	var gen intent.Generator
	var err error
	switch cfg.Provider {
	case config.ProviderGemini, "":
		gen, err = NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown planner provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewWithGenerator(gen, logger), nil
}

// NewWithGenerator wires an explicit generator; tests use this with fakes.
func NewWithGenerator(gen intent.Generator, logger *zap.Logger) *Planner {
	return &Planner{generator: gen, logger: logger.Named("planner")}
}

// PlanFromTranscript produces a validated plan for one utterance. Session
// context (current URL, prior results) is rendered into the conversation so
// the generator can ground references like "the second one".
func (p *Planner) PlanFromTranscript(ctx context.Context, transcript string, sessionContext map[string]any) (*schemas.Plan, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, fmt.Errorf("transcript must not be empty")
	}

	messages := []intent.Message{
		{Role: intent.RoleSystem, Content: systemPrompt},
	}
	if len(sessionContext) > 0 {
		messages = append(messages, intent.Message{
			Role:    intent.RoleUser,
			Content: "Session context: " + renderContext(sessionContext),
		})
	}
	messages = append(messages, intent.Message{Role: intent.RoleUser, Content: transcript})

	return intent.GeneratePlan(ctx, p.generator, messages, p.logger)
}

func renderContext(sessionContext map[string]any) string {
	var sb strings.Builder
	for k, v := range sessionContext {
		fmt.Fprintf(&sb, "%s=%v; ", k, v)
	}
	return strings.TrimSuffix(sb.String(), "; ")
}
