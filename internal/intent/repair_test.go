package intent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voxpilot/voxpilot/internal/intent"
)

// scriptedGenerator replays canned responses (or errors) and counts calls.
type scriptedGenerator struct {
	responses []string
	errs      []error
	calls     int
	lastMsgs  []intent.Message
}

func (g *scriptedGenerator) Generate(_ context.Context, messages []intent.Message) (string, error) {
	i := g.calls
	g.calls++
	g.lastMsgs = messages
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.responses) {
		return g.responses[i], nil
	}
	return "", errors.New("scripted generator exhausted")
}

const validPlanResponse = `{
	"version": "v1",
	"intents": [{"type": "navigate", "args": {"url": "https://example.com"}}],
	"confidence": 0.9
}`

func TestGeneratePlanFirstAttemptValid(t *testing.T) {
	t.Parallel()
	gen := &scriptedGenerator{responses: []string{validPlanResponse}}

	plan, err := intent.GeneratePlan(context.Background(), gen, []intent.Message{
		{Role: intent.RoleUser, Content: "open example.com"},
	}, zaptest.NewLogger(t))

	require.NoError(t, err)
	require.Len(t, plan.Intents, 1)
	assert.Equal(t, 1, gen.calls, "a valid first candidate needs no repair call")
}

func TestGeneratePlanRepairSucceeds(t *testing.T) {
	t.Parallel()
	gen := &scriptedGenerator{responses: []string{
		`this is not even json`,
		"```json\n" + validPlanResponse + "\n```",
	}}

	plan, err := intent.GeneratePlan(context.Background(), gen, []intent.Message{
		{Role: intent.RoleUser, Content: "open example.com"},
	}, zaptest.NewLogger(t))

	require.NoError(t, err)
	assert.Equal(t, 0.9, plan.Confidence)
	assert.Equal(t, 2, gen.calls, "exactly two generation calls")

	// The repair conversation must carry the failed candidate and a
	// corrective instruction on top of the original messages.
	require.Len(t, gen.lastMsgs, 3)
	assert.Equal(t, intent.RoleAssistant, gen.lastMsgs[1].Role)
	assert.Equal(t, intent.RoleUser, gen.lastMsgs[2].Role)
	assert.Contains(t, gen.lastMsgs[2].Content, "did not conform")
}

func TestGeneratePlanRepairExhausted(t *testing.T) {
	t.Parallel()
	gen := &scriptedGenerator{responses: []string{
		`{"version": "v1", "intents": [], "confidence": 0.5}`,
		`{"version": "v1", "intents": [{"type": "frobnicate"}], "confidence": 0.5}`,
	}}

	plan, err := intent.GeneratePlan(context.Background(), gen, nil, zaptest.NewLogger(t))

	assert.Nil(t, plan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, intent.ErrRepairExhausted), "must be distinguishable as repair-exhausted")
	assert.Equal(t, 2, gen.calls, "never a third generation call")

	var rerr *intent.RepairError
	require.ErrorAs(t, err, &rerr)
	assert.NotNil(t, rerr.First)
	assert.NotNil(t, rerr.Second)
}

func TestGeneratePlanGenerationErrorFirstAttempt(t *testing.T) {
	t.Parallel()
	cause := errors.New("quota exceeded")
	gen := &scriptedGenerator{errs: []error{cause}}

	_, err := intent.GeneratePlan(context.Background(), gen, nil, zaptest.NewLogger(t))

	var gerr *intent.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 1, gerr.Attempt)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, 1, gen.calls, "generator failure short-circuits without a repair attempt")
	assert.False(t, errors.Is(err, intent.ErrRepairExhausted))
}

func TestGeneratePlanGenerationErrorSecondAttempt(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection reset")
	gen := &scriptedGenerator{
		responses: []string{`not json`},
		errs:      []error{nil, cause},
	}

	_, err := intent.GeneratePlan(context.Background(), gen, nil, zaptest.NewLogger(t))

	var gerr *intent.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 2, gerr.Attempt)
	assert.Equal(t, 2, gen.calls)
}
