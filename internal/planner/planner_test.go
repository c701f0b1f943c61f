package planner_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voxpilot/voxpilot/internal/config"
	"github.com/voxpilot/voxpilot/internal/intent"
	"github.com/voxpilot/voxpilot/internal/planner"
)

type stubGenerator struct {
	response string
	err      error
	messages []intent.Message
}

func (g *stubGenerator) Generate(_ context.Context, messages []intent.Message) (string, error) {
	g.messages = messages
	return g.response, g.err
}

func TestPlanFromTranscriptComposesConversation(t *testing.T) {
	t.Parallel()
	gen := &stubGenerator{response: `{
		"version": "v1",
		"intents": [{"type": "search", "args": {"query": "running shoes"}}],
		"confidence": 0.85
	}`}
	p := planner.NewWithGenerator(gen, zaptest.NewLogger(t))

	plan, err := p.PlanFromTranscript(context.Background(), "search for running shoes",
		map[string]any{"current_url": "https://shop.example.com"})
	require.NoError(t, err)
	require.Len(t, plan.Intents, 1)

	require.Len(t, gen.messages, 3, "system prompt, session context, transcript")
	assert.Equal(t, intent.RoleSystem, gen.messages[0].Role)
	assert.Contains(t, gen.messages[1].Content, "current_url=https://shop.example.com")
	assert.Equal(t, "search for running shoes", gen.messages[2].Content)
}

func TestPlanFromTranscriptRejectsEmpty(t *testing.T) {
	t.Parallel()
	p := planner.NewWithGenerator(&stubGenerator{}, zaptest.NewLogger(t))
	_, err := p.PlanFromTranscript(context.Background(), "   ", nil)
	assert.Error(t, err)
}

func TestPlanFromTranscriptSurfacesGenerationError(t *testing.T) {
	t.Parallel()
	gen := &stubGenerator{err: errors.New("quota exceeded")}
	p := planner.NewWithGenerator(gen, zaptest.NewLogger(t))

	_, err := p.PlanFromTranscript(context.Background(), "open example.com", nil)
	var gerr *intent.GenerationError
	assert.True(t, errors.As(err, &gerr))
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	t.Parallel()
	_, err := planner.New(config.PlannerConfig{Provider: "oracle"}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "oracle")
}

func TestNewGeminiRequiresKeyAndModel(t *testing.T) {
	t.Parallel()
	_, err := planner.NewGeminiClient(config.PlannerConfig{Model: "gemini-2.0-flash"}, zaptest.NewLogger(t))
	assert.Error(t, err)

	_, err = planner.NewGeminiClient(config.PlannerConfig{APIKey: "k"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

// The request shape is pinned against a fake generateContent endpoint:
// system messages fold into system_instruction, assistant turns map to the
// "model" role, and the generation config forces JSON output.
func TestGeminiRequestShape(t *testing.T) {
	t.Parallel()
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": `{"version":"v1"}`}}}},
			},
		})
	}))
	defer server.Close()

	client, err := planner.NewGeminiClient(config.PlannerConfig{
		APIKey: "k", Model: "gemini-2.0-flash",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	client.SetEndpoint(server.URL)

	out, err := client.Generate(context.Background(), []intent.Message{
		{Role: intent.RoleSystem, Content: "contract"},
		{Role: intent.RoleUser, Content: "do the thing"},
		{Role: intent.RoleAssistant, Content: "bad candidate"},
		{Role: intent.RoleUser, Content: "fix it"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"version":"v1"}`, out)

	sys := captured["system_instruction"].(map[string]any)
	assert.Len(t, sys["parts"], 1)

	contents := captured["contents"].([]any)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].(map[string]any)["role"])
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])

	genCfg := captured["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", genCfg["response_mime_type"])
	assert.InDelta(t, 0.2, genCfg["temperature"].(float64), 1e-9)
}

func TestGeminiPermanentErrorNotRetried(t *testing.T) {
	t.Parallel()
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := planner.NewGeminiClient(config.PlannerConfig{
		APIKey: "k", Model: "gemini-2.0-flash", RequestsPerMinute: 6000,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	client.SetEndpoint(server.URL)

	_, err = client.Generate(context.Background(), []intent.Message{
		{Role: intent.RoleUser, Content: "hello"},
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx statuses are permanent")
}
