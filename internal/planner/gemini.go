// Package planner turns voice transcripts into executable plans through an
// LLM, then funnels every candidate through schema validation and the
// one-shot repair protocol.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/voxpilot/voxpilot/internal/config"
	"github.com/voxpilot/voxpilot/internal/intent"
)

// GeminiClient implements intent.Generator against the Gemini
// generateContent REST API.
type GeminiClient struct {
	apiKey      string
	endpoint    string
	temperature float64
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *zap.Logger
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiClient builds the client from planner configuration.
func NewGeminiClient(cfg config.PlannerConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("planner API key is required")
	}
	model := cfg.Model
	if model == "" {
		return nil, fmt.Errorf("planner model is required")
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.2
	}

	return &GeminiClient{
		apiKey:      cfg.APIKey,
		endpoint:    fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", model),
		temperature: temperature,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		logger:      logger.Named("planner.gemini"),
	}, nil
}

// SetEndpoint overrides the API endpoint; tests point it at a local server.
func (c *GeminiClient) SetEndpoint(url string) { c.endpoint = url }

// Generate sends the conversation to Gemini and returns the raw candidate
// text. Transient API statuses are retried with exponential backoff; the
// repair protocol above decides what to do with malformed content.
func (c *GeminiClient) Generate(ctx context.Context, messages []intent.Message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait aborted: %w", err)
	}

	body, err := json.Marshal(c.buildRequest(messages))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var responseText string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("Network error during plan generation, retrying.", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return c.statusError(resp.StatusCode, respBody)
		}

		var payload geminiResponse
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if len(payload.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini returned no candidates"))
		}
		candidate := payload.Candidates[0]
		if len(candidate.Content.Parts) == 0 {
			if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
				return backoff.Permanent(fmt.Errorf("gemini blocked the request (reason: %s)", candidate.FinishReason))
			}
			return fmt.Errorf("gemini returned empty content parts (reason: %s)", candidate.FinishReason)
		}

		c.logger.Info("Plan generation complete.",
			zap.Duration("duration", time.Since(start)),
			zap.Int("prompt_tokens", payload.UsageMetadata.PromptTokenCount),
			zap.Int("completion_tokens", payload.UsageMetadata.CandidatesTokenCount))
		responseText = candidate.Content.Parts[0].Text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return responseText, nil
}

// buildRequest maps conversation messages onto Gemini contents: system
// messages fold into the system instruction, assistant turns become "model".
func (c *GeminiClient) buildRequest(messages []intent.Message) geminiRequest {
	req := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:      c.temperature,
			ResponseMimeType: "application/json",
		},
	}
	for _, m := range messages {
		switch m.Role {
		case intent.RoleSystem:
			if req.SystemInstruction == nil {
				req.SystemInstruction = &geminiContent{}
			}
			req.SystemInstruction.Parts = append(req.SystemInstruction.Parts, geminiPart{Text: m.Content})
		case intent.RoleAssistant:
			req.Contents = append(req.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	return req
}

func (c *GeminiClient) statusError(statusCode int, body []byte) error {
	err := fmt.Errorf("gemini API error: status %d, body: %s", statusCode, string(body))
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err // transient, retry
	default:
		c.logger.Error("Gemini API returned a permanent error.", zap.Int("status", statusCode))
		return backoff.Permanent(err)
	}
}
