package generative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/COG-GTM/fireflies-agent/internal/config"
	"github.com/COG-GTM/fireflies-agent/internal/logger"
	apperrors "github.com/COG-GTM/fireflies-agent/pkg/errors"
	"github.com/COG-GTM/fireflies-agent/pkg/metrics"
)

const anthropicAPIVersion = "2023-06-01"

// draftTemperature keeps repeated runs on identical input tonally stable.
const draftTemperature = 0.2

// Client calls the Anthropic messages API. All prompts in this service
// are single-turn; conversation state is out of scope.
type Client struct {
	apiURL string
	apiKey string
	model  string
	client *http.Client
	logger logger.Logger
}

func NewClient(cfg config.AnthropicConfig, log logger.Logger) *Client {
	return &Client{
		apiURL: cfg.APIURL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log,
	}
}

type messagesRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	Messages    []messageMsg `json:"messages"`
}

type messageMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Complete sends a single user prompt and returns the text completion.
// maxTokens is the hard output ceiling. An empty or refused completion
// maps to MODEL_REFUSAL, which the draft generator handles with one
// simplified-prompt retry before escalating.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: draftTemperature,
		Messages:    []messageMsg{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", apperrors.ErrInternal.WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", apperrors.ErrInternal.WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.ErrTransient.WithCause(fmt.Errorf("model request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", apperrors.ErrUnauthorized.WithCause(fmt.Errorf("model API returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", apperrors.ErrTransient.WithCause(fmt.Errorf("model API returned %d", resp.StatusCode))
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", apperrors.ErrValidation.WithCause(fmt.Errorf("model API returned %d: %s", resp.StatusCode, string(respBody)))
	}

	var msgResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return "", apperrors.ErrTransient.WithCause(fmt.Errorf("failed to decode model response: %w", err))
	}

	metrics.ModelTokensTotal.WithLabelValues("input").Add(float64(msgResp.Usage.InputTokens))
	metrics.ModelTokensTotal.WithLabelValues("output").Add(float64(msgResp.Usage.OutputTokens))

	var parts []string
	for _, block := range msgResp.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, ""))

	if text == "" || msgResp.StopReason == "refusal" {
		return "", apperrors.ErrModelRefusal.WithDetail("stop_reason", msgResp.StopReason)
	}

	c.logger.DebugwCtx(ctx, "Model completion",
		"output_chars", len(text),
		"stop_reason", msgResp.StopReason,
		"output_tokens", msgResp.Usage.OutputTokens,
	)

	return text, nil
}
