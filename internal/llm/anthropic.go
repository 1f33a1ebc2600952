// Package llm holds the model clients behind types.LLMClient plus the
// tier ladder that hands out a client per escalation level. Each client
// is bound to one model for its lifetime; the ladder never mutates a
// client that workers may be sharing.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"freightflow/internal/logging"
	"freightflow/internal/types"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	defaultMaxTokens   = 8192
	defaultTemperature = 0.1
	defaultTimeout     = 2 * time.Minute

	// minRequestGap spaces requests out to stay under burst rate limits.
	minRequestGap = 100 * time.Millisecond

	maxRetries = 3
)

// AnthropicClient talks to the Anthropic messages API over plain HTTP.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewAnthropicClient builds a client bound to one model.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = anthropicBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &AnthropicClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// GetModel returns the model this client is bound to.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// Complete sends a bare prompt.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt under a system message and returns the
// concatenated text blocks.
func (c *AnthropicClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.send(ctx, anthropicRequest{
		Model:       c.model,
		MaxTokens:   defaultMaxTokens,
		System:      systemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: userPrompt}},
		Temperature: defaultTemperature,
	})
	if err != nil {
		return "", err
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", fmt.Errorf("anthropic: empty completion")
	}
	return out, nil
}

// CompleteWithTools sends a prompt with tool definitions. Tool use is
// forced when exactly one tool is offered, which is the extraction path.
func (c *AnthropicClient) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	req := anthropicRequest{
		Model:       c.model,
		MaxTokens:   defaultMaxTokens,
		System:      systemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: userPrompt}},
		Temperature: defaultTemperature,
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	if len(tools) == 1 {
		req.ToolChoice = &anthropicChoice{Type: "tool", Name: tools[0].Name}
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &types.LLMToolResponse{
		StopReason: resp.StopReason,
		Usage: types.UsageMetadata{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			result.ToolCalls = append(result.ToolCalls, types.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	result.Text = strings.TrimSpace(text.String())
	return result, nil
}

// send posts one request with pacing and a bounded retry loop for rate
// limits and transport failures. Non-429 API errors do not retry.
func (c *AnthropicClient) send(ctx context.Context, reqBody anthropicRequest) (*anthropicResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("anthropic: API key not configured")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	log := logging.L(logging.CategoryLLM)
	start := time.Now()

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		c.pace()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("anthropic: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("anthropic: request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("anthropic: read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, truncateBody(body))
			log.Warnw("anthropic retryable failure", "model", c.model, "status", resp.StatusCode, "attempt", attempt)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, truncateBody(body))
		}

		var parsed anthropicResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("anthropic: parse response: %w", err)
		}
		if parsed.Error != nil {
			return nil, fmt.Errorf("anthropic: API error: %s", parsed.Error.Message)
		}
		if len(parsed.Content) == 0 {
			return nil, fmt.Errorf("anthropic: no content returned")
		}

		log.Debugw("anthropic completion",
			"model", c.model,
			"elapsed", time.Since(start),
			"input_tokens", parsed.Usage.InputTokens,
			"output_tokens", parsed.Usage.OutputTokens)
		return &parsed, nil
	}
	return nil, fmt.Errorf("anthropic: max retries exceeded: %w", lastErr)
}

func (c *AnthropicClient) pace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gap := time.Since(c.lastRequest); gap < minRequestGap {
		time.Sleep(minRequestGap - gap)
	}
	c.lastRequest = time.Now()
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
