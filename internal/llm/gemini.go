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

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient talks to the Gemini generateContent API over plain HTTP.
// It is the fallback provider when no Anthropic credential is configured.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewGeminiClient builds a client bound to one model.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	return &GeminiClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// GetModel returns the model this client is bound to.
func (c *GeminiClient) GetModel() string {
	return c.model
}

// Complete sends a bare prompt.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt under a system instruction.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userPrompt}}}},
		GenerationConfig: &geminiGenConfig{Temperature: defaultTemperature, MaxOutputTokens: defaultMaxTokens},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	resp, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", fmt.Errorf("gemini: empty completion")
	}
	return out, nil
}

// CompleteWithTools sends a prompt with function declarations; calls come
// back as functionCall parts.
func (c *GeminiClient) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	req := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userPrompt}}}},
		GenerationConfig: &geminiGenConfig{Temperature: defaultTemperature, MaxOutputTokens: defaultMaxTokens},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	if len(tools) > 0 {
		decls := make([]geminiFuncDecl, len(tools))
		for i, t := range tools {
			decls[i] = geminiFuncDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			}
		}
		req.Tools = []geminiTool{{FunctionDeclarations: decls}}
		req.ToolConfig = &geminiToolCfg{FunctionCallingConfig: geminiFuncCfg{Mode: "ANY"}}
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &types.LLMToolResponse{
		StopReason: resp.Candidates[0].FinishReason,
		Usage: types.UsageMetadata{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		},
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			var input map[string]any
			if len(part.FunctionCall.Args) > 0 {
				if err := json.Unmarshal(part.FunctionCall.Args, &input); err != nil {
					return nil, fmt.Errorf("gemini: parse function args: %w", err)
				}
			}
			result.ToolCalls = append(result.ToolCalls, types.ToolCall{
				ID:    fmt.Sprintf("call_%d", len(result.ToolCalls)),
				Name:  part.FunctionCall.Name,
				Input: input,
			})
			continue
		}
		text.WriteString(part.Text)
	}
	result.Text = strings.TrimSpace(text.String())
	return result, nil
}

func (c *GeminiClient) send(ctx context.Context, reqBody geminiRequest) (*geminiResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini: API key not configured")
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
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)

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

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("gemini: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("gemini: request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("gemini: read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("gemini: status %d: %s", resp.StatusCode, truncateBody(body))
			log.Warnw("gemini retryable failure", "model", c.model, "status", resp.StatusCode, "attempt", attempt)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, truncateBody(body))
		}

		var parsed geminiResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("gemini: parse response: %w", err)
		}
		if parsed.Error != nil {
			return nil, fmt.Errorf("gemini: API error %d: %s", parsed.Error.Code, parsed.Error.Message)
		}
		if len(parsed.Candidates) == 0 {
			return nil, fmt.Errorf("gemini: no candidates returned")
		}

		log.Debugw("gemini completion",
			"model", c.model,
			"elapsed", time.Since(start),
			"total_tokens", parsed.UsageMetadata.TotalTokenCount)
		return &parsed, nil
	}
	return nil, fmt.Errorf("gemini: max retries exceeded: %w", lastErr)
}

func (c *GeminiClient) pace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gap := time.Since(c.lastRequest); gap < minRequestGap {
		time.Sleep(minRequestGap - gap)
	}
	c.lastRequest = time.Now()
}
