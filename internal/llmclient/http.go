// Package llmclient implements ports.LlmPort over plain HTTP, grounded
// on the teacher's HTTPLLMClient (internal/infrastructure/llm/client.go):
// a JSON request/response body, exponential-backoff retry loop, and a
// bearer token from configuration, adapted from alert classification
// to code-modification completion.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// Config configures the HTTP LlmPort adapter.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	RetryBackoff float64
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryDelay:   time.Second,
		RetryBackoff: 2.0,
	}
}

type completionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Context   string `json:"context,omitempty"`
	Tier      string `json:"tier"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// HTTPLlmPort is the production ports.LlmPort, backed by an HTTP
// completion endpoint.
type HTTPLlmPort struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds an HTTPLlmPort.
func New(cfg Config, logger *slog.Logger) *HTTPLlmPort {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPLlmPort{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "llm_http"),
	}
}

// Complete implements ports.LlmPort, retrying transient failures with
// exponential backoff.
func (c *HTTPLlmPort) Complete(ctx context.Context, req domain.LLMRequest) (string, error) {
	var lastErr error
	delay := c.cfg.RetryDelay

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.cfg.RetryBackoff)
		}

		content, err := c.completeOnce(ctx, req)
		if err == nil {
			return content, nil
		}
		lastErr = err
		c.logger.Warn("LLM completion attempt failed", "attempt", attempt+1, "error", err)
	}

	return "", fmt.Errorf("LLM completion failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func (c *HTTPLlmPort) completeOnce(ctx context.Context, req domain.LLMRequest) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:     c.cfg.Model,
		Prompt:    req.Prompt,
		Context:   req.Context,
		Tier:      string(req.Tier),
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/complete", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading completion response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("LLM API error: status %d, body %s", resp.StatusCode, string(raw))
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parsing completion response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("LLM API returned error: %s", parsed.Error)
	}
	return parsed.Content, nil
}
