package abilities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// LLMConfig holds the settings for the text-completion backend.
type LLMConfig struct {
	// APIURL is the Ollama-compatible generate endpoint.
	APIURL string
	// Model is the model name to request.
	Model string
	// Temperature controls sampling randomness.
	Temperature float64
	// MaxTokens bounds the completion length.
	MaxTokens int
	// Timeout bounds a single completion request.
	Timeout time.Duration
}

// LLMClient talks to an Ollama-compatible HTTP endpoint.
type LLMClient struct {
	cfg    LLMConfig
	client *http.Client
}

// NewLLMClient creates a client for the configured endpoint.
func NewLLMClient(cfg LLMConfig) *LLMClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &LLMClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// generateRequest is the Ollama generate API request body.
type generateRequest struct {
	Model         string  `json:"model"`
	Prompt        string  `json:"prompt"`
	Stream        bool    `json:"stream"`
	Temperature   float64 `json:"temperature"`
	NumPredict    int     `json:"num_predict"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	TopP          float64 `json:"top_p"`
	Seed          int     `json:"seed"`
	NumCtx        int     `json:"num_ctx"`
}

// generateResponse is the subset of the Ollama response the loop needs.
type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Complete sends a prompt and returns the model's text response.
func (c *LLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:         c.cfg.Model,
		Prompt:        prompt,
		Stream:        false,
		Temperature:   c.cfg.Temperature,
		NumPredict:    c.cfg.MaxTokens,
		RepeatPenalty: 1.1,
		TopP:          0.8,
		Seed:          42,
		NumCtx:        2048,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm service returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("llm service error: %s", parsed.Error)
	}

	log.Printf("[ability] text-completion finished in %.2fs (%d chars)", time.Since(start).Seconds(), len(parsed.Response))
	return parsed.Response, nil
}

// Ping verifies the LLM service is reachable and responding. Used as a
// preflight check before a run starts.
func (c *LLMClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.Complete(ctx, "Respond with 'OK' if you can read this message.")
	if err != nil {
		return fmt.Errorf("llm service unavailable: %w", err)
	}
	return nil
}

// TextCompletion returns the text-completion ability backed by this client.
func (c *LLMClient) TextCompletion() Func {
	return func(ctx context.Context, input string) (string, error) {
		return c.Complete(ctx, input)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
