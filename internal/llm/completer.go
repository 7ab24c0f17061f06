// Package llm provides the generative-completion provider used downstream of
// retrieval. The indexing and search core never depends on it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Completer generates a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Close() error
}

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultModel is the default generation model.
	DefaultModel = "llama3.2"

	// DefaultTimeout bounds a single completion request.
	DefaultTimeout = 120 * time.Second
)

// OllamaCompleter talks to Ollama's /api/generate endpoint.
type OllamaCompleter struct {
	client  *http.Client
	host    string
	model   string
	timeout time.Duration
}

var _ Completer = (*OllamaCompleter)(nil)

// NewOllamaCompleter creates a completer against the given Ollama host.
func NewOllamaCompleter(host, model string, timeout time.Duration) *OllamaCompleter {
	if host == "" {
		host = DefaultOllamaHost
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OllamaCompleter{
		client:  &http.Client{},
		host:    host,
		model:   model,
		timeout: timeout,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Complete generates a completion for prompt.
func (c *OllamaCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("generate request returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}
	return parsed.Response, nil
}

// Close releases idle connections.
func (c *OllamaCompleter) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
