package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aretw0/quartet/pkg/ports"
)

const defaultOllamaModel = "llama3.2"

// OllamaConfig configures the Ollama client.
type OllamaConfig struct {
	BaseURL string
	Model   string
	// Timeout bounds each request. Zero means 120s.
	Timeout time.Duration
}

// Ollama calls a local Ollama server's /api/generate endpoint.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates the client. BaseURL is required.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama base URL is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Ollama{
		baseURL: cfg.BaseURL,
		model:   model,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate implements ports.Generator.
func (c *Ollama) Generate(ctx context.Context, prompt string, opts ports.GenerateOptions) (string, error) {
	options := map[string]any{}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return genResp.Response, nil
}
