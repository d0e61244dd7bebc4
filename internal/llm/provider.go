package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/quartet/pkg/ports"
)

// Provider names accepted by New.
const (
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config selects and configures a generator backend.
type Config struct {
	// Provider is mock, openai, or ollama. Empty means mock.
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// New builds the configured generator.
func New(cfg Config) (ports.Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderMock:
		return NewMock(), nil
	case ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case ProviderOllama:
		return NewOllama(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
