// Package config loads the service configuration from a YAML file.
//
// Every field has a working default, so a missing file (or an empty
// one) yields a runnable in-memory setup. Values from the file are
// layered over the defaults, never replacing them wholesale.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvConfig names the environment variable the CLI consults when no
	// --config flag is given.
	EnvConfig = "QUARTET_CONFIG"

	// DefaultPath is tried when neither the flag nor the env var is set.
	DefaultPath = "quartet.yaml"

	defaultLLMTimeout = 120 * time.Second
)

// Config is the root of the configuration file.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	LLM     LLMConfig     `yaml:"llm" json:"llm"`
	Packer  PackerConfig  `yaml:"packer" json:"packer"`
	Prompts PromptsConfig `yaml:"prompts" json:"prompts"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host      string   `yaml:"host" json:"host"`
	Port      int      `yaml:"port" json:"port"`
	AuthToken string   `yaml:"auth_token" json:"auth_token"`
	PacingMs  int      `yaml:"pacing_ms" json:"pacing_ms"`
	CORS      []string `yaml:"cors" json:"cors"`
}

// Addr returns the host:port pair the server binds to.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Pacing returns the per-token streaming delay.
func (c ServerConfig) Pacing() time.Duration {
	if c.PacingMs < 0 {
		return 0
	}
	return time.Duration(c.PacingMs) * time.Millisecond
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is one of "memory", "redis" or "sqlite".
	Backend string       `yaml:"backend" json:"backend"`
	Redis   RedisConfig  `yaml:"redis" json:"redis"`
	SQLite  SQLiteConfig `yaml:"sqlite" json:"sqlite"`

	// EncryptionKey seals message content, summaries and suggestions
	// at rest. Base64 of exactly 32 bytes; empty disables encryption.
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`

	// EncryptionFallbackKeys are previous keys tried on decryption,
	// enabling key rotation without re-encrypting stored data.
	EncryptionFallbackKeys []string `yaml:"encryption_fallback_keys" json:"encryption_fallback_keys"`

	// PIIPatterns are regular expressions masked out of content before
	// it is persisted.
	PIIPatterns []string `yaml:"pii_patterns" json:"pii_patterns"`
}

// RedisConfig configures the redis store.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
	// TTL is a duration string ("24h", "30m"). Empty means keys never
	// expire.
	TTL string `yaml:"ttl" json:"ttl"`
}

// TTLDuration parses the TTL field. Empty or malformed values mean no
// expiry.
func (c RedisConfig) TTLDuration() time.Duration {
	return parseDuration(c.TTL, 0)
}

// SQLiteConfig configures the sqlite store.
type SQLiteConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// LLMConfig selects and configures the text generation provider.
type LLMConfig struct {
	// Provider is one of "mock", "openai" or "ollama".
	Provider string       `yaml:"provider" json:"provider"`
	OpenAI   OpenAIConfig `yaml:"openai" json:"openai"`
	Ollama   OllamaConfig `yaml:"ollama" json:"ollama"`
}

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	APIKey  string `yaml:"api_key" json:"api_key"`
	Model   string `yaml:"model" json:"model"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

// TimeoutDuration parses the Timeout field, falling back to 120s.
func (c OpenAIConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, defaultLLMTimeout)
}

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	URL     string `yaml:"url" json:"url"`
	Model   string `yaml:"model" json:"model"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

// TimeoutDuration parses the Timeout field, falling back to 120s.
func (c OllamaConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, defaultLLMTimeout)
}

// PackerConfig tunes how much history is replayed into each prompt.
type PackerConfig struct {
	RecentTurns         int `yaml:"recent_turns" json:"recent_turns"`
	TokenBudget         int `yaml:"token_budget" json:"token_budget"`
	SummaryTargetTokens int `yaml:"summary_target_tokens" json:"summary_target_tokens"`
}

// PromptsConfig points at an optional on-disk prompt template
// directory. Empty means the embedded templates only.
type PromptsConfig struct {
	Dir string `yaml:"dir" json:"dir"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Default returns a configuration that runs entirely in memory with the
// mock provider. Every Load call starts from this.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8000,
			AuthToken: "devkey",
			PacingMs:  50,
			CORS:      []string{"*"},
		},
		Store: StoreConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "quartet:",
			},
			SQLite: SQLiteConfig{
				DataDir: "./data",
			},
		},
		LLM: LLMConfig{
			Provider: "mock",
			OpenAI: OpenAIConfig{
				Timeout: "120s",
			},
			Ollama: OllamaConfig{
				URL:     "http://localhost:11434",
				Timeout: "120s",
			},
		},
		Packer: PackerConfig{
			RecentTurns:         10,
			TokenBudget:         3000,
			SummaryTargetTokens: 500,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the file at path and layers it over Default. A missing
// file is not an error; the defaults are returned as-is. The result is
// validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ResolvePath picks the config file location: the explicit flag value
// wins, then the QUARTET_CONFIG environment variable, then DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env
	}
	return DefaultPath
}

// Validate checks cross-field constraints that yaml parsing cannot.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.PacingMs < 0 {
		return fmt.Errorf("server.pacing_ms must not be negative")
	}

	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	case "sqlite":
		if c.Store.SQLite.DataDir == "" {
			return fmt.Errorf("store.sqlite.data_dir is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q (expected memory, redis or sqlite)", c.Store.Backend)
	}

	for _, raw := range append([]string{c.Store.EncryptionKey}, c.Store.EncryptionFallbackKeys...) {
		if raw == "" {
			continue
		}
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return fmt.Errorf("store encryption key: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("store encryption key must decode to 32 bytes, got %d", len(key))
		}
	}
	for _, p := range c.Store.PIIPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("store.pii_patterns: %w", err)
		}
	}

	switch c.LLM.Provider {
	case "mock", "openai":
	case "ollama":
		if c.LLM.Ollama.URL == "" {
			return fmt.Errorf("llm.ollama.url is required for the ollama provider")
		}
	default:
		return fmt.Errorf("unknown llm provider %q (expected mock, openai or ollama)", c.LLM.Provider)
	}

	if c.Packer.RecentTurns < 1 {
		return fmt.Errorf("packer.recent_turns must be at least 1")
	}
	if c.Packer.TokenBudget < 1 {
		return fmt.Errorf("packer.token_budget must be at least 1")
	}
	if c.Packer.SummaryTargetTokens < 1 {
		return fmt.Errorf("packer.summary_target_tokens must be at least 1")
	}

	for name, value := range map[string]string{
		"store.redis.ttl":    c.Store.Redis.TTL,
		"llm.openai.timeout": c.LLM.OpenAI.Timeout,
		"llm.ollama.timeout": c.LLM.Ollama.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
