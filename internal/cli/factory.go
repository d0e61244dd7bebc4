package cli

import (
	"encoding/base64"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aretw0/quartet"
	"github.com/aretw0/quartet/internal/config"
	"github.com/aretw0/quartet/internal/llm"
	"github.com/aretw0/quartet/internal/prompts"
	memstore "github.com/aretw0/quartet/pkg/adapters/memory"
	redisstore "github.com/aretw0/quartet/pkg/adapters/redis"
	sqlitestore "github.com/aretw0/quartet/pkg/adapters/sqlite"
	"github.com/aretw0/quartet/pkg/persistence/middleware"
	"github.com/aretw0/quartet/pkg/ports"
)

// BuildStore constructs the persistence backend the configuration
// selects, wrapped in the configured persistence middlewares. The
// locker is non-nil only for backends that support cross-replica
// locking (redis).
func BuildStore(cfg config.StoreConfig) (ports.Store, ports.DistributedLocker, error) {
	store, locker, err := buildBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	mws, err := storeMiddlewares(cfg)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return middleware.Chain(mws...)(store), locker, nil
}

func buildBackend(cfg config.StoreConfig) (ports.Store, ports.DistributedLocker, error) {
	switch cfg.Backend {
	case "", "memory":
		return memstore.NewStore(), nil, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		storeOpts := []redisstore.Option{redisstore.WithTTL(cfg.Redis.TTLDuration())}
		if cfg.Redis.KeyPrefix != "" {
			storeOpts = append(storeOpts, redisstore.WithPrefix(cfg.Redis.KeyPrefix))
		}
		store := redisstore.NewFromClient(client, storeOpts...)
		return store, redisstore.NewLocker(client, cfg.Redis.KeyPrefix), nil
	case "sqlite":
		store, err := sqlitestore.New(cfg.SQLite.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// storeMiddlewares translates the masking and encryption settings.
// Masking runs before sealing, so ciphertext never holds unmasked PII.
func storeMiddlewares(cfg config.StoreConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.PIIPatterns))
	}
	if cfg.EncryptionKey != "" {
		active, err := decodeStoreKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("store.encryption_key: %w", err)
		}
		fallbacks := make([][]byte, 0, len(cfg.EncryptionFallbackKeys))
		for _, raw := range cfg.EncryptionFallbackKeys {
			key, err := decodeStoreKey(raw)
			if err != nil {
				return nil, fmt.Errorf("store.encryption_fallback_keys: %w", err)
			}
			fallbacks = append(fallbacks, key)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallbacks,
		}))
	}
	return mws, nil
}

func decodeStoreKey(raw string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// BuildEngine wires an Engine from the configuration. The caller owns
// the returned store and closes it after the engine is done.
func BuildEngine(cfg *config.Config, logger *slog.Logger, extra ...quartet.Option) (*quartet.Engine, ports.Store, error) {
	store, locker, err := BuildStore(cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	gen, err := llm.New(generatorConfig(cfg.LLM))
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	opts := []quartet.Option{
		quartet.WithStore(store),
		quartet.WithGenerator(gen),
		quartet.WithLogger(logger),
		quartet.WithPace(cfg.Server.Pacing()),
		quartet.WithRecentTurns(cfg.Packer.RecentTurns),
		quartet.WithTokenBudget(cfg.Packer.TokenBudget),
		quartet.WithSummaryTarget(cfg.Packer.SummaryTargetTokens),
	}
	if locker != nil {
		opts = append(opts, quartet.WithLocker(locker))
	}
	if cfg.Prompts.Dir != "" {
		library, err := prompts.NewLibrary(prompts.WithDir(cfg.Prompts.Dir))
		if err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("load prompts: %w", err)
		}
		opts = append(opts, quartet.WithPrompts(library))
	}
	opts = append(opts, extra...)

	eng, err := quartet.New(opts...)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return eng, store, nil
}

func generatorConfig(cfg config.LLMConfig) llm.Config {
	switch cfg.Provider {
	case llm.ProviderOpenAI:
		return llm.Config{
			Provider: cfg.Provider,
			BaseURL:  cfg.OpenAI.BaseURL,
			APIKey:   cfg.OpenAI.APIKey,
			Model:    cfg.OpenAI.Model,
			Timeout:  cfg.OpenAI.TimeoutDuration(),
		}
	case llm.ProviderOllama:
		return llm.Config{
			Provider: cfg.Provider,
			BaseURL:  cfg.Ollama.URL,
			Model:    cfg.Ollama.Model,
			Timeout:  cfg.Ollama.TimeoutDuration(),
		}
	default:
		return llm.Config{Provider: cfg.Provider}
	}
}
