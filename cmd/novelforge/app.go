package main

import (
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/vampirenirmal/novelforge/internal/client"
	"github.com/vampirenirmal/novelforge/internal/config"
	"github.com/vampirenirmal/novelforge/internal/provider"
	"github.com/vampirenirmal/novelforge/internal/session"
	"github.com/vampirenirmal/novelforge/internal/storage"
)

// app wires configuration into the running pieces. Both serve and generate
// go through the same assembly.
type app struct {
	cfg      *config.Config
	client   *client.UniversalClient
	registry *provider.Registry
	store    storage.Store
	manager  *session.Manager
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	registry := buildRegistry(cfg)

	var opts []client.Option
	if cfg.Cache.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		opts = append(opts, client.WithCache(client.NewRedisCache(rdb, cfg.Cache.TTL.Duration)))
	} else {
		opts = append(opts, client.WithCache(client.NewMemoryCache(cfg.Cache.TTL.Duration, cfg.Cache.MaxEntries)))
	}
	uc := client.New(registry, opts...)

	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		client:   uc,
		registry: registry,
		store:    store,
		manager: session.NewManager(uc, store, cfg.Generation.MaxConcurrentSessions,
			session.WithQualityFloor(cfg.Generation.QualityFloor)),
	}, nil
}

func buildRegistry(cfg *config.Config) *provider.Registry {
	registry := provider.NewRegistry()

	if p := cfg.Providers.OpenAI; p.Enabled {
		registry.Register(provider.NewOpenAIClient(provider.OpenAIConfig{
			APIKey:         p.APIKey,
			BaseURL:        p.BaseURL,
			Model:          p.Model,
			Timeout:        p.Timeout(),
			CostPerKTokens: p.CostPerKTokens,
			RequestsPerMin: p.RequestsPerMinute,
		}), provider.Capability{
			Name:       "openai",
			CostWeight: p.CostPerKTokens,
			Quality:    p.Quality,
			Priority:   p.Priority,
			MaxTokens:  16384,
		})
	}
	if p := cfg.Providers.Ollama; p.Enabled {
		registry.Register(provider.NewOllamaClient(provider.OllamaConfig{
			BaseURL:        p.BaseURL,
			Model:          p.Model,
			Timeout:        p.Timeout(),
			RequestsPerMin: p.RequestsPerMinute,
		}), provider.Capability{
			Name:      "ollama",
			Quality:   p.Quality,
			Priority:  p.Priority,
			MaxTokens: 8192,
			Local:     true,
		})
	}
	if p := cfg.Providers.Custom; p.Enabled {
		registry.Register(provider.NewCustomClient(provider.CustomConfig{
			BaseURL:        p.BaseURL,
			APIKey:         p.APIKey,
			Model:          p.Model,
			Timeout:        p.Timeout(),
			CostPerKTokens: p.CostPerKTokens,
			RequestsPerMin: p.RequestsPerMinute,
		}), provider.Capability{
			Name:       "custom",
			CostWeight: p.CostPerKTokens,
			Quality:    p.Quality,
			Priority:   p.Priority,
			MaxTokens:  8192,
		})
	}

	return registry
}

func buildStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "filesystem":
		return storage.NewFileSystemStore(cfg.Storage.Dir), nil
	case "mysql":
		return storage.NewGormStore(cfg.Storage.MySQLDSN)
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
