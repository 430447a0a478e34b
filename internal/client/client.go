package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vampirenirmal/novelforge/internal/provider"
)

// ErrAllProvidersFailed is returned when every candidate in the fallback
// sequence has been skipped or has failed. The caller owns any further
// retry policy; the universal client does not retry past the sequence.
var ErrAllProvidersFailed = errors.New("all providers failed")

// AllProvidersError carries the last underlying failure for diagnostics.
type AllProvidersError struct {
	Attempted int
	LastErr   error
}

func (e *AllProvidersError) Error() string {
	return fmt.Sprintf("all providers failed (%d attempted): %v", e.Attempted, e.LastErr)
}

func (e *AllProvidersError) Unwrap() error {
	// Report as ErrAllProvidersFailed to errors.Is while keeping the cause
	// reachable through the struct field.
	return ErrAllProvidersFailed
}

// UniversalClient is the single entry point for all generation calls. It
// applies response caching, routes to a provider, walks the fallback
// sequence on failure, and records metrics. Safe for concurrent use by many
// sessions; within one session callers issue requests sequentially.
type UniversalClient struct {
	registry *provider.Registry
	router   *provider.Router
	cache    Cache
	metrics  *Metrics
	logger   *slog.Logger
}

// Option customizes a UniversalClient.
type Option func(*UniversalClient)

func WithCache(cache Cache) Option {
	return func(c *UniversalClient) {
		c.cache = cache
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *UniversalClient) {
		c.logger = logger
	}
}

func New(registry *provider.Registry, opts ...Option) *UniversalClient {
	c := &UniversalClient{
		registry: registry,
		router:   provider.NewRouter(registry),
		cache:    NewMemoryCache(time.Hour, 1024),
		metrics:  NewMetrics(),
		logger:   slog.Default().With("component", "universal_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Metrics exposes the shared counters for reporting.
func (c *UniversalClient) Metrics() *Metrics {
	return c.metrics
}

// Generate serves req from cache when possible, otherwise selects a
// provider, walks its fallback sequence, caches the first success, and
// records metrics. Exhausting the sequence yields AllProvidersError.
func (c *UniversalClient) Generate(ctx context.Context, req provider.Request) (provider.Response, error) {
	key := Fingerprint(req)

	if cached, ok := c.cache.Get(ctx, key); ok {
		c.metrics.RecordCacheHit()
		c.logger.Debug("serving from cache",
			"key", key[:12],
			"prompt_length", len(req.Prompt))
		return cached, nil
	}

	primary := req.Provider
	if primary == "" {
		selected, err := c.router.SelectProvider(ctx, req)
		if err != nil {
			return provider.Response{}, err
		}
		primary = selected
	}

	sequence := c.router.FallbackSequence(primary)

	var lastErr error
	attempted := 0
	for _, name := range sequence {
		candidate, ok := c.registry.Get(name)
		if !ok {
			c.logger.Warn("provider in fallback sequence not configured", "provider", name)
			continue
		}
		if !candidate.IsAvailable(ctx) {
			c.logger.Warn("provider unavailable, skipping", "provider", name)
			// Keep a real failure as the cause when one exists; the
			// unavailability only stands in when nothing was ever called.
			if lastErr == nil {
				lastErr = provider.NewError(name, 0, provider.ErrUnavailable)
			}
			continue
		}

		attempted++
		start := time.Now()
		resp, err := candidate.Generate(ctx, req)
		if err != nil {
			lastErr = err
			c.metrics.RecordRequest(name, req.Model, "error", 0, 0)
			c.logger.Warn("provider call failed, trying next candidate",
				"provider", name,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err)
			continue
		}

		c.cache.Set(ctx, key, resp)
		c.metrics.RecordRequest(resp.Provider, resp.Model, "ok", resp.TokensUsed, resp.Cost)
		c.logger.Info("generation succeeded",
			"provider", resp.Provider,
			"model", resp.Model,
			"tokens", resp.TokensUsed,
			"duration_ms", resp.Latency.Milliseconds())
		return resp, nil
	}

	c.logger.Error("fallback sequence exhausted",
		"primary", primary,
		"sequence_length", len(sequence),
		"attempted", attempted,
		"last_error", lastErr)

	return provider.Response{}, &AllProvidersError{Attempted: attempted, LastErr: lastErr}
}
