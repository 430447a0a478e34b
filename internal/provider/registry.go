package provider

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Registry holds the configured providers for one universal client. It is an
// explicit object, constructed once and passed by reference, so every test
// can build an isolated registry with mock providers.
type Registry struct {
	mu           sync.RWMutex
	clients      map[string]Client
	capabilities map[string]Capability
	logger       *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		clients:      make(map[string]Client),
		capabilities: make(map[string]Capability),
		logger:       slog.Default().With("component", "provider_registry"),
	}
}

// Register adds a provider under cap.Name, replacing any previous entry.
func (r *Registry) Register(client Client, cap Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[cap.Name] = client
	r.capabilities[cap.Name] = cap
	r.logger.Debug("provider registered",
		"provider", cap.Name,
		"cost_weight", cap.CostWeight,
		"priority", cap.Priority)
}

// Get returns the client for name, or false if it was never configured.
func (r *Registry) Get(name string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// Capability returns the routing configuration for name.
func (r *Registry) Capability(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cap, ok := r.capabilities[name]
	return cap, ok
}

// Names returns all configured provider names sorted by fallback priority,
// ties broken by name for determinism.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := r.capabilities[names[i]].Priority, r.capabilities[names[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}

// Available probes every provider concurrently and returns the names that
// answered within the probe timeout, in priority order.
func (r *Registry) Available(ctx context.Context) []string {
	names := r.Names()

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var mu sync.Mutex
	up := make(map[string]bool, len(names))

	g, gctx := errgroup.WithContext(probeCtx)
	for _, name := range names {
		name := name
		client, ok := r.Get(name)
		if !ok {
			continue
		}
		g.Go(func() error {
			ok := client.IsAvailable(gctx)
			mu.Lock()
			up[name] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	available := make([]string, 0, len(names))
	for _, name := range names {
		if up[name] {
			available = append(available, name)
		}
	}

	r.logger.Debug("availability probe complete",
		"configured", len(names),
		"available", len(available))

	return available
}
