package provider

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

const (
	shortPromptChars = 1000
	longPromptChars  = 5000
	smallMaxTokens   = 2000
	largeMaxTokens   = 3000
)

// creativeSignals mark prompts that warrant the highest-quality provider
// regardless of size.
var creativeSignals = []string{
	"creative", "imaginative", "poetic", "vivid", "literary",
	"novel", "story", "narrative", "chapter",
}

// Router maps a request onto a provider and computes fallback orderings.
// Decisions are deterministic given the registry's availability snapshot.
type Router struct {
	registry *Registry
	logger   *slog.Logger
}

func NewRouter(registry *Registry) *Router {
	return &Router{
		registry: registry,
		logger:   slog.Default().With("component", "router"),
	}
}

// SelectProvider picks the provider for req. Small tasks go to the cheapest
// local provider, large or creativity-signaling tasks go to the highest
// quality one, and everything else falls back to cost-ascending order over
// the currently available set.
func (r *Router) SelectProvider(ctx context.Context, req Request) (string, error) {
	available := r.registry.Available(ctx)
	if len(available) == 0 {
		return "", ErrNoProviderAvailable
	}

	promptLen := len(req.Prompt)

	var selected string
	switch {
	case promptLen < shortPromptChars && req.MaxTokens < smallMaxTokens:
		selected = r.cheapest(available)
	case promptLen > longPromptChars || req.MaxTokens > largeMaxTokens || hasCreativeSignal(req.Prompt):
		selected = r.highestQuality(available)
	default:
		selected = r.cheapest(available)
	}

	r.logger.Debug("provider selected",
		"provider", selected,
		"prompt_length", promptLen,
		"max_tokens", req.MaxTokens,
		"available", len(available))

	return selected, nil
}

// FallbackSequence returns the full ordered candidate list for a primary
// provider: primary first, then every other configured provider by priority.
// The sequence always covers the whole configured set exactly once.
func (r *Router) FallbackSequence(primary string) []string {
	names := r.registry.Names()

	sequence := make([]string, 0, len(names))
	if _, ok := r.registry.Get(primary); ok {
		sequence = append(sequence, primary)
	}
	for _, name := range names {
		if name != primary {
			sequence = append(sequence, name)
		}
	}
	return sequence
}

func (r *Router) cheapest(available []string) string {
	sorted := append([]string(nil), available...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, _ := r.registry.Capability(sorted[i])
		cj, _ := r.registry.Capability(sorted[j])
		// Local providers cost nothing per token and win small tasks.
		if ci.Local != cj.Local {
			return ci.Local
		}
		return ci.CostWeight < cj.CostWeight
	})
	return sorted[0]
}

func (r *Router) highestQuality(available []string) string {
	best := available[0]
	bestCap, _ := r.registry.Capability(best)
	for _, name := range available[1:] {
		cap, _ := r.registry.Capability(name)
		if cap.Quality > bestCap.Quality {
			best, bestCap = name, cap
		}
	}
	return best
}

func hasCreativeSignal(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, signal := range creativeSignals {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	return false
}
