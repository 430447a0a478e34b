package provider

import (
	"context"
	"time"
)

// Request describes one generation call. It is immutable once issued; the
// universal client and the router only ever read it.
type Request struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Model        string
	Provider     string
}

// Response is the normalized shape every backend maps its wire format onto.
type Response struct {
	Content    string
	Provider   string
	Model      string
	TokensUsed int
	Cost       float64
	Latency    time.Duration
}

// Client wraps one LLM backend. IsAvailable is a lightweight liveness probe:
// it must complete within its own short timeout and never returns an error,
// only false.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	IsAvailable(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
}

// Capability holds the routing-relevant configuration of one provider.
type Capability struct {
	Name       string
	CostWeight float64 // lower is cheaper
	Quality    float64 // 0-10, used to pick the premium provider
	Priority   int     // fallback ordering, lower first
	MaxTokens  int
	Local      bool // no per-token cost, preferred for small tasks
}
