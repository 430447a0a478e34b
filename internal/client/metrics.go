package client

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// Metrics tracks request outcomes keyed by (provider, model, status). All
// counters are lock-free on the hot path; the map itself is guarded only on
// first insertion of a key.
type Metrics struct {
	mu       sync.RWMutex
	requests map[string]*atomic.Int64
	tokens   map[string]*atomic.Int64

	CacheHits   atomic.Int64
	TotalCostMu sync.Mutex
	totalCost   float64
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests: make(map[string]*atomic.Int64),
		tokens:   make(map[string]*atomic.Int64),
	}
}

func metricKey(providerName, model, status string) string {
	return fmt.Sprintf("%s/%s/%s", providerName, model, status)
}

// RecordRequest counts one completed provider call.
func (m *Metrics) RecordRequest(providerName, model, status string, tokensUsed int, cost float64) {
	key := metricKey(providerName, model, status)
	m.counter(m.requests, key).Inc()
	m.counter(m.tokens, key).Add(int64(tokensUsed))

	if cost != 0 {
		m.TotalCostMu.Lock()
		m.totalCost += cost
		m.TotalCostMu.Unlock()
	}
}

// RecordCacheHit counts a request served without a provider call.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// Requests returns the request count for a (provider, model, status) triple.
func (m *Metrics) Requests(providerName, model, status string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.requests[metricKey(providerName, model, status)]; ok {
		return c.Load()
	}
	return 0
}

// TotalRequests sums request counts across all keys.
func (m *Metrics) TotalRequests() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, c := range m.requests {
		total += c.Load()
	}
	return total
}

// TotalCost reports the accumulated provider spend.
func (m *Metrics) TotalCost() float64 {
	m.TotalCostMu.Lock()
	defer m.TotalCostMu.Unlock()
	return m.totalCost
}

// Snapshot copies every counter for reporting.
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.requests)+1)
	for key, c := range m.requests {
		out[key] = c.Load()
	}
	out["cache_hits"] = m.CacheHits.Load()
	return out
}

func (m *Metrics) counter(table map[string]*atomic.Int64, key string) *atomic.Int64 {
	m.mu.RLock()
	c, ok := table[key]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := table[key]; ok {
		return c
	}
	c = atomic.NewInt64(0)
	table[key] = c
	return c
}
