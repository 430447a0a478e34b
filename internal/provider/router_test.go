package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type stubClient struct {
	name      string
	available bool
	generate  func(ctx context.Context, req Request) (Response, error)
}

func (s *stubClient) Generate(ctx context.Context, req Request) (Response, error) {
	if s.generate != nil {
		return s.generate(ctx, req)
	}
	return Response{Content: "ok", Provider: s.name}, nil
}

func (s *stubClient) IsAvailable(ctx context.Context) bool {
	return s.available
}

func (s *stubClient) ListModels(ctx context.Context) ([]string, error) {
	return []string{"stub-model"}, nil
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	r.Register(&stubClient{name: "openai", available: true}, Capability{
		Name: "openai", CostWeight: 0.6, Quality: 8.5, Priority: 1,
	})
	r.Register(&stubClient{name: "ollama", available: true}, Capability{
		Name: "ollama", Quality: 6.0, Priority: 2, Local: true,
	})
	r.Register(&stubClient{name: "custom", available: true}, Capability{
		Name: "custom", CostWeight: 0.2, Quality: 7.0, Priority: 3,
	})
	return r
}

func TestSelectProvider(t *testing.T) {
	router := NewRouter(testRegistry(t))
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "small task goes local",
			req:  Request{Prompt: "Summarize this.", MaxTokens: 500},
			want: "ollama",
		},
		{
			name: "long prompt goes to highest quality",
			req:  Request{Prompt: strings.Repeat("background material ", 300), MaxTokens: 500},
			want: "openai",
		},
		{
			name: "large output goes to highest quality",
			req:  Request{Prompt: strings.Repeat("x", 2000), MaxTokens: 4000},
			want: "openai",
		},
		{
			name: "creative signal overrides size",
			req:  Request{Prompt: strings.Repeat("x", 1500) + " write a vivid scene", MaxTokens: 2500},
			want: "openai",
		},
		{
			name: "mid-size defaults to cheapest",
			req:  Request{Prompt: strings.Repeat("x", 2000), MaxTokens: 2500},
			want: "ollama",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := router.SelectProvider(ctx, tt.req)
			if err != nil {
				t.Fatalf("SelectProvider: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectProviderNoneAvailable(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubClient{name: "openai", available: false}, Capability{Name: "openai", Priority: 1})

	_, err := NewRouter(r).SelectProvider(context.Background(), Request{Prompt: "hi", MaxTokens: 100})
	if !errors.Is(err, ErrNoProviderAvailable) {
		t.Fatalf("want ErrNoProviderAvailable, got %v", err)
	}
}

func TestSelectProviderSkipsUnavailable(t *testing.T) {
	r := testRegistry(t)
	r.Register(&stubClient{name: "ollama", available: false}, Capability{
		Name: "ollama", Quality: 6.0, Priority: 2, Local: true,
	})

	got, err := NewRouter(r).SelectProvider(context.Background(), Request{Prompt: "hi", MaxTokens: 100})
	if err != nil {
		t.Fatalf("SelectProvider: %v", err)
	}
	// With the local provider down, the cheapest remote wins the small task.
	if got != "custom" {
		t.Errorf("got %q, want custom", got)
	}
}

func TestFallbackSequence(t *testing.T) {
	router := NewRouter(testRegistry(t))

	t.Run("primary first then priority order", func(t *testing.T) {
		got := router.FallbackSequence("custom")
		want := []string{"custom", "openai", "ollama"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("covers every provider exactly once", func(t *testing.T) {
		got := router.FallbackSequence("openai")
		if len(got) != 3 {
			t.Fatalf("sequence length %d, want 3", len(got))
		}
		seen := map[string]bool{}
		for _, name := range got {
			if seen[name] {
				t.Errorf("provider %q appears twice", name)
			}
			seen[name] = true
		}
	})

	t.Run("unknown primary falls back to priority order", func(t *testing.T) {
		got := router.FallbackSequence("nonexistent")
		want := []string{"openai", "ollama", "custom"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestRegistryNamesOrder(t *testing.T) {
	names := testRegistry(t).Names()
	want := []string{"openai", "ollama", "custom"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", names, want)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", NewError("openai", 429, ErrRateLimited), true},
		{"server error", NewError("custom", 503, errors.New("bad gateway")), true},
		{"timeout", fmt.Errorf("call: %w", ErrTimeout), true},
		{"client error", NewError("openai", 400, errors.New("bad request")), false},
		{"context canceled", context.Canceled, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
