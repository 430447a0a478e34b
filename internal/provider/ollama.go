package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// OllamaConfig configures a local Ollama backend.
type OllamaConfig struct {
	BaseURL        string
	Model          string
	Timeout        time.Duration
	ProbeTimeout   time.Duration
	StaticModels   []string
	RequestsPerMin int
}

// OllamaClient speaks Ollama's native generate protocol. Local inference
// carries no per-token cost, so Cost is always zero.
type OllamaClient struct {
	baseURL      string
	model        string
	httpClient   *http.Client
	probeTimeout time.Duration
	staticModels []string
	limiter      *rate.Limiter
	logger       *slog.Logger
}

func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}
	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = 120
	}

	return &OllamaClient{
		baseURL: baseURL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		probeTimeout: probeTimeout,
		staticModels: cfg.StaticModels,
		limiter:      rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		logger:       slog.Default().With("component", "ollama_client"),
	}
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c *OllamaClient) Generate(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limit wait failed: %w", err)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Stream: false,
		Options: ollamaOptions{
			NumPredict:  req.MaxTokens,
			Temperature: req.Temperature,
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	c.logger.Debug("sending generate request",
		"model", model,
		"prompt_length", len(req.Prompt),
		"max_tokens", req.MaxTokens)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeoutErr(err) {
			return Response{}, NewError("ollama", 0, ErrTimeout)
		}
		return Response{}, NewError("ollama", 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, NewError("ollama", resp.StatusCode, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return Response{}, NewError("ollama", resp.StatusCode,
			fmt.Errorf("unexpected status: %s", string(respBody)))
	}

	var generated ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &generated); err != nil {
		return Response{}, NewError("ollama", resp.StatusCode, fmt.Errorf("parsing response: %w", err))
	}

	latency := time.Since(start)
	tokens := generated.PromptEvalCount + generated.EvalCount

	c.logger.Info("generate request succeeded",
		"model", generated.Model,
		"total_tokens", tokens,
		"duration_ms", latency.Milliseconds())

	return Response{
		Content:    generated.Response,
		Provider:   "ollama",
		Model:      generated.Model,
		TokensUsed: tokens,
		Cost:       0,
		Latency:    latency,
	}, nil
}

func (c *OllamaClient) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("availability probe failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.staticCatalog(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.staticCatalog(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return c.staticCatalog(err)
	}

	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

func (c *OllamaClient) staticCatalog(cause error) ([]string, error) {
	if len(c.staticModels) > 0 {
		c.logger.Warn("live model query failed, using static catalog", "error", cause)
		return append([]string(nil), c.staticModels...), nil
	}
	return nil, NewError("ollama", 0, cause)
}

func isTimeoutErr(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
