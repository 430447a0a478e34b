package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIConfig configures an OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Timeout        time.Duration
	ProbeTimeout   time.Duration
	CostPerKTokens float64
	StaticModels   []string
	RequestsPerMin int
}

// OpenAIClient speaks the OpenAI chat-completions protocol through the
// official client library and normalizes results to Response.
type OpenAIClient struct {
	api            *openai.Client
	model          string
	timeout        time.Duration
	probeTimeout   time.Duration
	costPerKTokens float64
	staticModels   []string
	limiter        *rate.Limiter
	logger         *slog.Logger
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}
	apiConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}

	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = 60
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}

	return &OpenAIClient{
		api:            openai.NewClientWithConfig(apiConfig),
		model:          cfg.Model,
		timeout:        cfg.Timeout,
		probeTimeout:   probeTimeout,
		costPerKTokens: cfg.CostPerKTokens,
		staticModels:   cfg.StaticModels,
		limiter:        rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		logger:         slog.Default().With("component", "openai_client"),
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limit wait failed: %w", err)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	c.logger.Debug("sending chat completion request",
		"model", model,
		"prompt_length", len(req.Prompt),
		"max_tokens", req.MaxTokens)

	resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	latency := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Response{}, NewError("openai", 0, ErrTimeout)
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
				return Response{}, NewError("openai", apiErr.HTTPStatusCode, ErrRateLimited)
			}
			return Response{}, NewError("openai", apiErr.HTTPStatusCode, err)
		}
		return Response{}, NewError("openai", 0, err)
	}

	if len(resp.Choices) == 0 {
		return Response{}, NewError("openai", 0, errors.New("no choices in response"))
	}

	tokens := resp.Usage.TotalTokens
	c.logger.Info("chat completion succeeded",
		"model", resp.Model,
		"total_tokens", tokens,
		"duration_ms", latency.Milliseconds())

	return Response{
		Content:    resp.Choices[0].Message.Content,
		Provider:   "openai",
		Model:      resp.Model,
		TokensUsed: tokens,
		Cost:       float64(tokens) / 1000.0 * c.costPerKTokens,
		Latency:    latency,
	}, nil
}

// IsAvailable probes the models endpoint with a short deadline. Any failure
// means unavailable; the probe never errors.
func (c *OpenAIClient) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	_, err := c.api.ListModels(probeCtx)
	if err != nil {
		c.logger.Debug("availability probe failed", "error", err)
		return false
	}
	return true
}

func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		if len(c.staticModels) > 0 {
			c.logger.Warn("live model query failed, using static catalog", "error", err)
			return append([]string(nil), c.staticModels...), nil
		}
		return nil, NewError("openai", 0, err)
	}

	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.ID)
	}
	return models, nil
}
