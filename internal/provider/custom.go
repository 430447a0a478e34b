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

// CustomConfig configures a self-hosted OpenAI-compatible endpoint.
type CustomConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	ProbeTimeout   time.Duration
	CostPerKTokens float64
	StaticModels   []string
	RequestsPerMin int
}

// CustomClient targets any chat-completions compatible endpoint over raw
// HTTP. It covers fine-tuned or self-hosted deployments whose wire format
// follows the OpenAI shape but whose SDK support is absent.
type CustomClient struct {
	baseURL        string
	apiKey         string
	model          string
	httpClient     *http.Client
	probeTimeout   time.Duration
	costPerKTokens float64
	staticModels   []string
	limiter        *rate.Limiter
	logger         *slog.Logger
}

func NewCustomClient(cfg CustomConfig) *CustomClient {
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
		rpm = 60
	}

	return &CustomClient{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		httpClient:     &http.Client{Timeout: timeout},
		probeTimeout:   probeTimeout,
		costPerKTokens: cfg.CostPerKTokens,
		staticModels:   cfg.StaticModels,
		limiter:        rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		logger:         slog.Default().With("component", "custom_client"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

func (c *CustomClient) Generate(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limit wait failed: %w", err)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      false,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeoutErr(err) {
			return Response{}, NewError("custom", 0, ErrTimeout)
		}
		return Response{}, NewError("custom", 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, NewError("custom", resp.StatusCode, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Response{}, NewError("custom", resp.StatusCode, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, NewError("custom", resp.StatusCode,
			fmt.Errorf("unexpected status: %s", string(respBody)))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return Response{}, NewError("custom", resp.StatusCode, fmt.Errorf("parsing response: %w", err))
	}
	if completion.Error != nil {
		return Response{}, NewError("custom", resp.StatusCode,
			fmt.Errorf("API error: %s (code %s)", completion.Error.Message, completion.Error.Code))
	}
	if len(completion.Choices) == 0 {
		return Response{}, NewError("custom", resp.StatusCode, errors.New("no choices in response"))
	}

	latency := time.Since(start)
	tokens := completion.Usage.TotalTokens

	c.logger.Info("chat completion succeeded",
		"model", completion.Model,
		"total_tokens", tokens,
		"duration_ms", latency.Milliseconds())

	return Response{
		Content:    completion.Choices[0].Message.Content,
		Provider:   "custom",
		Model:      completion.Model,
		TokensUsed: tokens,
		Cost:       float64(tokens) / 1000.0 * c.costPerKTokens,
		Latency:    latency,
	}, nil
}

func (c *CustomClient) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
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

func (c *CustomClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.staticCatalog(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.staticCatalog(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return c.staticCatalog(err)
	}

	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

func (c *CustomClient) staticCatalog(cause error) ([]string, error) {
	if len(c.staticModels) > 0 {
		c.logger.Warn("live model query failed, using static catalog", "error", cause)
		return append([]string(nil), c.staticModels...), nil
	}
	return nil, NewError("custom", 0, cause)
}
