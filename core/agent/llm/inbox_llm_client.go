// Package llm wraps the chat-completion backend behind the CompletionClient
// port. Groq and OpenAI share the same wire protocol, so one client covers
// both via the base URL.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"inbox_worker/pkg/apperr"
	"inbox_worker/pkg/logger"
)

const (
	DefaultModel       = "llama-3.3-70b-versatile"
	GroqBaseURL        = "https://api.groq.com/openai/v1"
	defaultMaxRetries  = 5
	defaultRetryDelay  = 2 * time.Second
	defaultTemperature = 0.7
)

type Client struct {
	client      *openai.Client
	model       string
	temperature float32

	maxRetries int
	retryDelay time.Duration

	// do and sleep are swappable for tests.
	do    func(ctx context.Context, prompt string) (string, error)
	sleep func(ctx context.Context, d time.Duration) error
}

type ClientConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // empty means the OpenAI default
	Temperature float64
	MaxRetries  int
}

// NewClient creates a Groq-backed client with default settings.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(ClientConfig{APIKey: apiKey, BaseURL: GroqBaseURL})
}

func NewClientWithConfig(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	c := &Client{
		client:      openai.NewClientWithConfig(apiCfg),
		model:       model,
		temperature: float32(temperature),
		maxRetries:  maxRetries,
		retryDelay:  defaultRetryDelay,
		sleep:       sleepCtx,
	}
	c.do = c.complete
	return c
}

// Complete sends one prompt and returns the model's text. Rate-limit
// responses are retried with doubling delay up to maxRetries attempts;
// every other failure returns immediately as a model error.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	delay := c.retryDelay
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		text, err := c.do(ctx, prompt)
		if err == nil {
			return text, nil
		}
		if !isRateLimit(err) {
			return "", apperr.ModelError(err)
		}
		if attempt == c.maxRetries {
			return "", apperr.RateLimited("completion model", err)
		}

		logger.WithFields(map[string]interface{}{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		}).Warn("completion rate limited, backing off")
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
	}
	return "", apperr.RateLimited("completion model", nil)
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// isRateLimit recognizes 429 responses from either backend.
func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate_limit") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "429")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
