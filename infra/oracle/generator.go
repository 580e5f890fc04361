// Package oracle implements the text Generator behind the decision oracle
// using an OpenAI-compatible chat completions endpoint (OpenAI, OpenRouter,
// Ollama, vLLM, Gemini's OpenAI endpoint).
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	coreoracle "github.com/kilianp07/busalloc/core/oracle"
	"github.com/kilianp07/busalloc/infra/logger"
)

const (
	// DefaultBaseURL is used when no endpoint is configured.
	DefaultBaseURL = "https://api.openai.com/v1"
	// APIKeyEnv is read when the configuration carries no key.
	APIKeyEnv = "OPENAI_API_KEY"

	maxResponseSize = 1 << 20
)

// RetryConfig controls retries of transient failures.
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	BackoffBase       time.Duration `json:"backoff_base"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	MaxBackoff        time.Duration `json:"max_backoff"`
}

// DefaultRetryConfig returns the retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Second,
	}
}

// Config locates the model endpoint.
type Config struct {
	BaseURL     string      `json:"base_url"`
	Model       string      `json:"model"`
	APIKey      string      `json:"api_key"`
	Temperature *float64    `json:"temperature"`
	MaxTokens   int         `json:"max_tokens"`
	Retry       RetryConfig `json:"retry"`
}

// ChatGenerator calls a chat completions endpoint. It implements
// core/oracle.Generator.
type ChatGenerator struct {
	url    string
	cfg    Config
	apiKey string
	http   *http.Client
	log    logger.Logger
}

var _ coreoracle.Generator = (*ChatGenerator)(nil)

// Option customizes a ChatGenerator.
type Option func(*ChatGenerator)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(g *ChatGenerator) {
		if c != nil {
			g.http = c
		}
	}
}

// NewChatGenerator validates cfg and returns a generator.
func NewChatGenerator(cfg Config, opts ...Option) (*ChatGenerator, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("oracle model is required")
	}
	def := DefaultRetryConfig()
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = def.MaxAttempts
	}
	if cfg.Retry.BackoffBase <= 0 {
		cfg.Retry.BackoffBase = def.BackoffBase
	}
	if cfg.Retry.BackoffMultiplier < 1 {
		cfg.Retry.BackoffMultiplier = def.BackoffMultiplier
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = def.MaxBackoff
	}
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(APIKeyEnv)
	}
	g := &ChatGenerator{
		url:    buildURL(cfg.BaseURL),
		cfg:    cfg,
		apiKey: key,
		http:   &http.Client{},
		log:    logger.New("oracle"),
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

func buildURL(base string) string {
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimSuffix(base, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate sends the prompts and returns the first choice. Transient
// failures are retried with exponential backoff until ctx is done.
func (g *ChatGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model:       g.cfg.Model,
		Messages:    []chatMessage{{Role: "system", Content: system}, {Role: "user", Content: user}},
		Temperature: g.cfg.Temperature,
	}
	if g.cfg.MaxTokens > 0 {
		req.MaxTokens = &g.cfg.MaxTokens
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", NewFatalError(fmt.Errorf("encode request: %w", err))
	}

	var lastErr error
	for attempt := 1; attempt <= g.cfg.Retry.MaxAttempts; attempt++ {
		out, err := g.do(ctx, body)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if IsFatal(err) || ctx.Err() != nil {
			return "", err
		}
		if attempt < g.cfg.Retry.MaxAttempts {
			backoff := g.backoff(attempt)
			g.log.Warnf("oracle request failed (attempt %d/%d), retrying in %s: %v", attempt, g.cfg.Retry.MaxAttempts, backoff, err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return "", lastErr
}

// backoff grows exponentially with +/-25% jitter.
func (g *ChatGenerator) backoff(attempt int) time.Duration {
	m := 1.0
	for i := 1; i < attempt; i++ {
		m *= g.cfg.Retry.BackoffMultiplier
	}
	d := time.Duration(float64(g.cfg.Retry.BackoffBase) * m)
	if d > g.cfg.Retry.MaxBackoff {
		d = g.cfg.Retry.MaxBackoff
	}
	jitter := float64(d) * 0.25 * (rand.Float64()*2 - 1)
	return d + time.Duration(jitter)
}

func (g *ChatGenerator) do(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", NewFatalError(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return "", NewTransientError(fmt.Errorf("oracle request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", NewTransientError(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPError(resp.StatusCode, data)
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", NewFatalError(fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return "", NewFatalError(fmt.Errorf("no choices in response"))
	}
	g.log.Debugw("oracle response", map[string]any{
		"model":  out.Model,
		"tokens": out.Usage.TotalTokens,
		"finish": out.Choices[0].FinishReason,
	})
	return out.Choices[0].Message.Content, nil
}

func classifyHTTPError(status int, body []byte) error {
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	err := fmt.Errorf("oracle API error (status %d): %s", status, msg)
	if status == http.StatusTooManyRequests || status >= 500 {
		return NewTransientError(err)
	}
	return NewFatalError(err)
}
