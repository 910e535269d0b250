package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OpenAIConfig configures the OpenAI-compatible chat completion adapter.
// Works against any endpoint speaking the /chat/completions dialect
// (OpenAI, DashScope, DeepSeek, local gateways).
type OpenAIConfig struct {
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	APIKey      string        `yaml:"api_key" json:"api_key"`
	Model       string        `yaml:"model" json:"model"`
	Temperature float32       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultOpenAIConfig returns the default adapter configuration. The API
// key always comes from deployment config; there is no sane default.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   2048,
		Timeout:     30 * time.Second,
	}
}

// OpenAIClient implements Client over an OpenAI-compatible HTTP API.
type OpenAIClient struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIClient creates a new OpenAI-compatible client instance.
func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "openai_client")),
	}
}

func (c *OpenAIClient) Name() string { return "openai_compatible" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a single-turn completion request and returns the text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &Error{
			Code:       ErrProviderUnavailable,
			Message:    "openai client: api key not configured",
			HTTPStatus: http.StatusServiceUnavailable,
			Provider:   c.Name(),
		}
	}

	body := chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/chat/completions", strings.TrimRight(c.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", &Error{Code: ErrUpstreamTimeout, Message: err.Error(), HTTPStatus: http.StatusGatewayTimeout, Retryable: true, Provider: c.Name()}
		}
		return "", &Error{Code: ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: c.Name()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &Error{Code: ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: c.Name()}
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.mapHTTPError(resp.StatusCode, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{Code: ErrUpstreamError, Message: fmt.Sprintf("decode chat response: %v", err), HTTPStatus: http.StatusBadGateway, Provider: c.Name()}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", &Error{Code: ErrEmptyCompletion, Message: "chat response contained no content", HTTPStatus: http.StatusBadGateway, Provider: c.Name()}
	}

	return parsed.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) mapHTTPError(status int, raw []byte) *Error {
	msg := string(raw)
	var er chatErrorResp
	if err := json.Unmarshal(raw, &er); err == nil && er.Error.Message != "" {
		msg = er.Error.Message
	}

	code := ErrUpstreamError
	retryable := false
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = ErrUnauthorized
	case status == http.StatusTooManyRequests:
		code = ErrRateLimited
		retryable = true
	case status == http.StatusBadRequest:
		code = ErrInvalidRequest
	case status >= 500:
		code = ErrUpstreamError
		retryable = true
	}

	c.logger.Warn("chat completion failed",
		zap.Int("status", status),
		zap.String("code", string(code)))

	return &Error{Code: code, Message: msg, HTTPStatus: status, Retryable: retryable, Provider: c.Name()}
}
