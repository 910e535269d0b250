// Package llm abstracts the external language model behind a single
// capability interface. Every pipeline stage reaches the model through
// Client; stage-specific fallbacks live in the callers, transport
// resilience lives in the Resilient decorator.
package llm

import (
	"context"
)

// 统一的 LLM 错误码，用于对齐 HTTP 状态、可重试性与降级策略。
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "LLM_INVALID_REQUEST"      // 参数/格式错误
	ErrUnauthorized        ErrorCode = "LLM_UNAUTHORIZED"         // 未授权或密钥失效
	ErrRateLimited         ErrorCode = "LLM_RATE_LIMITED"         // 上游或本地限流
	ErrUpstreamTimeout     ErrorCode = "LLM_UPSTREAM_TIMEOUT"     // 上游超时
	ErrUpstreamError       ErrorCode = "LLM_UPSTREAM_ERROR"       // 上游 5xx/网络错误
	ErrEmptyCompletion     ErrorCode = "LLM_EMPTY_COMPLETION"     // 响应无有效内容
	ErrProviderUnavailable ErrorCode = "LLM_PROVIDER_UNAVAILABLE" // Provider 未配置或不可用
)

// Error 是 LLM 调用的统一错误类型。
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Client 定义了统一的补全接口。管道各阶段只依赖这一能力，
// 失败时由调用方退回各自文档化的默认值。
type Client interface {
	// Complete 发起一次同步补全请求，返回完整文本。
	Complete(ctx context.Context, prompt string) (string, error)

	// Name 返回 Client 的唯一标识。
	Name() string
}

// IsUnavailable reports whether err means the provider itself is missing
// or unreachable, as opposed to a malformed individual request.
func IsUnavailable(err error) bool {
	lerr, ok := err.(*Error)
	if !ok {
		return false
	}
	switch lerr.Code {
	case ErrProviderUnavailable, ErrUpstreamTimeout, ErrUpstreamError, ErrRateLimited:
		return true
	}
	return false
}
