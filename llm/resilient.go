package llm

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ResilientConfig 弹性装饰器配置。
type ResilientConfig struct {
	// 单次调用超时（0 表示不额外限制）
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout"`
	// 每秒请求数上限（0 表示不限流）
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	// 突发容量
	Burst int `yaml:"burst" json:"burst"`
}

// DefaultResilientConfig 返回默认弹性配置。
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		CallTimeout:       30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             10,
	}
}

// Resilient wraps a Client with a per-call timeout and a local rate
// limiter. Stage-level fallbacks stay in the callers; this layer only
// normalizes transport behavior so every stage sees the same envelope.
type Resilient struct {
	inner   Client
	cfg     ResilientConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewResilient 创建弹性装饰器。inner 为 nil 时所有调用返回
// ErrProviderUnavailable，调用方据此走降级路径。
func NewResilient(inner Client, cfg ResilientConfig, logger *zap.Logger) *Resilient {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Resilient{
		inner:   inner,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger.With(zap.String("component", "resilient_llm")),
	}
}

func (r *Resilient) Name() string {
	if r.inner == nil {
		return "unconfigured"
	}
	return r.inner.Name()
}

// Complete 透传补全请求，附加限流与超时。
func (r *Resilient) Complete(ctx context.Context, prompt string) (string, error) {
	if r.inner == nil {
		return "", &Error{
			Code:       ErrProviderUnavailable,
			Message:    "no language model client configured",
			HTTPStatus: http.StatusServiceUnavailable,
		}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", &Error{Code: ErrRateLimited, Message: err.Error(), HTTPStatus: http.StatusTooManyRequests, Retryable: true}
		}
	}

	callCtx := ctx
	if r.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := r.inner.Complete(callCtx, prompt)
	if err != nil {
		r.logger.Warn("completion failed",
			zap.String("provider", r.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", err
	}
	return out, nil
}
