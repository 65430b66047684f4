package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
)

// RetryPolicy is the retry contract around every model call: on a rate-limit
// failure wait a fixed interval and try again, up to MaxRetries additional
// attempts. No jitter, no exponential growth. Any other error propagates
// immediately.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	Logger     *slog.Logger
}

const (
	defaultMaxRetries = 7
	defaultBackoff    = 15 * time.Second
)

func DefaultRetryPolicy(logger *slog.Logger) RetryPolicy {
	return RetryPolicy{
		MaxRetries: defaultMaxRetries,
		Backoff:    defaultBackoff,
		Logger:     logger,
	}
}

func (p RetryPolicy) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// withRetry runs call until it succeeds, fails with a non-rate-limit error,
// or the retry budget is spent. The last observed error is returned on
// exhaustion. The backoff sleep is context-aware so a request deadline cuts
// it short instead of blocking.
func withRetry[T any](ctx context.Context, p RetryPolicy, mode string, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		out, err := call()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsRateLimitError(err) || attempt == p.MaxRetries {
			return zero, err
		}
		p.logger().Warn("rate limit hit, retrying model call",
			"mode", mode,
			"attempt", attempt+1,
			"max_retries", p.MaxRetries,
			"wait", p.Backoff.String())
		if err := sleepContext(ctx, p.Backoff); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRateLimitError reports whether err signals an upstream rate limit. The
// API error status code is authoritative; the string checks catch wrapped
// transport errors that lost the typed error.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == http.StatusTooManyRequests
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

// IsBadRequestError reports whether err is a 400-class rejection, which the
// moderator converts to a deterministic policy-violation verdict.
func IsBadRequestError(err error) bool {
	if err == nil {
		return false
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == http.StatusBadRequest
	}
	return false
}
