package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"lib2notes/internal/library"
)

// Classification decides whether a failed attempt is worth repeating
type Classification int

const (
	// Transient failures are likely to succeed on retry
	Transient Classification = iota
	// Fatal failures will not be helped by retrying
	Fatal
)

// Classifier maps an error to a Classification
type Classifier func(error) Classification

// Executor runs fallible operations with bounded exponential backoff
type Executor struct {
	logger *zap.Logger

	// sleep is replaceable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates a retry executor
func NewExecutor(logger *zap.Logger) *Executor {
	return &Executor{
		logger: logger,
		sleep:  sleepContext,
	}
}

// Run attempts op up to maxRetries times. After each failure classify decides
// whether to retry; a Transient error waits baseDelay*2^attempt before the
// next attempt. A Fatal error, or the final attempt's error, is returned
// unchanged so callers can inspect the original cause. The returned count is
// the number of retries performed (0 when the first attempt succeeds).
func (e *Executor) Run(ctx context.Context, op func(ctx context.Context) error, classify Classifier, maxRetries int, baseDelay time.Duration) (int, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if classify == nil {
		classify = ClassifyDefault
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		if classify(lastErr) == Fatal || attempt == maxRetries-1 {
			return attempt, lastErr
		}

		delay := baseDelay * time.Duration(1<<uint(attempt))
		e.logger.Warn("Attempt failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(lastErr),
		)

		if err := e.sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}

	return maxRetries - 1, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClassifyDefault recognizes timeout, rate-limit, connection-reset, and
// 5xx-class conditions as Transient. Structured codes are consulted first;
// message text matching is the fallback for collaborators that only report
// strings.
func ClassifyDefault(err error) Classification {
	if err == nil {
		return Fatal
	}

	// Run-level cancellation must not be retried; a per-call deadline is a timeout
	if errors.Is(err, context.Canceled) {
		return Fatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}

	var apiErr *library.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 || apiErr.StatusCode == 429 {
			return Transient
		}
		return Fatal
	}

	errStr := strings.ToLower(err.Error())
	transient := strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "temporary") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") ||
		strings.Contains(errStr, "overloaded")

	if transient {
		return Transient
	}
	return Fatal
}
