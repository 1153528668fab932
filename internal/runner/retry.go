package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/quantford/tradepilot/internal/domain"
	"go.uber.org/zap"
)

// RetryWithBackoff runs fn up to cfg.Retry.MaxRetries times, sleeping
// min(baseDelay * 2^(attempt-1), maxDelay) between tries. One
// autocorrect_attempt event is appended per failed attempt; the last one is
// marked failed when the budget is exhausted and the final error is
// returned. Meant for individual flaky sub-operations, never whole phases.
func (r *Runner) RetryWithBackoff(ctx context.Context, name string, fn func() (interface{}, error)) (interface{}, error) {
	maxRetries := r.cfg.Retry.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		val, err := fn()
		if err == nil {
			return val, nil
		}
		lastErr = err

		status := "retrying"
		level := domain.LevelWarning
		if attempt == maxRetries {
			status = "failed"
			level = domain.LevelError
		}
		r.appendEvent(ctx, &domain.Event{
			Type:    domain.EventTypeAutocorrectAttempt,
			Level:   level,
			Message: fmt.Sprintf("%s attempt %d/%d failed", name, attempt, maxRetries),
			Status:  status,
			Error:   err.Error(),
			Details: map[string]interface{}{
				"operation":   name,
				"attempt":     attempt,
				"max_retries": maxRetries,
			},
		})
		r.logger.Warn("sub-operation failed",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt < maxRetries {
			r.sleep(r.backoffDelay(attempt))
		}
	}
	return nil, fmt.Errorf("%s failed after %d attempts: %w", name, maxRetries, lastErr)
}

func (r *Runner) backoffDelay(attempt int) time.Duration {
	delay := r.cfg.Retry.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= r.cfg.Retry.MaxDelay {
			return r.cfg.Retry.MaxDelay
		}
	}
	if delay > r.cfg.Retry.MaxDelay {
		return r.cfg.Retry.MaxDelay
	}
	return delay
}
