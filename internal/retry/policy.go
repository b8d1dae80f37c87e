// Package retry implements the bounded retry / dead-letter policy applied to
// record processing. Errors are dispatched on their domain kind: retryable
// failures get exponential backoff up to a configured attempt budget, fatal
// failures stop immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gosuda/casebridge/internal/domain"
)

// Policy bounds the retry behaviour for one logical operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the configured defaults: three attempts, doubling
// from 200ms, capped at 5s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// ExhaustedError wraps the last failure after the attempt budget ran out.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Do runs op, retrying retryable failures with exponential backoff. A fatal
// (non-retryable) error is returned as-is after the first occurrence; a
// retryable error that survives the attempt budget is wrapped in
// ExhaustedError carrying the attempt count for the dead-letter entry.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !domain.IsRetryable(err) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return &ExhaustedError{Attempts: attempt, Last: err}
		}

		delay := p.backoff(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// backoff doubles the base delay per attempt, capped at MaxDelay.
func (p Policy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Attempts extracts the attempt count recorded by Do: the budget when
// exhausted, otherwise a single attempt.
func Attempts(err error) int {
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return ex.Attempts
	}
	return 1
}
