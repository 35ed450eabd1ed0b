package temporalx

import (
	"context"
	"time"

	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

// Backoff doubles from Base up to Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

var defaultBackoff = Backoff{Base: 250 * time.Millisecond, Max: 5 * time.Second}

func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 1; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Retry runs fn until it succeeds, returns an error retryable rejects, or
// maxWait has passed. A nil retryable retries every error. The last error is
// returned when the budget runs out.
func Retry(ctx context.Context, log *logger.Logger, what string, maxWait time.Duration, retryable func(error) bool, fn func(attempt int) error) error {
	deadline := time.Now().Add(maxWait)
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				log.Info(what+" succeeded", "attempts", attempt)
			}
			return nil
		}
		if ctx.Err() != nil || maxWait <= 0 || time.Now().After(deadline) || (retryable != nil && !retryable(err)) {
			return err
		}
		delay := defaultBackoff.Delay(attempt)
		log.Warn(what+" failed, retrying", "attempt", attempt, "retry_in", delay.String(), "error", err)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
