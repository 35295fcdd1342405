package matching

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vantra-labs/matchcore/internal/errors"
)

// RetryWaiter bounds cancelOrder's retry against an order currently owned
// by a matching cycle (spec §6 cancelOrder: "retry a bounded number of
// times with backoff before surfacing ErrLockContention to the caller"),
// adapted from internal/trading/mitigation.RateLimiter's Wait/Execute
// shape — here the limiter paces *retries* rather than inbound calls.
type RetryWaiter struct {
	limiter     *rate.Limiter
	maxAttempts int
	logger      *zap.Logger
}

// NewRetryWaiter builds a RetryWaiter that paces at most one retry per
// interval, up to maxAttempts total attempts.
func NewRetryWaiter(interval time.Duration, maxAttempts int, logger *zap.Logger) *RetryWaiter {
	return &RetryWaiter{
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Do calls attempt up to maxAttempts times, waiting for the limiter
// between attempts, stopping as soon as attempt returns (true, nil)
// (meaning the caller's conditional update succeeded) or a non-retryable
// error. If every attempt is exhausted without success it returns the last
// attempt's outcome: errors.ErrLockContention if that attempt reported no
// update, or the retryable error it returned.
func (w *RetryWaiter) Do(ctx context.Context, attempt func(ctx context.Context) (bool, error)) error {
	var lastErr error

	for i := 0; i < w.maxAttempts; i++ {
		if i > 0 {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		ok, err := attempt(ctx)
		if err != nil {
			if !errors.IsRetryable(err) {
				return err
			}
			lastErr = err
			continue
		}
		if ok {
			return nil
		}
		lastErr = errors.New(errors.ErrLockContention, "order is locked by an in-flight matching cycle")
	}

	w.logger.Debug("retry attempts exhausted", zap.Int("maxAttempts", w.maxAttempts), zap.Error(lastErr))
	if lastErr != nil {
		return lastErr
	}
	return errors.New(errors.ErrLockContention, "order is locked by an in-flight matching cycle")
}
