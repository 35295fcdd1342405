package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vantra-labs/matchcore/internal/errors"
)

func TestRetryWaiter_SucceedsFirstAttempt(t *testing.T) {
	w := NewRetryWaiter(time.Millisecond, 5, zap.NewNop())
	calls := 0
	err := w.Do(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWaiter_RetriesThenSucceeds(t *testing.T) {
	w := NewRetryWaiter(time.Millisecond, 5, zap.NewNop())
	calls := 0
	err := w.Do(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWaiter_ExhaustsAttempts(t *testing.T) {
	w := NewRetryWaiter(time.Millisecond, 3, zap.NewNop())
	calls := 0
	err := w.Do(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrLockContention, errors.Code(err))
	assert.Equal(t, 3, calls)
}

func TestRetryWaiter_NonRetryableErrorStopsImmediately(t *testing.T) {
	w := NewRetryWaiter(time.Millisecond, 5, zap.NewNop())
	calls := 0
	wantErr := errors.New(errors.ErrOrderNotFound, "gone")
	err := w.Do(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return false, wantErr
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrOrderNotFound, errors.Code(err))
	assert.Equal(t, 1, calls)
}
