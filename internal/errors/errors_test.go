package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SetsDefaultSeverity(t *testing.T) {
	err := New(ErrInvariantViolation, "overfill detected")
	assert.Equal(t, SeverityCritical, err.Severity)
	assert.Equal(t, ErrInvariantViolation, err.Code)
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrTransientStore, "read buy book")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrTransientStore, "noop"))
}

func TestIs_MatchesCode(t *testing.T) {
	err := New(ErrOrderNotFound, "order missing")
	assert.True(t, Is(err, ErrOrderNotFound))
	assert.False(t, Is(err, ErrTimeout))
}

func TestCode_NonMatchCoreErrorReturnsEmpty(t *testing.T) {
	assert.Equal(t, ErrorCode(""), Code(errors.New("plain error")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrTransientStore, "x")))
	assert.True(t, IsRetryable(New(ErrTimeout, "x")))
	assert.False(t, IsRetryable(New(ErrOrderNotFound, "x")))
}

func TestIsCritical(t *testing.T) {
	assert.True(t, IsCritical(New(ErrOverfill, "x")))
	assert.False(t, IsCritical(New(ErrPublishFailed, "x")))
}

func TestWithDetail_Attaches(t *testing.T) {
	err := New(ErrCrossedMarket, "crossed").WithDetail("symbol", "BTC-USDT")
	assert.Equal(t, "BTC-USDT", err.Details["symbol"])
}
