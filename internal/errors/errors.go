// Package errors implements the structured error kinds matchcore's core
// uses at component boundaries (spec §7): ValidationError, ConflictError,
// TransientStoreError, InvariantViolation and PublishError, plus the
// domain-specific codes the matching algorithm and stores need.
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// ErrorCode identifies the kind of failure.
type ErrorCode string

const (
	// Inbound API (spec §7 "ValidationError")
	ErrInvalidOrder    ErrorCode = "INVALID_ORDER"
	ErrSymbolNotFound  ErrorCode = "SYMBOL_NOT_FOUND"
	ErrInvalidPrice    ErrorCode = "INVALID_PRICE"
	ErrInvalidQuantity ErrorCode = "INVALID_QUANTITY"
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Order lifecycle
	ErrOrderNotFound  ErrorCode = "ORDER_NOT_FOUND"
	ErrOrderTerminal  ErrorCode = "ORDER_TERMINAL"
	ErrLockContention ErrorCode = "LOCK_CONTENTION" // spec §7 "ConflictError"

	// Matching engine ("InvariantViolation")
	ErrCrossedMarket     ErrorCode = "CROSSED_MARKET"
	ErrOverfill          ErrorCode = "OVERFILL"
	ErrInvariantViolation ErrorCode = "INVARIANT_VIOLATION"

	// Datastore ("TransientStoreError")
	ErrTransientStore ErrorCode = "TRANSIENT_STORE_ERROR"
	ErrTimeout        ErrorCode = "TIMEOUT"

	// Event publisher ("PublishError")
	ErrPublishFailed ErrorCode = "PUBLISH_FAILED"
)

// Severity mirrors the teacher's ErrorSeverity ladder, collapsed to the
// four levels spec §7 references (CRITICAL maps to SeverityCritical).
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// MatchCoreError is the structured error type returned across component
// boundaries. It is a trim of the teacher's pkg/errors.TradSysError.
type MatchCoreError struct {
	Code      ErrorCode
	Message   string
	Severity  Severity
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
	File      string
	Line      int
}

func (e *MatchCoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message)
}

func (e *MatchCoreError) Unwrap() error { return e.Cause }

// WithDetail attaches a contextual key/value to the error.
func (e *MatchCoreError) WithDetail(key string, value interface{}) *MatchCoreError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a MatchCoreError with the default severity for its code.
func New(code ErrorCode, message string) *MatchCoreError {
	_, file, line, _ := runtime.Caller(1)
	return &MatchCoreError{
		Code:      code,
		Message:   message,
		Severity:  severityFor(code),
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
	}
}

// Newf creates a MatchCoreError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *MatchCoreError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a cause to a new MatchCoreError.
func Wrap(err error, code ErrorCode, message string) *MatchCoreError {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	return &MatchCoreError{
		Code:      code,
		Message:   message,
		Severity:  severityFor(code),
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
		Cause:     err,
	}
}

// Is reports whether err is a MatchCoreError with the given code.
func Is(err error, code ErrorCode) bool {
	var mce *MatchCoreError
	if As(err, &mce) {
		return mce.Code == code
	}
	return false
}

// As finds the first MatchCoreError in err's chain.
func As(err error, target **MatchCoreError) bool {
	if err == nil {
		return false
	}
	if mce, ok := err.(*MatchCoreError); ok {
		*target = mce
		return true
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return As(unwrapper.Unwrap(), target)
	}
	return false
}

// Code extracts the ErrorCode from err, or "" if not a MatchCoreError.
func Code(err error) ErrorCode {
	var mce *MatchCoreError
	if As(err, &mce) {
		return mce.Code
	}
	return ""
}

// IsRetryable reports whether the error kind should be retried by a caller
// (spec §7: TransientStoreError is the only retryable core error kind).
func IsRetryable(err error) bool {
	switch Code(err) {
	case ErrTransientStore, ErrTimeout:
		return true
	default:
		return false
	}
}

// IsCritical reports whether err requires a CRITICAL-level log per spec §7's
// InvariantViolation handling.
func IsCritical(err error) bool {
	var mce *MatchCoreError
	if As(err, &mce) {
		return mce.Severity == SeverityCritical
	}
	return false
}

func severityFor(code ErrorCode) Severity {
	switch code {
	case ErrInvariantViolation, ErrOverfill, ErrCrossedMarket:
		return SeverityCritical
	case ErrTransientStore, ErrTimeout, ErrLockContention:
		return SeverityHigh
	case ErrOrderNotFound, ErrSymbolNotFound, ErrOrderTerminal, ErrValidationFailed:
		return SeverityMedium
	case ErrPublishFailed:
		return SeverityLow
	default:
		return SeverityLow
	}
}
