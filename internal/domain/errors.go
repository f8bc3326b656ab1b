package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the bridge.
var (
	// ErrProviderUnavailable covers transport failures, non-success HTTP statuses
	// and malformed handshake responses from the chat provider.
	ErrProviderUnavailable = fmt.Errorf("provider unavailable")
	// ErrUnauthenticated is returned when a call needs a session token and none is held.
	ErrUnauthenticated = fmt.Errorf("not authenticated")
	// ErrSendRejected is returned when the provider answers a send with a non-zero code.
	ErrSendRejected = fmt.Errorf("send rejected")
	// ErrInvalidPayload marks an inbound entry that lacks required fields.
	ErrInvalidPayload = fmt.Errorf("invalid inbound payload")
	// ErrConfigurationMissing is returned when the dispatch boundary or the
	// account credential is not available.
	ErrConfigurationMissing = fmt.Errorf("configuration missing")
	// ErrLoginTimeout is returned when the QR handshake is not confirmed in time.
	ErrLoginTimeout = fmt.Errorf("login timed out")
	// ErrConfigLoad wraps configuration file failures.
	ErrConfigLoad = fmt.Errorf("failed to load configuration")
	// ErrDecryption is returned when an enc: value cannot be decrypted.
	ErrDecryption = fmt.Errorf("decryption failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Client.Send")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// SendRejectedError carries the application status returned by the provider
// for a rejected send. It unwraps to ErrSendRejected.
type SendRejectedError struct {
	Code    int
	Message string
}

func (e *SendRejectedError) Error() string {
	return fmt.Sprintf("send message failed: [%d] %s", e.Code, e.Message)
}

func (e *SendRejectedError) Unwrap() error { return ErrSendRejected }

// ErrorCode is a machine-parseable error category for status reporting.
type ErrorCode string

const (
	CodeUnknown              ErrorCode = "UNKNOWN"
	CodeProviderUnavailable  ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeUnauthenticated      ErrorCode = "UNAUTHENTICATED"
	CodeSendRejected         ErrorCode = "SEND_REJECTED"
	CodeInvalidPayload       ErrorCode = "INVALID_PAYLOAD"
	CodeConfigurationMissing ErrorCode = "CONFIGURATION_MISSING"
	CodeLoginTimeout         ErrorCode = "LOGIN_TIMEOUT"
	CodeConfigLoad           ErrorCode = "CONFIG_LOAD"
	CodeDecryption           ErrorCode = "DECRYPTION"
	CodeCanceled             ErrorCode = "CANCELED"
	CodeDeadlineExceeded     ErrorCode = "DEADLINE_EXCEEDED"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrProviderUnavailable:  CodeProviderUnavailable,
	ErrUnauthenticated:      CodeUnauthenticated,
	ErrSendRejected:         CodeSendRejected,
	ErrInvalidPayload:       CodeInvalidPayload,
	ErrConfigurationMissing: CodeConfigurationMissing,
	ErrLoginTimeout:         CodeLoginTimeout,
	ErrConfigLoad:           CodeConfigLoad,
	ErrDecryption:           CodeDecryption,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDeadlineExceeded
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
