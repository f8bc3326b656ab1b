package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Client.Send", ErrUnauthenticated, "account 'ops'")
	want := "Client.Send: account 'ops': not authenticated"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Client.StartLogin", ErrProviderUnavailable, "")
	want := "Client.StartLogin: provider unavailable"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Processor.Process", ErrConfigurationMissing, "dispatcher")
	if !errors.Is(err, ErrConfigurationMissing) {
		t.Error("errors.Is should match ErrConfigurationMissing")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewDomainError("Client.Send", ErrProviderUnavailable, "dial"))
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "Client.Send" {
		t.Errorf("Op = %q, want %q", de.Op, "Client.Send")
	}
}

func TestSendRejectedError(t *testing.T) {
	err := &SendRejectedError{Code: 40001, Message: "bad content"}
	assert.Equal(t, "send message failed: [40001] bad content", err.Error())
	assert.True(t, errors.Is(err, ErrSendRejected))

	wrapped := WrapOp("Client.Send", err)
	var sre *SendRejectedError
	require.True(t, errors.As(wrapped, &sre))
	assert.Equal(t, 40001, sre.Code)
}

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeProviderUnavailable, ErrorCodeOf(ErrProviderUnavailable))
	assert.Equal(t, CodeUnauthenticated, ErrorCodeOf(ErrUnauthenticated))
	assert.Equal(t, CodeLoginTimeout, ErrorCodeOf(ErrLoginTimeout))
}

func TestErrorCodeOf_DomainError(t *testing.T) {
	err := NewDomainError("Monitor.Run", ErrConfigurationMissing, "no token")
	assert.Equal(t, CodeConfigurationMissing, ErrorCodeOf(err))
	assert.Equal(t, CodeConfigurationMissing, err.Code())
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("tick: %w", &SendRejectedError{Code: 1, Message: "x"})
	assert.Equal(t, CodeSendRejected, ErrorCodeOf(wrapped))
}

func TestErrorCodeOf_Context(t *testing.T) {
	assert.Equal(t, CodeCanceled, ErrorCodeOf(fmt.Errorf("fetch: %w", context.Canceled)))
	assert.Equal(t, CodeDeadlineExceeded, ErrorCodeOf(context.DeadlineExceeded))
}

func TestErrorCodeOf_UnknownError(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
}

func TestErrorCodeOf_Nil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestAllSentinelsHaveCodes(t *testing.T) {
	require.NotEmpty(t, errorCodeMap)
	for sentinel, code := range errorCodeMap {
		assert.NotEmpty(t, code, "sentinel %v has empty code", sentinel)
		assert.NotEqual(t, CodeUnknown, code, "sentinel %v maps to UNKNOWN", sentinel)
	}
}

func TestWrapOp_Nil(t *testing.T) {
	assert.Nil(t, WrapOp("anything", nil))
}

func TestWrapOp_Chain(t *testing.T) {
	inner := WrapOp("inner", ErrInvalidPayload)
	outer := WrapOp("outer", inner)
	assert.Equal(t, "outer: inner: invalid inbound payload", outer.Error())
	assert.True(t, errors.Is(outer, ErrInvalidPayload))
	assert.Equal(t, CodeInvalidPayload, ErrorCodeOf(outer))
}
