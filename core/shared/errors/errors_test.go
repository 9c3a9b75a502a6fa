package errors_test

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yetii/yetii/core/shared/errors"
)

func TestNewAppError(t *testing.T) {
	tests := []struct {
		name    string
		code    errors.ErrorCode
		message string
		err     error
		text    string
	}{
		{
			name:    "without cause",
			code:    errors.ErrCodeQueryNotFound,
			message: "query 'q1' not found",
			text:    "QUERY_NOT_FOUND: query 'q1' not found",
		},
		{
			name:    "with cause",
			code:    errors.ErrCodeConnectionFailed,
			message: "connect 'db1'",
			err:     stderrors.New("dial tcp: refused"),
			text:    "CONNECTION_FAILED: connect 'db1' (dial tcp: refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := errors.NewAppError(tt.code, tt.message, tt.err)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.message, appErr.Message)
			assert.Equal(t, tt.text, appErr.Error())
			assert.Equal(t, tt.err, appErr.Unwrap())
		})
	}
}

func TestCode_WalksWrappedChain(t *testing.T) {
	inner := errors.NewAppError(errors.ErrCodeBind, "bad value", nil)
	wrapped := fmt.Errorf("query 'q1': %w", inner)

	assert.Equal(t, errors.ErrCodeBind, errors.Code(wrapped))
	assert.True(t, errors.HasCode(wrapped, errors.ErrCodeBind))
	assert.Equal(t, errors.ErrorCode(""), errors.Code(stderrors.New("plain")))
	assert.False(t, errors.HasCode(nil, errors.ErrCodeBind))
}

func TestIsConnectionFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"connection failed", errors.NewAppError(errors.ErrCodeConnectionFailed, "x", nil), true},
		{"driver unavailable", errors.NewAppError(errors.ErrCodeDriverUnavailable, "x", nil), true},
		{"bind", errors.NewAppError(errors.ErrCodeBind, "x", nil), false},
		{"timeout", errors.NewAppError(errors.ErrCodeTimeout, "x", nil), false},
		{"execution", errors.NewAppError(errors.ErrCodeExecutionFailed, "x", nil), false},
		{"plain", stderrors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, errors.IsConnectionFatal(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected errors.ErrorCode
	}{
		{"deadline", context.DeadlineExceeded, errors.ErrCodeTimeout},
		{"canceled", fmt.Errorf("query: %w", context.Canceled), errors.ErrCodeCanceled},
		{"bad conn", driver.ErrBadConn, errors.ErrCodeConnectionFailed},
		{"eof", io.EOF, errors.ErrCodeConnectionFailed},
		{"rejected", stderrors.New("syntax error at or near SELEC"), errors.ErrCodeExecutionFailed},
		{"already classified", errors.NewAppError(errors.ErrCodeBind, "x", nil), errors.ErrCodeBind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, errors.Code(errors.Classify("execute", tt.err)))
		})
	}

	assert.NoError(t, errors.Classify("execute", nil))
}
