package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineError_Error(t *testing.T) {
	plain := New(CodeValidationRejected, "candidate rejected")
	assert.Equal(t, "VALIDATION_REJECTED: candidate rejected", plain.Error())

	wrapped := Wrap(errors.New("socket closed"), CodeConnectionFailed, "acquire failed")
	assert.Equal(t, "CONNECTION_FAILED: acquire failed (caused by: socket closed)", wrapped.Error())
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeInternal, "ignored"))
	assert.Nil(t, Wrapf(nil, CodeInternal, "ignored %d", 1))
}

func TestWrap_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(cause, CodeExecutionFailed, "query failed")
	assert.ErrorIs(t, err, cause)
}

func TestIs_ComparesByCode(t *testing.T) {
	err := New(CodeRetryExhausted, "gave up after three attempts")
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.NotErrorIs(t, err, ErrSemanticMiss)
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"direct pipeline error", New(CodeSemanticMiss, "m"), CodeSemanticMiss},
		{"wrapped in fmt", fmt.Errorf("outer: %w", ErrResourceExhausted), CodeResourceExhausted},
		{"plain error defaults to internal", errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetCode(tt.err))
		})
	}
}

func TestIsCode(t *testing.T) {
	assert.True(t, IsCode(ErrDeadlineExceeded, CodeDeadlineExceeded))
	assert.False(t, IsCode(ErrDeadlineExceeded, CodeConnectionFailed))
	assert.False(t, IsCode(errors.New("boom"), CodeInternal))
}

func TestWithDetail(t *testing.T) {
	err := New(CodeNotFound, "backend not registered").
		WithDetail("backend_id", "duckdb-main").
		WithDetail("known", 2)

	require.NotNil(t, err.Details)
	assert.Equal(t, "duckdb-main", err.Details["backend_id"])
	assert.Equal(t, 2, err.Details["known"])
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"timeout", errors.New("i/o timeout"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"wrapped network failure", Wrap(errors.New("network is unreachable"), CodeConnectionFailed, "acquire"), true},
		{"resource exhausted never retries", Wrap(errors.New("timeout waiting for connection"), CodeResourceExhausted, "pool"), false},
		{"validation rejection never retries", New(CodeValidationRejected, "timeout column unknown"), false},
		{"syntax error", errors.New("syntax error at or near FROM"), false},
		{"missing relation", errors.New(`relation "orders" does not exist`), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
