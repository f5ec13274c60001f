package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", ErrConfiguration.WithMessage("webhook url is empty"))

	assert.True(t, Is(err, ErrConfiguration))
	assert.False(t, Is(err, ErrTransport))
	assert.Equal(t, "CONFIGURATION_ERROR: webhook url is empty", ErrConfiguration.WithMessage("webhook url is empty").Error())
}

func TestError_WithDetailDoesNotShareMaps(t *testing.T) {
	base := ErrTransport.WithDetail("transport", "webhook")
	derived := base.WithDetail("status", 500)

	assert.Len(t, base.Details, 1)
	assert.Len(t, derived.Details, 2)
	assert.Empty(t, ErrTransport.Details)
}

func TestError_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		retryable bool
	}{
		{name: "transport", err: ErrTransport, retryable: true},
		{name: "configuration", err: ErrConfiguration, retryable: false},
		{name: "malformed", err: ErrMalformedEvent, retryable: false},
		{name: "permission", err: ErrPermissionDenied, retryable: false},
		{name: "forced fatal", err: ErrTransport.AsFatal(), retryable: false},
		{name: "forced retryable", err: ErrConfiguration.AsRetryable(), retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.err.IsRetryable())
			assert.Equal(t, !tt.retryable, tt.err.IsFatal())
		})
	}
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(stderrors.New("plain"))
	assert.Equal(t, "INTERNAL_ERROR", resp["error_code"])
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(stderrors.New("plain")))

	resp = ToErrorResponse(ErrMalformedEvent.WithDetail("field", "sender"))
	assert.Equal(t, "MALFORMED_EVENT", resp["error_code"])
	assert.Equal(t, http.StatusBadRequest, ToHTTPStatus(ErrMalformedEvent))
}

func TestRecoverPanic(t *testing.T) {
	assert.NoError(t, RecoverPanic(nil))

	err := RecoverPanic("transport exploded")
	require.Error(t, err)

	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.IsFatal())
	assert.Equal(t, true, appErr.Details["panic"])
}

func TestToErrorResponse_HidesStackTrace(t *testing.T) {
	resp := ToErrorResponse(RecoverPanic("boom"))
	details, ok := resp["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, details["panic"])
	assert.NotContains(t, details, "stack_trace")
}

func TestError_FatalCausePropagates(t *testing.T) {
	err := ErrTransport.WithCause(ErrMalformedEvent)
	assert.True(t, err.IsFatal())
	assert.False(t, ErrTransport.WithCause(stderrors.New("reset")).IsFatal())
}
