package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound           = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal           = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)

	ErrMalformedEvent   = NewError("MALFORMED_EVENT", "malformed source data", http.StatusBadRequest)
	ErrConfiguration    = NewError("CONFIGURATION_ERROR", "forwarding is not configured", http.StatusUnprocessableEntity)
	ErrTransport        = NewError("TRANSPORT_ERROR", "delivery failed", http.StatusBadGateway)
	ErrPermissionDenied = NewError("PERMISSION_DENIED", "message store access denied", http.StatusForbidden)
	ErrStopped          = NewError("STOPPED", "pipeline is shutting down", http.StatusServiceUnavailable)
)

// permanent lists codes that are fatal unless overridden.
var permanent = map[string]bool{
	ErrValidation.Code:       true,
	ErrNotFound.Code:         true,
	ErrMalformedEvent.Code:   true,
	ErrConfiguration.Code:    true,
	ErrPermissionDenied.Code: true,
}

// internalDetails never leave the process through an API response.
var internalDetails = map[string]bool{
	"stack_trace": true,
}

type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error
	fatal   *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: map[string]interface{}{},
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if m, ok := e.Details["message"].(string); ok && m != "" {
		msg = m
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether retrying cannot help. An explicit AsFatal/AsRetryable
// wins, then a classified cause, then the code.
func (e *Error) IsFatal() bool {
	if e.fatal != nil {
		return *e.fatal
	}
	var inner interface{ IsFatal() bool }
	if e.Cause != nil && errors.As(e.Cause, &inner) {
		return inner.IsFatal()
	}
	return permanent[e.Code]
}

func (e *Error) IsRetryable() bool {
	return !e.IsFatal()
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	err.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		err.Details[k] = v
	}
	err.Details[key] = value
	return &err
}

// WithMessage overrides the human readable message.
func (e *Error) WithMessage(msg string) *Error {
	return e.WithDetail("message", msg)
}

func (e *Error) AsRetryable() *Error {
	return e.withFatal(false)
}

func (e *Error) AsFatal() *Error {
	return e.withFatal(true)
}

func (e *Error) withFatal(fatal bool) *Error {
	err := *e
	err.fatal = &fatal
	return &err
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == target.Code
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}

	details := make(map[string]interface{}, len(appErr.Details))
	for k, v := range appErr.Details {
		if !internalDetails[k] {
			details[k] = v
		}
	}
	if len(details) > 0 {
		response["details"] = details
	}
	return response
}
