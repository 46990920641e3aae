package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrNoCredentials = errors.New("no refresh token found")
var ErrNotFound = errors.New("not found")
var ErrInvalidRequest = errors.New("invalid request")

// Transport status markers that do not come from a server response.
const (
	StatusNetworkError = 0
	StatusTimeout      = http.StatusRequestTimeout
)

// APIError is the uniform failure produced by the transport client.
// Status is the HTTP status, StatusNetworkError when no response was
// received, or StatusTimeout when the request deadline fired.
type APIError struct {
	Status  int
	Message string
	// Data is the raw response body, when there was one.
	Data []byte

	cause error
}

// NewAPIError builds an APIError that keeps cause for errors.Unwrap.
func NewAPIError(status int, message string, cause error) *APIError {
	return &APIError{Status: status, Message: message, cause: cause}
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// Transient reports whether the failure happened before a server verdict.
func (e *APIError) Transient() bool {
	return e.Status == StatusNetworkError || e.Status == StatusTimeout
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ValidationError reports a request body rejected by server-side binding.
type ValidationError struct {
	Fields []string
	Msg    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidRequest, e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}
