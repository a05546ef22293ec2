package inference

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoModel is returned by NewClient when no model is configured.
	ErrNoModel = errors.New("inference: model required")

	// ErrModelNotFound is returned by Health when the server does not list the model.
	ErrModelNotFound = errors.New("inference: model not found")

	// ErrProviderUnavailable is returned when there is no provider to ask.
	ErrProviderUnavailable = errors.New("inference: provider unavailable")
)

// APIError is a non-2xx answer from a chat server.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the server's error text, or the raw body.
	Message string

	// Code is the OpenAI-style error code, if any.
	Code string

	// Endpoint is the base URL of the server that answered.
	Endpoint string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "inference [%s]: %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

// IsUnauthorized reports a rejected API key.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsRetryable reports rate limiting and server-side failures.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// EndpointError ties a transport or decoding failure to the server it
// came from.
type EndpointError struct {
	Endpoint string
	Err      error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Endpoint, e.Err)
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}

// WrapError attaches endpoint to err. A nil err stays nil.
func WrapError(endpoint string, err error) error {
	if err == nil {
		return nil
	}
	return &EndpointError{Endpoint: endpoint, Err: err}
}

// ChainError collects the failure of every endpoint in a Chain, in
// the order they were tried.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "inference chain: no endpoints tried"
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("inference chain: %d endpoint(s) failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes every endpoint error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
