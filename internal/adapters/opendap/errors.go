package opendap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// apiError represents a non-success response from the DAP server.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("opendap: %s (status %d)", e.Message, e.StatusCode)
}

// transient reports whether a retry may succeed.
func (e *apiError) transient() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// formatError is returned when a response body cannot be decoded.
type formatError struct {
	Message string
}

func (e *formatError) Error() string {
	return fmt.Sprintf("opendap: malformed response: %s", e.Message)
}

// ClientError is the error handed to consumers of the client.
type ClientError struct {
	Message    string
	StatusCode int
	retryable  bool
	err        error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("opendap client: %s", e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.err
}

// Retryable reports whether the failure was transient (network trouble,
// throttling or a server-side error) as opposed to a rejected request.
func (e *ClientError) Retryable() bool {
	return e.retryable
}

// toClientError wraps an internal error into a ClientError for external consumers.
func toClientError(err error, context string) error {
	if err == nil {
		return nil
	}

	clientErr := &ClientError{
		Message:   fmt.Sprintf("%s: %v", context, err),
		retryable: isTransient(err),
		err:       err,
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		clientErr.StatusCode = apiErr.StatusCode
	}
	return clientErr
}

func isTransient(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.transient()
	}
	var fmtErr *formatError
	if errors.As(err, &fmtErr) {
		return false
	}
	if errors.Is(err, errUnsupportedType) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Anything else is a transport failure.
	return true
}
