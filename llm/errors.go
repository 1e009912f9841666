package llm

import (
	"errors"
	"fmt"
	"strings"
)

// BackendError is the typed error for model-backend failures. Retryable
// distinguishes transient faults (timeouts, rate limiting, 5xx) from fatal
// ones (authentication, malformed requests); only transient errors are
// eligible for the retry policy.
type BackendError struct {
	Message    string
	Provider   string
	StatusCode int
	Retryable  bool
	Cause      error
}

func (e *BackendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Provider, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}

// TransientErr builds a retryable BackendError for transport-level faults
// that carry no HTTP status (network errors, truncated bodies).
func TransientErr(provider, message string, cause error) *BackendError {
	return &BackendError{Message: message, Provider: provider, Retryable: true, Cause: cause}
}

// FatalErr builds a non-retryable BackendError.
func FatalErr(provider, message string, cause error) *BackendError {
	return &BackendError{Message: message, Provider: provider, Retryable: false, Cause: cause}
}

// retryable400Markers are substrings of 400-class bodies that indicate a
// transient upstream condition rather than a malformed request. OpenRouter
// reports some provider-side routing failures this way.
var retryable400Markers = []string{
	"developer instruction is not enabled",
	"provider returned error",
	"no providers available",
	"temporarily unavailable",
	"upstream error",
	"try again",
}

// ErrorFromStatusCode classifies an HTTP failure status into the
// transient/fatal taxonomy. 408/409/425/429 and all 5xx are transient;
// 400 is transient only when the body carries a known upstream marker;
// everything else in the 4xx range is fatal.
func ErrorFromStatusCode(statusCode int, detail, provider string) *BackendError {
	be := &BackendError{
		Message:    detail,
		Provider:   provider,
		StatusCode: statusCode,
	}
	switch {
	case statusCode == 408 || statusCode == 409 || statusCode == 425 || statusCode == 429:
		be.Retryable = true
	case statusCode >= 500:
		be.Retryable = true
	case statusCode == 400:
		lowered := strings.ToLower(detail)
		for _, marker := range retryable400Markers {
			if strings.Contains(lowered, marker) {
				be.Retryable = true
				break
			}
		}
	}
	return be
}

// IsTransient reports whether err is a retryable backend error.
func IsTransient(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// IsFatal reports whether err is a backend error that must not be retried.
func IsFatal(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return !be.Retryable
	}
	return false
}
