package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mbianchi/document-worker/internal/infrastructure/resilience"
)

// apiError carries the HTTP status so the classifier can tell transient
// upstream trouble from permanent request problems. A zero status means
// the request never completed.
type apiError struct {
	status int
	cause  error
}

func (e *apiError) Error() string {
	if e.status == 0 {
		return fmt.Sprintf("openrouter: %v", e.cause)
	}
	return fmt.Sprintf("openrouter: status %d: %v", e.status, e.cause)
}

func (e *apiError) Unwrap() error { return e.cause }

func classifyAPIError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var api *apiError
	if errors.As(err, &api) {
		transient := api.status == 0 ||
			api.status == http.StatusTooManyRequests ||
			api.status >= http.StatusInternalServerError
		return resilience.ErrorClassification{Retryable: transient, RecordFailure: transient}
	}

	// Malformed model output, retrying rarely helps.
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
