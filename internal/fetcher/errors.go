package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/drfirst/go-summaryview/internal/observability/metrics"
	"github.com/drfirst/go-summaryview/pkg/circuitbreaker"
)

// MissingPatientIDMessage is shown when a lookup is triggered without an id.
const MissingPatientIDMessage = "Please enter a Patient ID"

// ValidationError rejects a lookup before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// HTTPError is a non-success status from the summary endpoint.
type HTTPError struct {
	StatusCode int
	// Diagnostics is the first OperationOutcome issue of the error body,
	// when the upstream sent one.
	Diagnostics string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error! Status: %d", e.StatusCode)
}

// DecodeError is a 2xx response whose body is not a summary bundle.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// Outcome classifies a fetch error for metrics and audit records.
func Outcome(err error) string {
	var (
		validationErr *ValidationError
		httpErr       *HTTPError
		decodeErr     *DecodeError
	)
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &validationErr):
		return metrics.OutcomeValidation
	case errors.As(err, &httpErr):
		return metrics.OutcomeHTTPError
	case errors.As(err, &decodeErr):
		return metrics.OutcomeDecode
	case errors.Is(err, circuitbreaker.ErrOpen):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeTransport
	}
}

// StatusCode returns the upstream status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// countsAgainstUpstream reports whether err indicates an unhealthy upstream.
// A 4xx is an answer about the patient, not a sign the backend is down, and
// a caller that went away says nothing about the backend at all.
func countsAgainstUpstream(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return true
}
