package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInsufficientContent signals that nothing worth sending survived
// curation. It is fatal to the run but distinct from a transport or
// configuration failure.
var ErrInsufficientContent = errors.New("no content met curation thresholds")

// ValidationError reports an invalid user profile or missing configuration.
// Always fatal; raised pre-flight only.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitedError is returned by the rate limiter when a provider window
// is exhausted. RetryAfter suggests when the caller may try again.
type RateLimitedError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exhausted for %s, retry after %s", e.Key, e.RetryAfter)
}

// AnalysisError reports that every AI-analysis batch failed, which is fatal
// to curation. Partial batch failures are recorded, not raised.
type AnalysisError struct {
	Batches int
	Err     error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("all %d analysis batches failed: %v", e.Batches, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// RenderError reports a template-assembly failure. A malformed artifact
// must never be sent, so this always aborts the run.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render newsletter: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// DeliveryErrorKind classifies delivery failures for retry decisions.
type DeliveryErrorKind string

const (
	DeliveryTransient DeliveryErrorKind = "transient"
	DeliveryPermanent DeliveryErrorKind = "permanent"
)

// DeliveryError is returned by delivery providers. Transient failures are
// retried within the sending stage; permanent ones terminate immediately.
type DeliveryError struct {
	Kind       DeliveryErrorKind
	Detail     string
	RetryAfter time.Duration
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed (%s): %s", e.Kind, e.Detail)
}

// IsTransientDelivery reports whether err should be retried by the
// dispatcher. Errors of unknown shape (transport faults, timeouts) count
// as transient.
func IsTransientDelivery(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind == DeliveryTransient
	}
	return true
}
