package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// FailureKind classifies why an entry could not be turned into an article.
type FailureKind string

const (
	FailTimeout     FailureKind = "timeout"
	FailHTTP        FailureKind = "http_error"
	FailBlocked     FailureKind = "blocked"
	FailParse       FailureKind = "parse_error"
	FailUnsupported FailureKind = "unsupported"
	FailExtraction  FailureKind = "extraction_failure"

	// FailInternal covers infrastructure errors after a successful fetch
	// and extraction, such as the article store rejecting a write.
	FailInternal FailureKind = "internal"
)

// ErrQueueClosed is returned by queue operations once the queue has been
// closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// ErrBatchNotFound is returned by batch stores for unknown batch IDs.
var ErrBatchNotFound = errors.New("batch not found")

// ErrNoContent signals that extraction produced neither a title nor a body.
var ErrNoContent = errors.New("no usable title or body")

// FetchFailure is the typed outcome of a failed fetch attempt. Retryable
// reports whether the same strategy could plausibly succeed later; it drives
// cooldown accounting only and never stops the cascade from moving on.
type FetchFailure struct {
	Strategy  string
	Kind      FailureKind
	Status    int
	Retryable bool
	Err       error
}

func (f *FetchFailure) Error() string {
	switch {
	case f.Status != 0:
		return fmt.Sprintf("%s: %s (status %d)", f.Strategy, f.Kind, f.Status)
	case f.Err != nil:
		return fmt.Sprintf("%s: %s: %v", f.Strategy, f.Kind, f.Err)
	default:
		return fmt.Sprintf("%s: %s", f.Strategy, f.Kind)
	}
}

// Unwrap exposes the underlying cause for errors.Is and errors.As chains.
func (f *FetchFailure) Unwrap() error { return f.Err }

// FailureForStatus maps an HTTP status to the matching failure. 403 and 429
// count as blocked since they are how bot walls and rate limits present
// themselves; other 4xx statuses are permanent for the URL, 5xx transient.
func FailureForStatus(strategy string, status int) *FetchFailure {
	f := &FetchFailure{Strategy: strategy, Kind: FailHTTP, Status: status}
	switch {
	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		f.Kind = FailBlocked
		f.Retryable = true
	case status >= 500:
		f.Retryable = true
	}
	return f
}

// AsFetchFailure unwraps err to a *FetchFailure when one is in the chain.
func AsFetchFailure(err error) (*FetchFailure, bool) {
	var f *FetchFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// KindOf reports the failure kind carried by err, defaulting to parse_error
// for untyped errors.
func KindOf(err error) FailureKind {
	if f, ok := AsFetchFailure(err); ok {
		return f.Kind
	}
	if errors.Is(err, ErrNoContent) {
		return FailExtraction
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailTimeout
	}
	return FailParse
}
