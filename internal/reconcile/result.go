package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/msa-portal/portal-backend/internal/backend"
)

// FailureKind classifies why a tier could not produce data.
type FailureKind string

const (
	FailureUnavailable   FailureKind = "unavailable"
	FailureSchemaMissing FailureKind = "schema_missing"
	FailureMalformed     FailureKind = "malformed"
	FailureTransport     FailureKind = "transport"
	FailureCanceled      FailureKind = "canceled"
)

// Page is a fetched slice of a collection plus the total the backend reported.
type Page[T any] struct {
	Records []T
	Total   int
}

// Failure describes an unsuccessful fetch.
type Failure struct {
	Kind  FailureKind
	Cause error
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.Cause == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Cause)
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Cause
}

// Result is the outcome of one tier: exactly one of a page or a failure.
type Result[T any] struct {
	page    Page[T]
	failure *Failure
}

// Ok wraps a successful fetch. A negative total means "use len(records)".
func Ok[T any](records []T, total int) Result[T] {
	if records == nil {
		records = []T{}
	}
	if total < 0 {
		total = len(records)
	}
	return Result[T]{page: Page[T]{Records: records, Total: total}}
}

// Err wraps a failed fetch.
func Err[T any](kind FailureKind, cause error) Result[T] {
	return Result[T]{failure: &Failure{Kind: kind, Cause: cause}}
}

// FromError classifies err into a failed Result.
func FromError[T any](err error) Result[T] {
	return Result[T]{failure: &Failure{Kind: classifyFailure(err), Cause: err}}
}

// IsOk reports whether the result carries data.
func (r Result[T]) IsOk() bool {
	return r.failure == nil
}

// Page returns the fetched page; ok is false for failures.
func (r Result[T]) Page() (Page[T], bool) {
	if r.failure != nil {
		return Page[T]{}, false
	}
	return r.page, true
}

// Failure returns the failure, or nil when the result is ok.
func (r Result[T]) Failure() *Failure {
	return r.failure
}

func classifyFailure(err error) FailureKind {
	switch {
	case err == nil:
		return FailureTransport
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCanceled
	}
	switch backend.KindOf(err) {
	case backend.KindProcedureMissing, backend.KindNotFound:
		return FailureUnavailable
	case backend.KindCollectionMissing:
		return FailureSchemaMissing
	case backend.KindMalformed:
		return FailureMalformed
	default:
		return FailureTransport
	}
}
