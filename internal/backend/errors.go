package backend

import (
	"errors"
	"fmt"
)

// Kind classifies backend failures so callers can pick a fallback or a message.
type Kind string

const (
	KindTransport         Kind = "transport"
	KindNotFound          Kind = "not_found"
	KindProcedureMissing  Kind = "procedure_missing"
	KindCollectionMissing Kind = "collection_missing"
	KindDuplicate         Kind = "duplicate"
	KindPermission        Kind = "permission"
	KindUnauthenticated   Kind = "unauthenticated"
	KindMalformed         Kind = "malformed"
	KindRejected          Kind = "rejected"
)

// Error is the error type returned by every Backend implementation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Errorf builds a backend error of the given kind.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the classification of err, defaulting to KindTransport.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Kind != "" {
		return typed.Kind
	}
	return KindTransport
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
