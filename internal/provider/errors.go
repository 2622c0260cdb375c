package provider

import (
	"errors"
	"fmt"
)

// Kind classifies provider-facing failures so callers branch on a
// machine-readable tag instead of matching error prose
type Kind string

const (
	// KindConfig: missing credentials or secrets. Non-retryable;
	// surfaced as "payments unavailable", never a crash.
	KindConfig Kind = "config"
	// KindValidation: the invoice cannot be sent to a provider (no line
	// items, non-positive total, unsupported currency). Rejected before
	// any external call.
	KindValidation Kind = "validation"
	// KindProvider: the remote API rejected or errored. Safe for the
	// caller to retry.
	KindProvider Kind = "provider"
	// KindAuth: webhook signature missing or invalid. Always rejected,
	// never processed.
	KindAuth Kind = "auth"
	// KindNotFound: a webhook references an invoice or payment we do
	// not hold. Expected for test-mode and orphaned objects; logged,
	// not escalated.
	KindNotFound Kind = "not_found"
)

// Error tags an underlying failure with its Kind and the operation
// that produced it
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and operation name
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a tagged error from a format string
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether any error in err's chain carries the kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first tagged error in the chain, or
// an empty Kind when none is present
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
