package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy decisions.
type Kind int

const (
	// KindUnknown is the zero value for unclassified errors.
	KindUnknown Kind = iota
	// KindConfig indicates a missing or invalid credential/setting.
	KindConfig
	// KindQuota indicates a provider quota or budget was exhausted.
	KindQuota
	// KindTransient indicates a retryable network error, 5xx, or 429.
	KindTransient
	// KindPermanent indicates a non-retryable provider error (4xx other than 429).
	KindPermanent
	// KindValidation indicates rejected input or extracted data.
	KindValidation
	// KindConsistency indicates an optimistic-concurrency loss in the store.
	KindConsistency
	// KindCancelled indicates the caller cancelled the operation.
	KindCancelled
	// KindUnavailable indicates a provider disabled by circuit breaker or config.
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindUnknown:     "unknown",
	KindConfig:      "config",
	KindQuota:       "quota",
	KindTransient:   "transient",
	KindPermanent:   "permanent",
	KindValidation:  "validation",
	KindConsistency: "consistency",
	KindCancelled:   "cancelled",
	KindUnavailable: "unavailable",
}

// String returns the lowercase name of the kind.
func (k Kind) String() string { return kindNames[k] }

// Error is the domain error type carried across component boundaries.
// Code is a stable machine-readable identifier surfaced to API callers;
// free-form detail stays in Message and the wrapped cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Cause }

// E constructs a domain error. cause may be nil.
func E(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// KindOf extracts the Kind from an error chain. Context cancellation and
// deadline expiry map to KindCancelled even when not wrapped.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

// CodeOf extracts the stable error code, or "internal" when the chain
// carries no domain error.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "internal"
}

// Retryable reports whether the propagation policy allows retrying in place.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindConsistency:
		return true
	default:
		return false
	}
}
