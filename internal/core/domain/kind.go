package domain

import (
	"context"
	"errors"
)

// ErrorKind classifies a failure for retry and negative caching decisions.
type ErrorKind uint8

const (
	// KindUnknown is an unclassified failure.
	KindUnknown ErrorKind = iota
	// KindNotFound means the object is permanently absent.
	KindNotFound
	// KindTransient means the failure may clear on retry (timeout, throttling, expired auth).
	KindTransient
	// KindMalformed means the bytes failed format validation.
	KindMalformed
	// KindResourceExhausted means the disk budget or the worker pool is saturated.
	KindResourceExhausted
)

// String returns the wire name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindMalformed:
		return "malformed"
	case KindResourceExhausted:
		return "resource_exhausted"
	default:
		return "unknown"
	}
}

// ParseErrorKind is the inverse of ErrorKind.String.
func ParseErrorKind(s string) ErrorKind {
	switch s {
	case "not_found":
		return KindNotFound
	case "transient":
		return KindTransient
	case "malformed":
		return KindMalformed
	case "resource_exhausted":
		return KindResourceExhausted
	default:
		return KindUnknown
	}
}

// KindError attaches an ErrorKind to an error chain.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// WithKind tags err with kind. A nil err yields nil.
func WithKind(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// NotFound tags err as KindNotFound.
func NotFound(err error) error { return WithKind(KindNotFound, err) }

// Transient tags err as KindTransient.
func Transient(err error) error { return WithKind(KindTransient, err) }

// Malformed tags err as KindMalformed.
func Malformed(err error) error { return WithKind(KindMalformed, err) }

// ResourceExhausted tags err as KindResourceExhausted.
func ResourceExhausted(err error) error { return WithKind(KindResourceExhausted, err) }

// KindOf returns the outermost kind found in err's chain.
// Context expiry is transient; anything else unclassified is KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	return KindUnknown
}

// IsCancellation reports whether err stems from the caller's context ending.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
