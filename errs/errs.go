// Package errs implements the error taxonomy described in the system's
// error-handling design: Transient, Reorg, Decode, Validation, Invariant and
// Fatal. Each class is a sentinel wrapped with github.com/pkg/errors so
// callers can both match on class (via Is/Cause) and retain a readable chain.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Class identifies which row of the error taxonomy an error belongs to.
type Class int

const (
	// ClassTransient covers RPC/network/pub-sub/DB timeouts. Retried up to
	// MAX_RETRIES with backoff by the caller.
	ClassTransient Class = iota
	// ClassReorg marks a detected hash divergence. Not an error to callers;
	// triggers a bounded re-scan.
	ClassReorg
	// ClassDecode covers an unparsable event log. Logged and skipped
	// per-log; the block continues.
	ClassDecode
	// ClassValidation covers an LTV/availability rule failure. Reported to
	// the relayer as a rejection with a reason.
	ClassValidation
	// ClassInvariant covers a dedup-key collision with a different payload,
	// or a state transition from an impossible state. Logged; the entity is
	// not mutated.
	ClassInvariant
	// ClassFatal covers DB init failure, bus auth failure, unsigned relayer
	// config. Exits the process at startup; escalates to pause/stop of the
	// affected subsystem at runtime.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassReorg:
		return "reorg"
	case ClassDecode:
		return "decode"
	case ClassValidation:
		return "validation"
	case ClassInvariant:
		return "invariant"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with its taxonomy class and an optional
// structured reason (used verbatim when rejecting a request on-chain).
type Error struct {
	class  Class
	reason string
	cause  error
}

func (e *Error) Error() string {
	if e.reason != "" {
		return fmt.Sprintf("%s: %s: %v", e.class, e.reason, e.cause)
	}
	return fmt.Sprintf("%s: %v", e.class, e.cause)
}

// Cause implements github.com/pkg/errors' Causer interface.
func (e *Error) Cause() error { return e.cause }

// Unwrap supports the standard library's errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// Class_ returns the taxonomy class of err, or ClassTransient with ok=false
// if err was not produced by this package.
func Class_(err error) (Class, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.class, true
	}
	return ClassTransient, false
}

// Reason returns the human-readable rejection reason attached to err, if
// any. Used verbatim in on-chain processRequest rejections (§4.9).
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.reason
	}
	return ""
}

func wrap(class Class, cause error, reason string) *Error {
	return &Error{class: class, cause: cause, reason: reason}
}

// Transient wraps cause as a retryable error.
func Transient(cause error) error { return wrap(ClassTransient, cause, "") }

// Transientf wraps a formatted message as a retryable error.
func Transientf(format string, args ...interface{}) error {
	return wrap(ClassTransient, fmt.Errorf(format, args...), "")
}

// Reorgf constructs a reorg-class error describing the divergence.
func Reorgf(format string, args ...interface{}) error {
	return wrap(ClassReorg, fmt.Errorf(format, args...), "")
}

// Decode wraps cause as a per-log decode failure.
func Decode(cause error) error { return wrap(ClassDecode, cause, "") }

// Validation constructs a validation failure carrying a relayer-facing
// rejection reason.
func Validation(reason string) error {
	return wrap(ClassValidation, fmt.Errorf(reason), reason)
}

// Invariant wraps cause as an invariant violation (dedup collision,
// impossible state transition).
func Invariant(format string, args ...interface{}) error {
	return wrap(ClassInvariant, fmt.Errorf(format, args...), "")
}

// Fatal wraps cause as a fatal, process-ending error.
func Fatal(cause error) error { return wrap(ClassFatal, cause, "") }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	c, ok := Class_(err)
	return ok && c == ClassTransient
}

// IsFatal reports whether err should escalate to process/subsystem exit.
func IsFatal(err error) bool {
	c, ok := Class_(err)
	return ok && c == ClassFatal
}

// Wrap attaches additional context to err without losing its class, mirroring
// github.com/pkg/errors.Wrap for taxonomy-aware errors; non-taxonomy errors
// are wrapped as Transient since that is the safe default for the mostly
// network/DB boundary calls this is used at.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return wrap(e.class, errors.Wrap(e.cause, message), e.reason)
	}
	return wrap(ClassTransient, errors.Wrap(err, message), "")
}
