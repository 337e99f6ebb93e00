// Package errors defines the failure taxonomy shared by the device client,
// the signal source and the controller.
//
// A Kind is itself an error, so callers classify failures with the standard
// library:
//
//	if errors.Is(err, apperrors.KindStaleHandle) { ... }
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure by how the controller reacts to it.
type Kind string

const (
	// KindDiscovery means the device is unreachable or did not answer a probe.
	// It ends a monitoring session when it happens at session start.
	KindDiscovery Kind = "discovery"
	// KindStaleHandle means a plug handle can no longer be used and must be
	// re-discovered before the next use.
	KindStaleHandle Kind = "stale_handle"
	// KindCommand means a power command failed or could not be confirmed.
	KindCommand Kind = "command"
	// KindSignalUnavailable means battery or process information is missing.
	KindSignalUnavailable Kind = "signal_unavailable"
	// KindConfiguration means the request cannot succeed with the current
	// settings (no outlets, outlet index out of range, bad address).
	KindConfiguration Kind = "configuration"
)

func (k Kind) Error() string {
	return string(k)
}

// Severity tells whether a failure ends the operation that hit it.
type Severity string

const (
	SeverityRecoverable Severity = "recoverable"
	SeverityFatal       Severity = "fatal"
)

// Severity reports how a failure of this kind is treated inside a polling
// session. Discovery and configuration failures abandon the operation; the
// rest are retried implicitly on the next tick.
func (k Kind) Severity() Severity {
	switch k {
	case KindDiscovery, KindConfiguration:
		return SeverityFatal
	default:
		return SeverityRecoverable
	}
}

// Error is a classified failure of a named operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New creates a classified error with a plain message.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Err: stderrors.New(message)}
}

// Wrap classifies err. It returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf classifies a formatted error; %w verbs are honoured.
func Wrapf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind of the first classified error in err's chain, or
// an empty Kind when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if stderrors.As(err, &k) {
		return k
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return stderrors.Is(err, kind)
}
