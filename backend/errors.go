package backend

import (
	"errors"
	"fmt"
)

// LookupErrorKind identifies why a hostname could not be resolved to a
// backend.
type LookupErrorKind int

const (
	// NoHostname means the connection did not present a usable server name.
	NoHostname LookupErrorKind = iota + 1

	// NoConfiguration means no bulk configuration has been published yet.
	NoConfiguration

	// UnknownHost means the bulk configuration has no usable descriptor for
	// the hostname.
	UnknownHost

	// InvalidBackend means the hostname's endpoint list is absent or unusable.
	InvalidBackend
)

func (k LookupErrorKind) String() string {
	switch k {
	case NoHostname:
		return "no hostname"
	case NoConfiguration:
		return "no configuration"
	case UnknownHost:
		return "unknown host"
	case InvalidBackend:
		return "invalid backend"
	default:
		return fmt.Sprintf("lookup error (%d)", int(k))
	}
}

// LookupError is returned when a hostname can not be resolved.
type LookupError struct {
	Kind     LookupErrorKind
	Hostname string
	Reason   string
}

func (e *LookupError) Error() string {
	msg := e.Kind.String()
	if e.Hostname != "" {
		msg += fmt.Sprintf(" '%s'", e.Hostname)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is reports whether target is a *LookupError of the same kind, so callers
// can match with errors.Is(err, &LookupError{Kind: UnknownHost}).
func (e *LookupError) Is(target error) bool {
	t, ok := target.(*LookupError)
	return ok && t.Kind == e.Kind
}

// IsLookupError returns true if err is a lookup error of the given kind.
func IsLookupError(err error, kind LookupErrorKind) bool {
	var e *LookupError
	return errors.As(err, &e) && e.Kind == kind
}

// ValidationError is returned when a configuration document, key or body is
// rejected before anything is written to the registry.
type ValidationError struct {
	// Message is the caller-facing description of the problem.
	Message string

	// Cause is the underlying parse error, if any.
	Cause error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// EntryError describes a single descriptor that was dropped from an otherwise
// valid bulk document.
type EntryError struct {
	Hostname string
	Reason   string
}

func (e EntryError) Error() string {
	return fmt.Sprintf("%s of %s, skipping", e.Reason, e.Hostname)
}
