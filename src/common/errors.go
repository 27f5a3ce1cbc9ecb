package common

import "fmt"

// ErrType identifies the kind of failure reported by the overlay.
type ErrType uint32

const (
	// Transport is a failed exchange with a remote node (unreachable, timeout,
	// closed transport). It is always recovered locally.
	Transport ErrType = iota
	// MalformedCandidate is a profile received from a peer that cannot be
	// merged (self reference, empty identifier, duplicate, irrelevant topics).
	MalformedCandidate
	// Configuration is an invalid configuration detected at construction.
	Configuration
	// UnknownModule is a reference to a selection module that is not
	// registered.
	UnknownModule
	// Storage is a failure of the persistent profile snapshot.
	Storage
)

// Err is the error type returned by the overlay packages.
type Err struct {
	subject string
	errType ErrType
	detail  string
	cause   error
}

// NewErr ...
func NewErr(subject string, errType ErrType, detail string) Err {
	return Err{
		subject: subject,
		errType: errType,
		detail:  detail,
	}
}

// WrapErr returns an Err of the given type wrapping cause.
func WrapErr(subject string, errType ErrType, cause error) Err {
	e := NewErr(subject, errType, "")
	e.cause = cause
	return e
}

// Error ...
func (e Err) Error() string {
	m := ""
	switch e.errType {
	case Transport:
		m = "Transport Error"
	case MalformedCandidate:
		m = "Malformed Candidate"
	case Configuration:
		m = "Configuration Error"
	case UnknownModule:
		m = "Unknown Module"
	case Storage:
		m = "Storage Error"
	}

	detail := e.detail
	if e.cause != nil {
		if detail != "" {
			detail += ": "
		}
		detail += e.cause.Error()
	}

	return fmt.Sprintf("%s, %s, %s", e.subject, m, detail)
}

// Unwrap returns the underlying cause, if any.
func (e Err) Unwrap() error {
	return e.cause
}

// Type returns the kind of the error.
func (e Err) Type() ErrType {
	return e.errType
}

// Is checks that an error is of type Err and that its kind matches the
// provided ErrType.
func Is(err error, t ErrType) bool {
	e, ok := err.(Err)
	return ok && e.errType == t
}
