package domain

import (
	"errors"
	"fmt"
)

// Kind buckets every user-visible failure. Adapters map a Kind to the
// reason string of an error envelope; internal store details never cross
// that boundary.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindCapacity       Kind = "capacity"
	KindValidation     Kind = "validation"
	KindUnavailable    Kind = "unavailable"
)

// Error is a categorized failure of one client action.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the category of err, or KindUnavailable for anything
// uncategorized (a raw store failure must surface as a generic outage).
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnavailable
}
