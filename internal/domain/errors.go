package domain

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures so that transports can map them consistently.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindConflict
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Error is a classified engine error carrying a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

// Kind sentinels. errors.Is(err, ErrConflict) matches any conflict.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrState         = &Error{Kind: KindState}
)

func (e *Error) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels by kind and reason-bearing errors by identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Reason == "" && t.Err == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

func Validation(reason string) *Error    { return &Error{Kind: KindValidation, Reason: reason} }
func NotFound(reason string) *Error      { return &Error{Kind: KindNotFound, Reason: reason} }
func Authorization(reason string) *Error { return &Error{Kind: KindAuthorization, Reason: reason} }
func Conflict(reason string) *Error      { return &Error{Kind: KindConflict, Reason: reason} }
func State(reason string) *Error         { return &Error{Kind: KindState, Reason: reason} }

// Wrap classifies err under kind, keeping it reachable through errors.Unwrap.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// ReasonOf returns the reason of the first classified error in err's chain.
func ReasonOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		if de.Reason != "" {
			return de.Reason
		}
		return de.Kind.String()
	}
	return ""
}
