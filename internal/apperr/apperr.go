package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

type Kind uint

const (
	Unclassified Kind = iota
	RecognitionFailure
	UnreachableService
	InvalidArgument
	AuthFailure
)

func (k Kind) String() string {
	switch k {
	case RecognitionFailure:
		return "recognition_failure"
	case UnreachableService:
		return "unreachable_service"
	case InvalidArgument:
		return "invalid_argument"
	case AuthFailure:
		return "auth_failure"
	default:
		return "unclassified"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for c := Unclassified; c <= AuthFailure; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", b)
}

// Error carries a failure kind together with the user-facing message that
// should be spoken instead of the underlying cause.
type Error struct {
	Kind Kind
	Op   string // e.g. "weather.lookup"
	Msg  string // user-facing apology
	Err  error
}

func New(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// As reports whether err wraps an *Error.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf classifies err. Wrapped *Error values win; otherwise timeouts and
// network errors count as UnreachableService.
func KindOf(err error) Kind {
	if err == nil {
		return Unclassified
	}
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return UnreachableService
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return UnreachableService
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return UnreachableService
	}

	return Unclassified
}

// Message returns the user-facing text for err, falling back to a generic
// apology for the error's kind.
func Message(err error) string {
	if appErr, ok := As(err); ok && appErr.Msg != "" {
		return appErr.Msg
	}
	return Apology(KindOf(err))
}

func Apology(kind Kind) string {
	switch kind {
	case RecognitionFailure:
		return "Sorry, I couldn't understand the audio. Please try again."
	case UnreachableService:
		return "Sorry, the service is not reachable right now. Please try again later."
	case InvalidArgument:
		return "Sorry, I couldn't find anything for that."
	case AuthFailure:
		return "Sorry, that service is not configured or its credentials have expired."
	default:
		return "Sorry, something went wrong."
	}
}
