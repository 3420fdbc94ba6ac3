package ecoapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures of the remote API so callers never see raw transport errors.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindPermission
	KindServer
	KindNotFound
	KindValidation
	KindParse
	KindFileRead
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrNetwork    = errors.New("network error")
	ErrPermission = errors.New("access denied")
	ErrServer     = errors.New("server error")
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("request rejected")
	ErrParse      = errors.New("malformed response")
	ErrFileRead   = errors.New("file read failed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindPermission:
		return ErrPermission
	case KindServer:
		return ErrServer
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	case KindParse:
		return ErrParse
	case KindFileRead:
		return ErrFileRead
	}
	return nil
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return "unknown error"
}

// Error is the single error type returned by Client.
// Message is stable and safe to show to a user; Err keeps the original cause.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// newError builds an *Error with the stable "<op>: <kind>" message.
func newError(kind Kind, op string, status int, cause error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Status:  status,
		Message: fmt.Sprintf("%s: %s", op, kind),
		Err:     cause,
	}
}

// NewFileReadError wraps a local read failure of a selected file.
func NewFileReadError(name string, cause error) *Error {
	return newError(KindFileRead, "read "+name, 0, cause)
}

// kindForStatus maps a non-2xx HTTP status to an error kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindPermission
	case status == http.StatusNotFound || status == http.StatusGone:
		return KindNotFound
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}

// KindOf returns the Kind of err, or 0 if err did not come from this package.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}
