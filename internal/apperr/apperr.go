package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so handlers and remote clients agree on the
// HTTP status and on whether the saga must compensate.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInsufficient Kind = "insufficient_resource"
	KindUnavailable  Kind = "remote_unavailable"
	KindInvalid      Kind = "invalid_input"
	KindStorage      Kind = "storage"
)

type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap keeps the underlying error reachable via errors.Unwrap.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), cause: cause}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}
func Insufficient(format string, args ...any) *Error {
	return New(KindInsufficient, format, args...)
}
func Unavailable(cause error, format string, args ...any) *Error {
	return Wrap(KindUnavailable, cause, format, args...)
}
func Invalid(format string, args ...any) *Error {
	return New(KindInvalid, format, args...)
}
func Storage(cause error, format string, args ...any) *Error {
	return Wrap(KindStorage, cause, format, args...)
}

// KindOf extracts the kind from anywhere in the chain. Unclassified errors
// count as storage faults: something local broke, not a business rejection.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

func StatusOf(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInsufficient:
		return http.StatusUnprocessableEntity
	case KindInvalid:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus classifies a response that carried no machine-readable kind.
func FromStatus(code int, detail string) *Error {
	switch code {
	case http.StatusNotFound:
		return &Error{Kind: KindNotFound, Detail: detail}
	case http.StatusConflict:
		return &Error{Kind: KindConflict, Detail: detail}
	case http.StatusUnprocessableEntity:
		return &Error{Kind: KindInsufficient, Detail: detail}
	case http.StatusBadRequest:
		return &Error{Kind: KindInvalid, Detail: detail}
	case http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusServiceUnavailable:
		return &Error{Kind: KindUnavailable, Detail: detail}
	default:
		return &Error{Kind: KindStorage, Detail: detail}
	}
}

// FromKind is the inverse used by HTTP clients when they rebuild an error
// out of a response body.
func FromKind(kind Kind, detail string) *Error {
	switch kind {
	case KindNotFound, KindConflict, KindInsufficient, KindUnavailable, KindInvalid, KindStorage:
		return &Error{Kind: kind, Detail: detail}
	default:
		return &Error{Kind: KindStorage, Detail: detail}
	}
}
