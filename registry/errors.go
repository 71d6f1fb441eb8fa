package registry

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way clients see it.
type Kind string

const (
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindMalformedRequest  Kind = "malformed-request"
	KindInvalidName       Kind = "invalid-name"
	KindInvalidVersion    Kind = "invalid-version"
	KindInvalidCategory   Kind = "invalid-category"
	KindInvalidBadge      Kind = "invalid-badge"
	KindInvalidRequest    Kind = "invalid-request"
	KindVersionNotGreater Kind = "version-not-greater"
	KindCrateNotFound     Kind = "crate-not-found"
	KindVersionNotFound   Kind = "version-not-found"
	KindUserNotFound      Kind = "user-not-found"
	KindNotFound          Kind = "not-found"
	KindGone              Kind = "gone"
	KindConflict          Kind = "conflict"
	KindTooLarge          Kind = "too-large"
	KindIndexConflict     Kind = "index-conflict"
	KindStorageError      Kind = "storage-error"
	KindDBError           Kind = "db-error"
	KindInternal          Kind = "internal-error"
)

// Error is a failure carrying the kind and the message shown to the client.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailOf returns the client-facing message of err. Unclassified errors
// are not described to clients.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return "internal server error"
}
