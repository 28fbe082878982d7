// Package apperr classifies failures so the HTTP layer can map them to a
// status code without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindBackend Kind = iota
	KindUnauthenticated
	KindForbidden
	KindInvalid
	KindNotFound
	KindConflict
	KindUpload
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpload:
		return "upload"
	default:
		return "backend"
	}
}

// Status is the HTTP status for k.
func (k Kind) Status() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalid:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpload:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a user-facing message plus an optional internal cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and message, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == e.Msg
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func Wrap(kind Kind, msg string, err error) *Error { return &Error{Kind: kind, Msg: msg, Err: err} }

func Unauthenticated(msg string) *Error { return New(KindUnauthenticated, msg) }
func Forbidden(msg string) *Error       { return New(KindForbidden, msg) }
func Invalid(msg string) *Error         { return New(KindInvalid, msg) }
func NotFound(msg string) *Error        { return New(KindNotFound, msg) }
func Conflict(msg string) *Error        { return New(KindConflict, msg) }

func Upload(msg string, err error) *Error  { return Wrap(KindUpload, msg, err) }
func Backend(msg string, err error) *Error { return Wrap(KindBackend, msg, err) }

// KindOf returns the kind of the first *Error in err's chain, or KindBackend.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindBackend
}

// Message is the user-facing text for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}

var (
	ErrMissingToken    = Unauthenticated("missing bearer token")
	ErrInvalidSession  = Unauthenticated("invalid or expired session")
	ErrProfileMissing  = NotFound("profile not found")
	ErrMissionNotFound = NotFound("mission not found")
	ErrNotInProgress   = Conflict("mission is not in progress")
	ErrAlreadyDone     = Conflict("mission already completed")
	ErrNoCompany       = Forbidden("profile is not linked to a company")
)
