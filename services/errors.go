package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/FASALGAF00R/Campuscore-backend/models"
)

type Code string

const (
	CodeValidation        Code = "validation"
	CodeNotAuthorized     Code = "not_authorized"
	CodeNotFound          Code = "not_found"
	CodeInvalidTransition Code = "invalid_transition"
	CodeInvalidAssignee   Code = "invalid_assignee"
	CodeStaleState        Code = "stale_state"
	CodeAlreadyRated      Code = "already_rated"
	CodePersistence       Code = "persistence"
)

// Error is what every service operation returns to its caller. Code is
// stable and safe to expose; Err keeps the underlying cause for logs only.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so errors.Is(err,
// ErrStaleState) works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrValidation        = &Error{Code: CodeValidation, Message: "invalid input"}
	ErrNotAuthorized     = &Error{Code: CodeNotAuthorized, Message: "not authorized"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Message: "invalid status transition"}
	ErrInvalidAssignee   = &Error{Code: CodeInvalidAssignee, Message: "invalid assignee"}
	ErrStaleState        = &Error{Code: CodeStaleState, Message: "request changed since it was read, re-fetch and retry"}
	ErrAlreadyRated      = &Error{Code: CodeAlreadyRated, Message: "request already rated"}
	ErrPersistence       = &Error{Code: CodePersistence, Message: "storage failure"}
)

func validationError(msg string, fields map[string]string) *Error {
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		msg = msg + ": " + strings.Join(keys, ", ")
	}
	return &Error{Code: CodeValidation, Message: msg, Fields: fields}
}

func notAuthorized(format string, args ...any) *Error {
	return &Error{Code: CodeNotAuthorized, Message: fmt.Sprintf(format, args...)}
}

func notFound(what string) *Error {
	return &Error{Code: CodeNotFound, Message: what + " not found"}
}

func invalidTransition(from, to string) *Error {
	return &Error{Code: CodeInvalidTransition, Message: fmt.Sprintf("cannot move from %s to %s", from, to)}
}

func invalidAssignee(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidAssignee, Message: fmt.Sprintf(format, args...)}
}

func staleState(observed, current models.Status) *Error {
	return &Error{
		Code:    CodeStaleState,
		Message: fmt.Sprintf("expected status %s but found %s, re-fetch and retry", observed, current),
	}
}

func persistenceError(op string, err error) *Error {
	return &Error{Code: CodePersistence, Message: op + " failed", Err: err}
}

// CodeOf extracts the stable code, or CodePersistence for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodePersistence
}
