package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the command center.
type ErrorKind string

const (
	KindConfig           ErrorKind = "ConfigError"
	KindRegistry         ErrorKind = "RegistryError"
	KindValidation       ErrorKind = "ValidationError"
	KindPermission       ErrorKind = "PermissionError"
	KindUnauthorized     ErrorKind = "Unauthorized"
	KindForbidden        ErrorKind = "Forbidden"
	KindInvalidAction    ErrorKind = "InvalidAction"
	KindConflict         ErrorKind = "ConflictError"
	KindMethodNotAllowed ErrorKind = "MethodNotAllowed"
	KindNotFound         ErrorKind = "NotFound"
)

// Error is the single error type used across the command center. Kind
// drives the HTTP status; Field names the offending payload field for
// validation failures.
type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil && t.Field == ""
}

// Sentinels for errors.Is.
var (
	ErrConfig           = &Error{Kind: KindConfig}
	ErrRegistry         = &Error{Kind: KindRegistry}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrPermission       = &Error{Kind: KindPermission}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrInvalidAction    = &Error{Kind: KindInvalidAction}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrMethodNotAllowed = &Error{Kind: KindMethodNotAllowed}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

// NewConfigError creates a ConfigError, optionally wrapping a cause.
func NewConfigError(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...), Err: cause}
}

// NewRegistryError creates a RegistryError.
func NewRegistryError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindRegistry, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError creates a ValidationError naming the failing field.
func NewValidationError(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NewMissingFieldError reports a required field that was absent or empty.
func NewMissingFieldError(field string) *Error {
	return NewValidationError(field, "missing required field: %s", field)
}

// NewPermissionError creates a PermissionError.
func NewPermissionError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPermission, Message: fmt.Sprintf(format, args...)}
}

// NewUnauthorizedError creates an Unauthorized error.
func NewUnauthorizedError(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// NewForbiddenError creates a Forbidden error.
func NewForbiddenError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidActionError creates an InvalidAction error for action.
func NewInvalidActionError(action string) *Error {
	return &Error{Kind: KindInvalidAction, Message: fmt.Sprintf("invalid action: %q", action)}
}

// NewConflictError creates a ConflictError.
func NewConflictError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NewMethodNotAllowedError creates a MethodNotAllowed error.
func NewMethodNotAllowedError(action, method string) *Error {
	return &Error{Kind: KindMethodNotAllowed, Message: fmt.Sprintf("action %s requires POST, got %s", action, method)}
}

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
