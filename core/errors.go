package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError reports that a referenced entity does not exist.
type NotFoundError struct {
	msg string
}

func NewNotFoundError(msg string) *NotFoundError {
	return &NotFoundError{msg: msg}
}

func (err *NotFoundError) Error() string {
	return err.msg
}

// ConflictError reports a write rejected by a uniqueness or state constraint.
type ConflictError struct {
	msg string
}

func NewConflictError(msg string) *ConflictError {
	return &ConflictError{msg: msg}
}

func (err *ConflictError) Error() string {
	return err.msg
}

// PolicyDeniedError reports an action refused by a business policy (cutoff, holiday).
type PolicyDeniedError struct {
	Reason string
}

func NewPolicyDeniedError(reason string) *PolicyDeniedError {
	return &PolicyDeniedError{Reason: reason}
}

func (err *PolicyDeniedError) Error() string {
	return err.Reason
}

type PermissionError struct {
	msg string
}

var ErrPermissionDenied = NewPermissionError("permission denied")

func NewPermissionError(msg string) *PermissionError {
	return &PermissionError{msg: msg}
}

func (err *PermissionError) Error() string {
	return err.msg
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
