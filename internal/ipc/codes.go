package ipc

import (
	"errors"
	"fmt"
)

// Code is the closed set of failure codes a response can carry.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeStorage      Code = "STORAGE_ERROR"
	CodeParse        Code = "PARSE_ERROR"
	CodeNotFound     Code = "NOT_FOUND"
	CodeAccessDenied Code = "ACCESS_DENIED"
	CodeNotDirectory Code = "NOT_DIRECTORY"
	CodeCanceled     Code = "CANCELED"
	CodeUnknown      Code = "UNKNOWN_ERROR"
)

// Valid reports whether c is one of the known codes.
func (c Code) Valid() bool {
	switch c {
	case CodeValidation, CodeStorage, CodeParse, CodeNotFound,
		CodeAccessDenied, CodeNotDirectory, CodeCanceled, CodeUnknown:
		return true
	}
	return false
}

// Error is a domain error. Handlers return it (possibly wrapped) to send a
// specific code back to the caller; every other error becomes UNKNOWN_ERROR.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and caller-facing message to an underlying error.
// The underlying error is kept for logs and errors.Is, not sent to callers.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError finds a domain error anywhere in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}
