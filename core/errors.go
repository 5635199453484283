package core

import "github.com/pkg/errors"

var (
	// ErrForbidden is returned by services when the acting user may not perform an operation.
	ErrForbidden = errors.New("permission denied")
)

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
		return ""
	}
	return err.Err.Error()
}

// NotFoundError marks an error as "resource not found". The API maps it to a 404.
type NotFoundError interface {
	error
	NotFound() bool
}

type notFound struct {
	message string
}

func NewNotFoundError(msg string) error {
	return &notFound{message: msg}
}

func (nf notFound) Error() string  { return nf.message }
func (nf notFound) NotFound() bool { return true }

// ConflictError marks an error as a state conflict. The API maps it to a 409.
type ConflictError interface {
	error
	Conflict() bool
}

type conflict struct {
	message string
}

func NewConflictError(msg string) error {
	return &conflict{message: msg}
}

func (c conflict) Error() string  { return c.message }
func (c conflict) Conflict() bool { return true }

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

// UnavailableError marks a failure of an external collaborator. The API maps it to a 503.
type UnavailableError interface {
	error
	Unavailable() bool
}

type unavailable struct {
	message string
}

func NewUnavailableError(msg string) error {
	return &unavailable{message: msg}
}

func (u unavailable) Error() string     { return u.message }
func (u unavailable) Unavailable() bool { return true }
