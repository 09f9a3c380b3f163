package core

import "github.com/pkg/errors"

var (
	// ErrTransactionTimeout is returned when an all-or-nothing write could not finish within its time budget.
	ErrTransactionTimeout = errors.New("transaction timed out")

	// ErrConsumerGone is returned when the caller consuming progress went away mid-run.
	ErrConsumerGone = errors.New("progress consumer disconnected")
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

// InputFormatError reports an upload that cannot be read as CSV at all.
// It fails the whole upload before anything is persisted.
type InputFormatError struct {
	Msg string
}

func NewInputFormatError(msg string) error {
	return &InputFormatError{Msg: msg}
}

func (err InputFormatError) Error() string {
	return err.Msg
}

func IsInputFormatError(err error) bool {
	_, ok := errors.Cause(err).(*InputFormatError)
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
