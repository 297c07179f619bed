package core

import "errors"

// ValidationError reports malformed input.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return message(e.Message, e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

// ConflictError reports an operation repeated on a dataset already past that state.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// StateError reports an operation called before its prerequisites exist.
type StateError struct {
	Message string
}

func (e *StateError) Error() string { return e.Message }

// NotFoundError reports missing rows.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func message(msg string, err error) string {
	switch {
	case err == nil:
		return msg
	case msg == "":
		return err.Error()
	}
	return msg + ": " + err.Error()
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsState reports whether err is or wraps a StateError.
func IsState(err error) bool {
	var target *StateError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
