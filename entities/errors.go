package entities

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrDeviceNotReady ErrorKind = "DEVICE_NOT_READY"
	ErrPrinter        ErrorKind = "PRINTER_ERROR"
	ErrCallSystem     ErrorKind = "CALL_SYSTEM_ERROR"
	ErrProcessing     ErrorKind = "PROCESSING_ERROR"
	ErrUnknownCommand ErrorKind = "UNKNOWN_COMMAND"
)

// ErrPeripheralNotReady marks a failure where the peripheral was probed and
// found unready before anything was attempted.
var ErrPeripheralNotReady = errors.New("peripheral not ready")

// CommandError carries a taxonomy kind through the error chain.
type CommandError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewCommandError(kind ErrorKind, message string, err error) *CommandError {
	return &CommandError{Kind: kind, Message: message, Err: err}
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CommandError) Unwrap() error { return e.Err }

// KindOf returns the taxonomy kind of err, PROCESSING_ERROR if it has none.
func KindOf(err error) ErrorKind {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrProcessing
}

// IsTyped reports whether err carries an explicit kind, i.e. it was raised
// deliberately at a known boundary rather than escaping from somewhere unexpected.
func IsTyped(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}
