package lostik

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package unwraps to exactly one of
// these.
var (
	ErrConnection      = errors.New("connection error")
	ErrProtocolInit    = errors.New("protocol initialization error")
	ErrTransient       = errors.New("transient device error")
	ErrTransmitFailure = errors.New("transmit failure")
	ErrDecode          = errors.New("decode error")
	ErrDesynchronized  = errors.New("device desynchronized")
)

// Error details, wrapped next to the kind.
var (
	ErrTimeout          = errors.New("timeout while waiting for response")
	ErrBusy             = errors.New("device busy")
	ErrClosed           = errors.New("link closed")
	ErrInvalidParam     = errors.New("invalid parameter")
	ErrPortNotFound     = errors.New("serial port not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnexpected       = errors.New("unexpected response")
)

// DeviceError wraps an error kind with the command that caused it and the raw
// response line, if any.
type DeviceError struct {
	Code     error
	Command  string
	Response string
	Err      error
}

func (e *DeviceError) Error() string {
	msg := e.Code.Error()

	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	if e.Command != "" {
		msg = fmt.Sprintf("%s (command: %q", msg, e.Command)

		if e.Response != "" {
			msg = fmt.Sprintf("%s, response: %q", msg, e.Response)
		}

		msg += ")"
	} else if e.Response != "" {
		msg = fmt.Sprintf("%s (response: %q)", msg, e.Response)
	}

	return msg
}

// Unwrap returns both the kind and the detail, so errors.Is matches either.
func (e *DeviceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Code}
	}

	return []error{e.Code, e.Err}
}

// IsFatal reports whether err must abort the process.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrProtocolInit) ||
		errors.Is(err, ErrDesynchronized)
}

func newError(code error, command Command, response string, err error) *DeviceError {
	e := &DeviceError{
		Code:     code,
		Response: response,
		Err:      err,
	}

	if command.Verb != "" {
		e.Command = command.String()
	}

	return e
}
