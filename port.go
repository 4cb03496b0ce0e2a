package lostik

import (
	"errors"
	"fmt"
	"io"
	"os"

	tarm "github.com/tarm/serial"
	"go.bug.st/serial"
)

// BaudRate is the fixed baud rate of the LoStik serial interface.
const BaudRate = 57600

// Driver selects the serial port implementation.
type Driver string

// The supported serial drivers.
const (
	DriverBugst Driver = "bugst"
	DriverTarm  Driver = "tarm"
)

type opener func(name string) (io.ReadWriteCloser, error)

var openers = map[Driver]opener{
	DriverBugst: openBugst,
	DriverTarm:  openTarm,
}

// Open the serial port at name, 57600 baud 8N1. An empty driver selects
// DriverBugst. Errors are of kind ErrConnection.
func Open(name string, driver Driver) (io.ReadWriteCloser, error) {
	if driver == "" {
		driver = DriverBugst
	}

	open, ok := openers[driver]

	if !ok {
		return nil, &DeviceError{Code: ErrConnection, Err: fmt.Errorf("unknown serial driver '%s'", driver)}
	}

	// Check the path first, so absence and permission problems are reported
	// the same way for every driver.
	if _, err := os.Stat(name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &DeviceError{Code: ErrConnection, Err: fmt.Errorf("%w: %s", ErrPortNotFound, name)}
		}

		if errors.Is(err, os.ErrPermission) {
			return nil, &DeviceError{Code: ErrConnection, Err: fmt.Errorf("%w: %s", ErrPermissionDenied, name)}
		}

		return nil, &DeviceError{Code: ErrConnection, Err: err}
	}

	port, err := open(name)

	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			err = fmt.Errorf("%w: %s", ErrPermissionDenied, name)
		}

		return nil, &DeviceError{Code: ErrConnection, Err: err}
	}

	return port, nil
}

func openBugst(name string) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)

	if err != nil {
		var portErr *serial.PortError

		if errors.As(err, &portErr) {
			switch portErr.Code() {
			case serial.PortNotFound:
				return nil, fmt.Errorf("%w: %v", ErrPortNotFound, err)
			case serial.PermissionDenied:
				return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
			}
		}

		return nil, err
	}

	return port, nil
}

func openTarm(name string) (io.ReadWriteCloser, error) {
	config := &tarm.Config{
		Name:     name,
		Baud:     BaudRate,
		Size:     8,
		Parity:   tarm.ParityNone,
		StopBits: tarm.Stop1,
	}

	port, err := tarm.OpenPort(config)

	if err != nil {
		return nil, err
	}

	return port, nil
}
