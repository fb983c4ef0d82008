package session

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the controller.
var (
	// ErrNotConnected is returned by command operations when no driver is open.
	ErrNotConnected = errors.New("not connected")

	// ErrInvalidRange is returned by Scan for a range outside the addressable IDs.
	ErrInvalidRange = errors.New("invalid scan range")
)

// OpenError is returned by Connect when the port cannot be opened.
type OpenError struct {
	Port string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Port, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// DeviceError is returned when the driver fails during a command operation.
type DeviceError struct {
	Op  string // Operation that failed (e.g., "move", "read status")
	ID  int    // Motor ID
	Err error  // Driver error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("motor %d %s failed: %v", e.ID, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// IsDeviceError reports whether err came from the driver.
func IsDeviceError(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr)
}
