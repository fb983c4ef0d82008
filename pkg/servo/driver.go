// Package servo provides the device driver capability for STS3215 serial
// servos: a narrow per-ID interface, an adapter over the feetech bus, and a
// simulated bus for running without hardware.
package servo

import (
	"context"
	"errors"
	"fmt"
)

// Register identifies a telemetry value that can be read from a servo.
type Register int

// Registers read by a status snapshot.
const (
	Position Register = iota
	Speed
	Temperature
	Voltage
	Current
	Load
	Moving
)

// StatusRegisters returns all telemetry registers in snapshot order.
func StatusRegisters() []Register {
	return []Register{
		Position,
		Speed,
		Temperature,
		Voltage,
		Current,
		Load,
		Moving,
	}
}

func (r Register) String() string {
	switch r {
	case Position:
		return "position"
	case Speed:
		return "speed"
	case Temperature:
		return "temperature"
	case Voltage:
		return "voltage"
	case Current:
		return "current"
	case Load:
		return "load"
	case Moving:
		return "moving"
	}
	return fmt.Sprintf("register(%d)", int(r))
}

// ErrInvalidID is returned for motor IDs outside the addressable range.
var ErrInvalidID = errors.New("invalid motor ID")

// Driver is a synchronous request/response transport to one servo bus.
//
// Implementations are not required to be safe for concurrent use; callers
// serialize access.
type Driver interface {
	// Ping reports whether a servo answers at id. A servo that does not
	// answer is (false, nil); other failures are returned as errors.
	Ping(ctx context.Context, id int) (bool, error)

	// ReadRegister reads a raw telemetry value in device units.
	ReadRegister(ctx context.Context, id int, reg Register) (int, error)

	// SetSpeed sets the goal speed applied to subsequent moves.
	SetSpeed(ctx context.Context, id, speed int) error

	// SetAcceleration sets the acceleration applied to subsequent moves.
	SetAcceleration(ctx context.Context, id, acceleration int) error

	// MoveTo commands the servo to a goal position.
	MoveTo(ctx context.Context, id, position int) error

	// Stop disables output torque.
	Stop(ctx context.Context, id int) error

	// Start enables output torque.
	Start(ctx context.Context, id int) error

	// SetID reassigns the bus address of the servo at id.
	SetID(ctx context.Context, id, newID int) error

	// Close releases the underlying port.
	Close() error
}

// Opener opens a driver bound to a port.
type Opener func(port string) (Driver, error)

// ValidateID checks that id is addressable.
func ValidateID(id int) error {
	if !AddressRange.Contains(id) {
		return fmt.Errorf("%w: %d (valid range: %d-%d)", ErrInvalidID, id, AddressRange.Min, AddressRange.Max)
	}
	return nil
}
