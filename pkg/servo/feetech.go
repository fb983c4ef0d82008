package servo

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// DefaultBaudRate is the factory baud rate of the STS3215.
const DefaultBaudRate = 1_000_000

// BusConfig holds settings for opening feetech buses.
type BusConfig struct {
	BaudRate int
	Timeout  time.Duration

	// Transport, if set, supplies the bus transport instead of opening the
	// named serial port.
	Transport func(port string) (feetech.Transport, error)
}

// Open returns an Opener that creates feetech-backed drivers.
func Open(cfg BusConfig) Opener {
	return func(port string) (Driver, error) {
		return NewFeetech(port, cfg)
	}
}

// Feetech drives STS3215 servos through a feetech bus.
type Feetech struct {
	port string
	bus  *feetech.Bus
}

// NewFeetech opens a feetech bus on port.
func NewFeetech(port string, cfg BusConfig) (*Feetech, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	busCfg := feetech.BusConfig{
		Port:     port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout,
	}
	if cfg.Transport != nil {
		t, err := cfg.Transport(port)
		if err != nil {
			return nil, fmt.Errorf("open transport: %w", err)
		}
		busCfg.Transport = t
	}

	bus, err := feetech.NewBus(busCfg)
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	return &Feetech{
		port: port,
		bus:  bus,
	}, nil
}

// Port returns the port the bus was opened on.
func (f *Feetech) Port() string {
	return f.port
}

// Close closes the bus connection.
func (f *Feetech) Close() error {
	return f.bus.Close()
}

func (f *Feetech) servo(id int) *feetech.Servo {
	return feetech.NewServo(f.bus, id, &feetech.ModelSTS3215)
}

func (f *Feetech) Ping(ctx context.Context, id int) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}

	if _, err := f.bus.Ping(ctx, id); err != nil {
		if feetech.IsNoResponse(err) || feetech.IsTimeout(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (f *Feetech) ReadRegister(ctx context.Context, id int, reg Register) (int, error) {
	s := f.servo(id)

	switch reg {
	case Position:
		return s.Position(ctx)
	case Speed:
		return s.Velocity(ctx)
	case Temperature:
		return s.Temperature(ctx)
	case Voltage:
		return s.Voltage(ctx)
	case Current:
		data, err := f.bus.ReadRegister(ctx, id, feetech.RegPresentCurrent.Address, feetech.RegPresentCurrent.Size)
		if err != nil {
			return 0, err
		}
		return int(f.bus.Protocol().DecodeWord(data)), nil
	case Load:
		return s.Load(ctx)
	case Moving:
		moving, err := s.Moving(ctx)
		if err != nil {
			return 0, err
		}
		if moving {
			return 1, nil
		}
		return 0, nil
	}

	return 0, fmt.Errorf("unknown register: %s", reg)
}

func (f *Feetech) SetSpeed(ctx context.Context, id, speed int) error {
	return f.servo(id).SetVelocity(ctx, speed)
}

func (f *Feetech) SetAcceleration(ctx context.Context, id, acceleration int) error {
	return f.bus.WriteRegister(ctx, id, feetech.RegAcceleration.Address, []byte{byte(acceleration)})
}

func (f *Feetech) MoveTo(ctx context.Context, id, position int) error {
	return f.servo(id).SetPosition(ctx, position)
}

func (f *Feetech) Stop(ctx context.Context, id int) error {
	return f.servo(id).Disable(ctx)
}

func (f *Feetech) Start(ctx context.Context, id int) error {
	return f.servo(id).Enable(ctx)
}

// SetID writes a new ID to EEPROM. The lock register is opened for the write
// and closed again at the new address.
func (f *Feetech) SetID(ctx context.Context, id, newID int) error {
	if err := ValidateID(newID); err != nil {
		return err
	}

	if err := f.bus.WriteRegister(ctx, id, feetech.RegLock.Address, []byte{0}); err != nil {
		return fmt.Errorf("unlock eeprom: %w", err)
	}

	// Disables torque before writing the ID register.
	if err := f.servo(id).SetID(ctx, newID); err != nil {
		return fmt.Errorf("write id: %w", err)
	}

	if err := f.bus.WriteRegister(ctx, newID, feetech.RegLock.Address, []byte{1}); err != nil {
		return fmt.Errorf("lock eeprom: %w", err)
	}
	return nil
}
