// Package session owns the connection to one servo bus and serializes every
// operation on it.
//
// A Controller holds at most one open driver. Each public operation takes
// the controller lock for its full duration, so the register sequences of two
// callers never interleave on the wire. StartScan is the exception: it takes
// the lock once per probed ID. Command operations (MoveTo,
// ReadStatus, Stop, SetTorque, ChangeID) fail loudly with ErrNotConnected or
// a *DeviceError; probes (Ping, Scan) report absence instead of failing.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gwillem/stsjog/pkg/servo"
)

// Default motion parameters for MoveTo.
const (
	DefaultSpeed        = 1000
	DefaultAcceleration = 50
)

// Controller manages the session with one servo bus.
type Controller struct {
	open    servo.Opener
	log     *slog.Logger
	metrics *Metrics

	mu     sync.Mutex
	driver servo.Driver
	port   string

	connected atomic.Bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default discards all records.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// WithMetrics records operations in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// New creates a disconnected controller that opens drivers with open.
func New(open servo.Opener, opts ...Option) *Controller {
	c := &Controller{
		open: open,
		log:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connected reports whether a driver is open.
func (c *Controller) Connected() bool {
	return c.connected.Load()
}

// Connect opens a driver on port, releasing any driver opened before.
// On failure the controller is left disconnected and an *OpenError is
// returned.
func (c *Controller) Connect(port string) error {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseLocked()

	drv, err := c.open(port)
	if err != nil {
		c.metrics.observe("connect", resultError, start)
		return &OpenError{Port: port, Err: err}
	}

	c.driver = drv
	c.port = port
	c.connected.Store(true)
	c.metrics.setConnected(true)
	c.metrics.observe("connect", resultOK, start)
	c.log.Info("connected", "port", port)
	return nil
}

// Disconnect releases the driver. It is safe to call when disconnected.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver != nil {
		c.log.Info("disconnected", "port", c.port)
	}
	c.releaseLocked()
}

func (c *Controller) releaseLocked() {
	if c.driver == nil {
		return
	}
	if err := c.driver.Close(); err != nil {
		c.log.Warn("release driver", "port", c.port, "error", err)
	}
	c.driver = nil
	c.port = ""
	c.connected.Store(false)
	c.metrics.setConnected(false)
}

// Ping probes id. Any driver failure, and a closed session, read as Absent.
func (c *Controller) Ping(ctx context.Context, id int) Presence {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver == nil {
		c.metrics.observe("ping", resultNotConnected, start)
		return Absent
	}

	p := c.probeLocked(ctx, id)
	c.metrics.observe("ping", p.String(), start)
	return p
}

func (c *Controller) probeLocked(ctx context.Context, id int) Presence {
	ok, err := c.driver.Ping(ctx, id)
	if err != nil {
		c.log.Debug("probe failed", "id", id, "error", err)
		return Absent
	}
	return Presence(ok)
}

// Progress reports how far a scan has come.
type Progress struct {
	Percent int   // 0-100, non-decreasing within one scan
	ID      int   // last probed ID
	Found   []int // IDs found so far, ascending
}

// Scan pings every ID in r in ascending order and returns the IDs that
// answered. A closed session finds nothing and makes no driver calls.
//
// The lock is held for the whole sweep. progress, if not nil, is called
// after each ID while the lock is held and must not call the controller.
// If ctx is canceled between IDs, the IDs found so far are returned with
// ctx.Err().
func (c *Controller) Scan(ctx context.Context, r servo.IDRange, progress func(Progress)) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sweep(ctx, r, c.driver != nil, func(id int) (Presence, bool) {
		return c.probeLocked(ctx, id), true
	}, progress)
}

// pingOne pings id under its own lock hold. It reports false when the
// session was closed.
func (c *Controller) pingOne(ctx context.Context, id int) (Presence, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver == nil {
		return Absent, false
	}
	return c.probeLocked(ctx, id), true
}

// sweep walks r in ascending order, calling ping for each ID. It stops
// early when ctx is canceled or ping reports the session closed.
func (c *Controller) sweep(ctx context.Context, r servo.IDRange, open bool, ping func(id int) (Presence, bool), progress func(Progress)) ([]int, error) {
	start := time.Now()

	if !open {
		c.metrics.observe("scan", resultNotConnected, start)
		return nil, nil
	}
	if err := r.Validate(); err != nil {
		c.metrics.observe("scan", resultError, start)
		return nil, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}

	var found []int
	total := r.Len()
	for i, id := range r.IDs() {
		if err := ctx.Err(); err != nil {
			c.metrics.observe("scan", resultCanceled, start)
			c.log.Info("scan canceled", "range", r.String(), "at", id, "found", found)
			return found, err
		}

		p, ok := ping(id)
		if !ok {
			c.metrics.observe("scan", resultNotConnected, start)
			c.log.Info("scan stopped, session closed", "range", r.String(), "at", id, "found", found)
			return found, nil
		}
		if p == Present {
			found = append(found, id)
		}

		if progress != nil {
			progress(Progress{
				Percent: (i + 1) * 100 / total,
				ID:      id,
				Found:   slices.Clone(found),
			})
		}
	}

	c.metrics.setFound(len(found))
	c.metrics.observe("scan", resultOK, start)
	c.log.Info("scan complete", "range", r.String(), "found", found)
	return found, nil
}

// MoveTo sets speed and acceleration, then commands the move. The motion
// registers only apply to later moves, so the order is fixed. Parameters are
// passed through unchecked; see servo.PositionRange and friends.
func (c *Controller) MoveTo(ctx context.Context, id, position, speed, acceleration int) error {
	return c.do(ctx, "move", id, func(d servo.Driver) error {
		if err := d.SetSpeed(ctx, id, speed); err != nil {
			return fmt.Errorf("set speed %d: %w", speed, err)
		}
		if err := d.SetAcceleration(ctx, id, acceleration); err != nil {
			return fmt.Errorf("set acceleration %d: %w", acceleration, err)
		}
		if err := d.MoveTo(ctx, id, position); err != nil {
			return fmt.Errorf("move to %d: %w", position, err)
		}
		return nil
	})
}

// ReadStatus reads a telemetry snapshot of id. If any register read fails
// the whole call fails and no partial status is returned.
func (c *Controller) ReadStatus(ctx context.Context, id int) (Status, error) {
	regs := servo.StatusRegisters()
	raw := make([]int, len(regs))

	err := c.do(ctx, "read-status", id, func(d servo.Driver) error {
		for _, reg := range regs {
			v, err := d.ReadRegister(ctx, id, reg)
			if err != nil {
				return fmt.Errorf("read %s: %w", reg, err)
			}
			raw[reg] = v
		}
		return nil
	})
	if err != nil {
		return Status{}, err
	}

	return Status{
		Position:    raw[servo.Position],
		Speed:       raw[servo.Speed],
		Temperature: raw[servo.Temperature],
		Voltage:     servo.VoltsFromRaw(raw[servo.Voltage]),
		Current:     servo.MilliampsFromRaw(raw[servo.Current]),
		Load:        servo.LoadPercentFromRaw(raw[servo.Load]),
		Moving:      raw[servo.Moving] != 0,
	}, nil
}

// Stop disables output torque of id.
func (c *Controller) Stop(ctx context.Context, id int) error {
	return c.do(ctx, "stop", id, func(d servo.Driver) error {
		return d.Stop(ctx, id)
	})
}

// SetTorque enables or disables output torque of id. Disabling goes through
// the same driver call as Stop.
func (c *Controller) SetTorque(ctx context.Context, id int, enable bool) error {
	return c.do(ctx, "torque", id, func(d servo.Driver) error {
		if enable {
			return d.Start(ctx, id)
		}
		return d.Stop(ctx, id)
	})
}

// ChangeID reassigns the bus address of the motor at current. Renaming an
// ID to itself succeeds without touching the bus. Callers holding current
// must switch to newID afterwards; collisions with another motor already at
// newID are not detected.
func (c *Controller) ChangeID(ctx context.Context, current, newID int) error {
	return c.do(ctx, "change-id", current, func(d servo.Driver) error {
		if current == newID {
			return nil
		}
		if err := servo.ValidateID(current); err != nil {
			return err
		}
		if err := servo.ValidateID(newID); err != nil {
			return err
		}
		if err := d.SetID(ctx, current, newID); err != nil {
			return err
		}
		c.log.Info("motor id changed", "from", current, "to", newID)
		return nil
	})
}

// do runs fn against the open driver while holding the lock.
func (c *Controller) do(ctx context.Context, op string, id int, fn func(servo.Driver) error) error {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver == nil {
		c.metrics.observe(op, resultNotConnected, start)
		return fmt.Errorf("%s: %w", op, ErrNotConnected)
	}
	if err := ctx.Err(); err != nil {
		c.metrics.observe(op, resultCanceled, start)
		return err
	}

	if err := fn(c.driver); err != nil {
		if errors.Is(err, servo.ErrInvalidID) {
			c.metrics.observe(op, resultError, start)
			return fmt.Errorf("%s: %w", op, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			c.metrics.observe(op, resultCanceled, start)
			return ctxErr
		}
		c.metrics.observe(op, resultError, start)
		c.log.Debug("command failed", "op", op, "id", id, "error", err)
		return &DeviceError{Op: op, ID: id, Err: err}
	}

	c.metrics.observe(op, resultOK, start)
	return nil
}
