package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gwillem/stsjog/pkg/servo"
)

var errFake = errors.New("fake driver failure")

// recorder keeps the serialized trace of driver calls.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) trace() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

type readKey struct {
	id  int
	reg servo.Register
}

// fakeDriver is a scriptable servo.Driver.
type fakeDriver struct {
	port  string
	rec   *recorder
	delay time.Duration

	present   map[int]bool
	pingErr   map[int]error
	readErr   map[readKey]error
	values    map[servo.Register]int
	commandErr error
	closeErr   error
}

func newFakeDriver(port string, rec *recorder) *fakeDriver {
	return &fakeDriver{
		port:    port,
		rec:     rec,
		present: make(map[int]bool),
		pingErr: make(map[int]error),
		readErr: make(map[readKey]error),
		values:  make(map[servo.Register]int),
	}
}

func (d *fakeDriver) step() {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
}

func (d *fakeDriver) Ping(ctx context.Context, id int) (bool, error) {
	d.rec.record("ping %d", id)
	d.step()
	if err := d.pingErr[id]; err != nil {
		return false, err
	}
	return d.present[id], nil
}

func (d *fakeDriver) ReadRegister(ctx context.Context, id int, reg servo.Register) (int, error) {
	d.rec.record("read %d %s", id, reg)
	d.step()
	if err := d.readErr[readKey{id, reg}]; err != nil {
		return 0, err
	}
	return d.values[reg], nil
}

func (d *fakeDriver) SetSpeed(ctx context.Context, id, speed int) error {
	d.rec.record("speed %d %d", id, speed)
	d.step()
	return d.commandErr
}

func (d *fakeDriver) SetAcceleration(ctx context.Context, id, acceleration int) error {
	d.rec.record("accel %d %d", id, acceleration)
	d.step()
	return d.commandErr
}

func (d *fakeDriver) MoveTo(ctx context.Context, id, position int) error {
	d.rec.record("move %d %d", id, position)
	d.step()
	return d.commandErr
}

func (d *fakeDriver) Stop(ctx context.Context, id int) error {
	d.rec.record("torque-off %d", id)
	d.step()
	return d.commandErr
}

func (d *fakeDriver) Start(ctx context.Context, id int) error {
	d.rec.record("torque-on %d", id)
	d.step()
	return d.commandErr
}

func (d *fakeDriver) SetID(ctx context.Context, id, newID int) error {
	d.rec.record("set-id %d %d", id, newID)
	d.step()
	return d.commandErr
}

func (d *fakeDriver) Close() error {
	d.rec.record("close %s", d.port)
	return d.closeErr
}

// fakeBus opens fakeDrivers and records opens in the same trace.
type fakeBus struct {
	rec     *recorder
	openErr map[string]error
	drivers map[string]*fakeDriver
	setup   func(*fakeDriver)
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		rec:     &recorder{},
		openErr: make(map[string]error),
		drivers: make(map[string]*fakeDriver),
	}
}

func (b *fakeBus) open(port string) (servo.Driver, error) {
	b.rec.record("open %s", port)
	if err := b.openErr[port]; err != nil {
		return nil, err
	}
	d := newFakeDriver(port, b.rec)
	if b.setup != nil {
		b.setup(d)
	}
	b.drivers[port] = d
	return d, nil
}
