package servo

import (
	"context"
	"testing"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func openSim(t *testing.T, sim *SimBus) *Feetech {
	t.Helper()

	drv, err := NewFeetech("sim", BusConfig{
		Timeout:   10 * time.Millisecond,
		Transport: sim.Transport,
	})
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	return drv
}

func TestFeetech_Ping(t *testing.T) {
	drv := openSim(t, NewSimBus(3, 7))
	ctx := context.Background()

	ok, err := drv.Ping(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = drv.Ping(ctx, 4)
	require.NoError(t, err, "silence is absence, not an error")
	assert.False(t, ok)

	_, err = drv.Ping(ctx, 254)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestFeetech_PingStatusError(t *testing.T) {
	sim := NewSimBus(5)
	sim.SetStatusError(5, feetech.ErrOverheat)
	drv := openSim(t, sim)

	ok, err := drv.Ping(context.Background(), 5)
	assert.False(t, ok)
	require.Error(t, err)

	servoErr, isServoErr := feetech.GetServoError(err)
	require.True(t, isServoErr)
	assert.Equal(t, 5, servoErr.ID)
}

func TestFeetech_MoveAndRead(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	sim := NewSimBus(1)
	sim.SetClock(clock.now)
	drv := openSim(t, sim)
	ctx := context.Background()

	require.NoError(t, drv.Start(ctx, 1))
	require.NoError(t, drv.SetSpeed(ctx, 1, 1000))
	require.NoError(t, drv.SetAcceleration(ctx, 1, 20))
	require.NoError(t, drv.MoveTo(ctx, 1, 2148))

	accel, ok := sim.Register(1, feetech.RegAcceleration.Address)
	require.True(t, ok)
	assert.EqualValues(t, 20, accel)

	clock.advance(50 * time.Millisecond)

	pos, err := drv.ReadRegister(ctx, 1, Position)
	require.NoError(t, err)
	assert.Equal(t, 2098, pos)

	speed, err := drv.ReadRegister(ctx, 1, Speed)
	require.NoError(t, err)
	assert.Equal(t, 1000, speed)

	moving, err := drv.ReadRegister(ctx, 1, Moving)
	require.NoError(t, err)
	assert.Equal(t, 1, moving)

	clock.advance(time.Second)

	pos, err = drv.ReadRegister(ctx, 1, Position)
	require.NoError(t, err)
	assert.Equal(t, 2148, pos)

	moving, err = drv.ReadRegister(ctx, 1, Moving)
	require.NoError(t, err)
	assert.Zero(t, moving)
}

func TestFeetech_MoveBackwards(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	sim := NewSimBus(1)
	sim.SetClock(clock.now)
	drv := openSim(t, sim)
	ctx := context.Background()

	require.NoError(t, drv.Start(ctx, 1))
	require.NoError(t, drv.SetSpeed(ctx, 1, 500))
	require.NoError(t, drv.MoveTo(ctx, 1, 1048))

	clock.advance(100 * time.Millisecond)

	pos, err := drv.ReadRegister(ctx, 1, Position)
	require.NoError(t, err)
	assert.Equal(t, 1998, pos)

	speed, err := drv.ReadRegister(ctx, 1, Speed)
	require.NoError(t, err)
	assert.Equal(t, -500, speed)
}

func TestFeetech_NoMotionWithoutTorque(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	sim := NewSimBus(1)
	sim.SetClock(clock.now)
	drv := openSim(t, sim)
	ctx := context.Background()

	require.NoError(t, drv.MoveTo(ctx, 1, 3000))
	clock.advance(time.Second)

	pos, err := drv.ReadRegister(ctx, 1, Position)
	require.NoError(t, err)
	assert.Equal(t, 2048, pos)
}

func TestFeetech_Telemetry(t *testing.T) {
	drv := openSim(t, NewSimBus(2))
	ctx := context.Background()

	tests := []struct {
		reg  Register
		want int
	}{
		{Temperature, simAmbientTempC},
		{Voltage, simSupplyVolts},
		{Current, simIdleCurrent},
		{Load, 0},
		{Moving, 0},
	}

	for _, tt := range tests {
		got, err := drv.ReadRegister(ctx, 2, tt.reg)
		require.NoError(t, err, tt.reg.String())
		assert.Equal(t, tt.want, got, tt.reg.String())
	}

	_, err := drv.ReadRegister(ctx, 2, Register(99))
	assert.Error(t, err)
}

func TestFeetech_ReadAbsent(t *testing.T) {
	drv := openSim(t, NewSimBus(2))

	_, err := drv.ReadRegister(context.Background(), 9, Position)
	assert.True(t, feetech.IsNoResponse(err), "got %v", err)
}

func TestFeetech_SetID(t *testing.T) {
	sim := NewSimBus(3)
	drv := openSim(t, sim)
	ctx := context.Background()

	require.NoError(t, drv.SetID(ctx, 3, 9))
	assert.Equal(t, []int{9}, sim.IDs())

	lock, ok := sim.Register(9, feetech.RegLock.Address)
	require.True(t, ok)
	assert.EqualValues(t, 1, lock, "eeprom relocked at the new id")

	torque, _ := sim.Register(9, feetech.RegTorqueEnable.Address)
	assert.Zero(t, torque)

	present, err := drv.Ping(ctx, 9)
	require.NoError(t, err)
	assert.True(t, present)

	present, err = drv.Ping(ctx, 3)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestFeetech_SetIDInvalid(t *testing.T) {
	sim := NewSimBus(3)
	drv := openSim(t, sim)

	err := drv.SetID(context.Background(), 3, 254)
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.Equal(t, []int{3}, sim.IDs())
}

func TestSimBus_LockedIDWrite(t *testing.T) {
	sim := NewSimBus(3)
	drv := openSim(t, sim)

	// Writing the ID register without unlocking EEPROM is rejected.
	err := drv.bus.WriteRegister(context.Background(), 3, feetech.RegID.Address, []byte{4})
	assert.Error(t, err)
	assert.Equal(t, []int{3}, sim.IDs())
}

func TestFeetech_Closed(t *testing.T) {
	drv := openSim(t, NewSimBus(1))
	require.NoError(t, drv.Close())

	_, err := drv.ReadRegister(context.Background(), 1, Position)
	assert.ErrorIs(t, err, feetech.ErrBusClosed)
}

func TestOpen(t *testing.T) {
	sim := NewSimBus(1)
	open := Open(BusConfig{Timeout: 10 * time.Millisecond, Transport: sim.Transport})

	drv, err := open("sim0")
	require.NoError(t, err)
	defer drv.Close()

	assert.Equal(t, "sim0", drv.(*Feetech).Port())
}

func TestFeetech_SetSpeedSignMagnitude(t *testing.T) {
	sim := NewSimBus(1)
	drv := openSim(t, sim)
	ctx := context.Background()

	tests := []struct {
		speed     int
		low, high byte
	}{
		{1000, 0xE8, 0x03},
		{0, 0x00, 0x00},
		{-300, 0x2C, 0x81}, // bit 15 carries the direction
	}

	for _, tt := range tests {
		require.NoError(t, drv.SetSpeed(ctx, 1, tt.speed))

		low, _ := sim.Register(1, feetech.RegGoalVelocity.Address)
		high, _ := sim.Register(1, feetech.RegGoalVelocity.Address+1)
		assert.Equal(t, []byte{tt.low, tt.high}, []byte{low, high}, "speed %d", tt.speed)
	}
}

func TestSimBus_Framing(t *testing.T) {
	sim := NewSimBus(7)
	proto := feetech.NewProtocol(feetech.ProtocolSTS)

	resp, _, err := proto.Decode(sim.handle(proto.ReadPacket(7, feetech.RegPresentPosition.Address, 2)))
	require.NoError(t, err)
	assert.EqualValues(t, 7, resp.ID)
	assert.Zero(t, resp.Error)
	assert.EqualValues(t, 2048, proto.DecodeWord(resp.Parameters))

	resp, _, err = proto.Decode(sim.handle(proto.PingPacket(7)))
	require.NoError(t, err)
	assert.EqualValues(t, 7, resp.ID)
	assert.Empty(t, resp.Parameters)

	sim.SetStatusError(7, feetech.ErrOverheat)
	resp, _, err = proto.Decode(sim.handle(proto.PingPacket(7)))
	require.NoError(t, err)
	assert.Equal(t, feetech.ErrOverheat, resp.Error)

	corrupt := proto.PingPacket(7)
	corrupt[len(corrupt)-1]++
	assert.Nil(t, sim.handle(corrupt), "bad checksum")
	assert.Nil(t, sim.handle(proto.PingPacket(8)), "absent id")
	assert.Nil(t, sim.handle(proto.PingPacket(feetech.BroadcastID)), "broadcast")
}
