package session

import (
	"context"
	"testing"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/stsjog/pkg/servo"
)

func TestController_SimBus(t *testing.T) {
	sim := servo.NewSimBus(3, 7, 12)
	c := New(servo.Open(servo.BusConfig{
		Timeout:   5 * time.Millisecond,
		Transport: sim.Transport,
	}))
	require.NoError(t, c.Connect("sim"))
	defer c.Disconnect()
	ctx := context.Background()

	found, err := c.Scan(ctx, servo.DefaultScanRange, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 12}, found)

	require.NoError(t, c.SetTorque(ctx, 7, true))
	require.NoError(t, c.MoveTo(ctx, 7, 2100, servo.SpeedRange.Max, 0))

	require.Eventually(t, func() bool {
		st, err := c.ReadStatus(ctx, 7)
		return err == nil && st.Position == 2100 && !st.Moving
	}, time.Second, 10*time.Millisecond)

	st, err := c.ReadStatus(ctx, 7)
	require.NoError(t, err)
	assert.InDelta(t, 7.4, st.Voltage, 0.001)
	assert.Equal(t, 32, st.Temperature)

	require.NoError(t, c.ChangeID(ctx, 12, 20))
	assert.Equal(t, Absent, c.Ping(ctx, 12))
	assert.Equal(t, Present, c.Ping(ctx, 20))

	_, err = c.ReadStatus(ctx, 12)
	assert.True(t, IsDeviceError(err))
	assert.True(t, feetech.IsNoResponse(err))
}

func TestController_SimReconnect(t *testing.T) {
	sim := servo.NewSimBus(1)
	c := New(servo.Open(servo.BusConfig{
		Timeout:   5 * time.Millisecond,
		Transport: sim.Transport,
	}))
	ctx := context.Background()

	require.NoError(t, c.Connect("sim"))
	require.NoError(t, c.ChangeID(ctx, 1, 2))
	require.NoError(t, c.Connect("sim"))

	assert.Equal(t, Present, c.Ping(ctx, 2), "servo state survives reconnect")
}
