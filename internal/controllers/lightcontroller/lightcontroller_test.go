package lightcontroller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pandora-iot/pot-controller/internal/model"
)

var t0 = time.Date(2026, 4, 12, 20, 0, 0, 0, time.UTC)

var (
	redPin   = model.GPIOPin{Number: 22, ActiveHigh: true}
	greenPin = model.GPIOPin{Number: 23, ActiveHigh: true}
	bluePin  = model.GPIOPin{Number: 24, ActiveHigh: true}
)

type pinRecorder struct {
	active map[int]bool
}

func record(t *testing.T) *pinRecorder {
	r := &pinRecorder{active: map[int]bool{}}

	origActivate := activateChannel
	origDeactivate := deactivateChannel
	t.Cleanup(func() {
		activateChannel = origActivate
		deactivateChannel = origDeactivate
	})

	activateChannel = func(pin model.GPIOPin) { r.active[pin.Number] = true }
	deactivateChannel = func(pin model.GPIOPin) { r.active[pin.Number] = false }
	return r
}

func stateWithLight(cmd model.LightCommand) *model.DeviceState {
	st := &model.DeviceState{}
	st.History.Light = cmd
	return st
}

func TestRisingEdgeAppliesMask(t *testing.T) {
	pins := record(t)
	st := stateWithLight(model.LightCommand{RGB: model.RGBRed | model.RGBGreen, Limit: 10, Origin: t0})
	c := New(redPin, greenPin, bluePin)

	c.Tick(t0, st)
	assert.True(t, pins.active[22])
	assert.True(t, pins.active[23])
	assert.False(t, pins.active[24])
}

func TestDurationExpiryClearsOutputsAndMask(t *testing.T) {
	pins := record(t)
	st := stateWithLight(model.LightCommand{RGB: model.RGBRed | model.RGBGreen, Limit: 10, Origin: t0})
	c := New(redPin, greenPin, bluePin)

	c.Tick(t0, st)
	c.Tick(t0.Add(11*time.Second), st)

	assert.False(t, pins.active[22])
	assert.False(t, pins.active[23])
	assert.False(t, pins.active[24])
	assert.Equal(t, uint8(0), st.History.Light.RGB)
}

func TestReentryDoesNotRestartRun(t *testing.T) {
	record(t)
	st := stateWithLight(model.LightCommand{RGB: model.RGBBlue, Limit: 10, Origin: t0})
	c := New(redPin, greenPin, bluePin)

	c.Tick(t0, st)
	started := c.startedAt

	c.Tick(t0.Add(time.Second), st)
	c.Tick(t0.Add(2*time.Second), st)
	assert.Equal(t, started, c.startedAt)
}

func TestZeroMaskForcesOff(t *testing.T) {
	pins := record(t)
	st := stateWithLight(model.LightCommand{RGB: model.RGBAll, Limit: 3600, Origin: t0})
	c := New(redPin, greenPin, bluePin)

	c.Tick(t0, st)
	assert.True(t, pins.active[22])

	// e.g. the light autopilot zeroing the mask out-of-window. No origin
	// bump needed: the zero-mask path turns everything off.
	st.History.Light.RGB = 0
	c.Tick(t0.Add(time.Second), st)
	assert.False(t, pins.active[22])
	assert.False(t, pins.active[23])
	assert.False(t, pins.active[24])
	assert.True(t, c.startedAt.IsZero())
}

func TestNewOriginRestartsRun(t *testing.T) {
	pins := record(t)
	st := stateWithLight(model.LightCommand{RGB: model.RGBRed, Limit: 10, Origin: t0})
	c := New(redPin, greenPin, bluePin)

	c.Tick(t0, st)
	c.Tick(t0.Add(11*time.Second), st) // expires

	st.History.Light = model.LightCommand{RGB: model.RGBGreen, Limit: 10, Origin: t0.Add(12 * time.Second)}
	c.Tick(t0.Add(12*time.Second), st)
	assert.False(t, pins.active[22])
	assert.True(t, pins.active[23])
}

func TestIdenticalOriginIsNotANewCommand(t *testing.T) {
	pins := record(t)
	st := stateWithLight(model.LightCommand{RGB: model.RGBRed, Limit: 10, Origin: t0})
	c := New(redPin, greenPin, bluePin)

	c.Tick(t0, st)
	c.Tick(t0.Add(11*time.Second), st) // expires, mask cleared

	st.History.Light = model.LightCommand{RGB: model.RGBRed, Limit: 10, Origin: t0}
	c.Tick(t0.Add(12*time.Second), st)
	assert.False(t, pins.active[22])
}
