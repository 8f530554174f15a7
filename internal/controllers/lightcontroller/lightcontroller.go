package lightcontroller

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pandora-iot/pot-controller/internal/datadog"
	"github.com/pandora-iot/pot-controller/internal/gpio"
	"github.com/pandora-iot/pot-controller/internal/model"
	"github.com/pandora-iot/pot-controller/internal/scheduler"
)

const Interval = time.Second

var activateChannel = gpio.Activate
var deactivateChannel = gpio.Deactivate

// Controller drives the three grow-light channels from the Light command
// slot. Same edge detection as the drain controller: a strictly newer
// origin re-applies the mask, an equal one does not.
type Controller struct {
	red       model.GPIOPin
	green     model.GPIOPin
	blue      model.GPIOPin
	startedAt time.Time
	lastActed time.Time
}

func New(red, green, blue model.GPIOPin) *Controller {
	return &Controller{red: red, green: green, blue: blue}
}

func (c *Controller) Task(st *model.DeviceState) *scheduler.Task {
	return scheduler.NewTask("light-controller", Interval, func(now time.Time) {
		c.Tick(now, st)
	})
}

func (c *Controller) Tick(now time.Time, st *model.DeviceState) {
	cmd := &st.History.Light

	if cmd.RGB == 0 {
		c.applyMask(0)
		c.startedAt = time.Time{}
		return
	}

	if c.lastActed.Before(cmd.Origin) {
		c.lastActed = cmd.Origin
		c.startedAt = now
		c.applyMask(cmd.RGB)
		log.Info().
			Uint8("rgb", cmd.RGB).
			Uint32("limit_s", cmd.Limit).
			Time("origin", cmd.Origin).
			Msg("Light command applied")
		datadog.Incr("light.activated")
		return
	}

	if c.startedAt.IsZero() {
		// Mask set but no edge ever started a run; default off.
		c.applyMask(0)
		return
	}

	if now.Sub(c.startedAt) > time.Duration(cmd.Limit)*time.Second {
		c.applyMask(0)
		cmd.RGB = 0
		c.startedAt = time.Time{}
		log.Info().Uint32("limit_s", cmd.Limit).Msg("Light duration limit reached, channels off")
		datadog.Incr("light.completed")
		return
	}

	c.applyMask(cmd.RGB)
}

func (c *Controller) applyMask(mask uint8) {
	c.applyChannel(c.red, mask&model.RGBRed != 0)
	c.applyChannel(c.green, mask&model.RGBGreen != 0)
	c.applyChannel(c.blue, mask&model.RGBBlue != 0)
}

func (c *Controller) applyChannel(pin model.GPIOPin, on bool) {
	if on {
		activateChannel(pin)
		return
	}
	deactivateChannel(pin)
}
