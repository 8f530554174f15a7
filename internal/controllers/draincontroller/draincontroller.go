package draincontroller

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pandora-iot/pot-controller/internal/datadog"
	"github.com/pandora-iot/pot-controller/internal/gpio"
	"github.com/pandora-iot/pot-controller/internal/model"
	"github.com/pandora-iot/pot-controller/internal/scheduler"
)

const Interval = time.Second

// PumpRateMLPerSecond converts a commanded volume limit into an
// equivalent pump run time.
const PumpRateMLPerSecond = 20.0

var activatePump = gpio.Activate
var deactivatePump = gpio.Deactivate

// Controller turns the Drain command slot plus elapsed time into a pump
// output level. Its lastActed timestamp is the edge detector: a command
// whose origin is strictly newer is applied once, then only its expiry is
// evaluated. An origin equal to lastActed is not a new command.
type Controller struct {
	pin       model.GPIOPin
	startedAt time.Time
	lastActed time.Time
}

func New(pin model.GPIOPin) *Controller {
	return &Controller{pin: pin}
}

func (c *Controller) Task(st *model.DeviceState) *scheduler.Task {
	return scheduler.NewTask("drain-controller", Interval, func(now time.Time) {
		c.Tick(now, st)
	})
}

func (c *Controller) Tick(now time.Time, st *model.DeviceState) {
	cmd := &st.History.Drain

	// Safety default: no affirmative command, or no water in the
	// reservoir, forces the pump off unconditionally.
	if !cmd.On || !st.Telemetry.ReservoirFull {
		if cmd.On && !st.Telemetry.ReservoirFull && !c.startedAt.IsZero() {
			log.Warn().Msg("Reservoir empty mid-drain, stopping pump")
		}
		deactivatePump(c.pin)
		c.startedAt = time.Time{}
		return
	}

	if c.lastActed.Before(cmd.Origin) {
		c.lastActed = cmd.Origin
		c.startedAt = now
		activatePump(c.pin)
		log.Info().
			Uint32("limit_ml", cmd.Limit).
			Time("origin", cmd.Origin).
			Msg("Drain command applied, pump on")
		datadog.Incr("drain.activated")
		return
	}

	if c.startedAt.IsZero() {
		// Command is on but no rising edge started a run; stay off until
		// a fresh origin arrives.
		deactivatePump(c.pin)
		return
	}

	runFor := time.Duration(float64(cmd.Limit) / PumpRateMLPerSecond * float64(time.Second))
	if now.Sub(c.startedAt) > runFor {
		deactivatePump(c.pin)
		cmd.On = false
		c.startedAt = time.Time{}
		log.Info().Uint32("limit_ml", cmd.Limit).Msg("Drain volume limit reached, pump off")
		datadog.Incr("drain.completed")
		return
	}

	// Still inside the run; output writes are idempotent.
	activatePump(c.pin)
}
