package drainautopilot

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pandora-iot/pot-controller/internal/datadog"
	"github.com/pandora-iot/pot-controller/internal/model"
	"github.com/pandora-iot/pot-controller/internal/scheduler"
)

const Interval = 60 * time.Second

// BurstML is the volume of a single autopilot watering burst.
const BurstML = 50

func NewTask(st *model.DeviceState) *scheduler.Task {
	return scheduler.NewTask("drain-autopilot", Interval, func(now time.Time) {
		Evaluate(now, st)
	})
}

// Evaluate synthesizes a Drain command when the soil is drier than the
// configured threshold inside the allowed window, and forces the command
// off outside it. The fresh origin timestamp is what makes the drain
// controller pick the synthetic command up.
func Evaluate(now time.Time, st *model.DeviceState) {
	ap := st.History.Autopilot
	if !ap.On {
		return
	}

	if !ap.Drain.Window.Contains(now) {
		if st.History.Drain.On {
			log.Debug().Msg("Outside drain autopilot window, forcing drain command off")
		}
		st.History.Drain.On = false
		return
	}

	if st.Telemetry.SoilDryness > ap.Drain.Threshold {
		st.History.Drain = model.DrainCommand{On: true, Limit: BurstML, Origin: now}
		log.Info().
			Uint16("soil_dryness", st.Telemetry.SoilDryness).
			Uint16("threshold", ap.Drain.Threshold).
			Msg("Soil dry, autopilot watering burst commanded")
		datadog.Incr("autopilot.drain_burst")
	}
}
