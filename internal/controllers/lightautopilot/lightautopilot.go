package lightautopilot

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pandora-iot/pot-controller/internal/datadog"
	"github.com/pandora-iot/pot-controller/internal/model"
	"github.com/pandora-iot/pot-controller/internal/scheduler"
)

const Interval = 60 * time.Second

// GlowSeconds is the duration of a synthesized lighting command.
const GlowSeconds = 3600

func NewTask(st *model.DeviceState) *scheduler.Task {
	return scheduler.NewTask("light-autopilot", Interval, func(now time.Time) {
		Evaluate(now, st)
	})
}

// Evaluate synthesizes a full-white Light command when ambient brightness
// drops below the threshold inside the allowed window. Outside the window
// it zeroes the rgb mask without touching the origin: the light
// controller's zero-mask path turns the channels off on its next tick, so
// no edge is needed for shutdown.
func Evaluate(now time.Time, st *model.DeviceState) {
	ap := st.History.Autopilot
	if !ap.On {
		return
	}

	if !ap.Light.Window.Contains(now) {
		if st.History.Light.RGB != 0 {
			log.Debug().Msg("Outside light autopilot window, clearing light mask")
		}
		st.History.Light.RGB = 0
		return
	}

	if st.Telemetry.Brightness < ap.Light.Threshold {
		st.History.Light = model.LightCommand{RGB: model.RGBAll, Limit: GlowSeconds, Origin: now}
		log.Info().
			Uint16("brightness", st.Telemetry.Brightness).
			Uint16("threshold", ap.Light.Threshold).
			Msg("Ambient light low, autopilot grow light commanded")
		datadog.Incr("autopilot.light_on")
	}
}
