package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/pandora-iot/pot-controller/internal/env"
	"github.com/pandora-iot/pot-controller/internal/pinctrl"
)

// AllOutputsOff drives the pump and every light channel to its inactive
// level. Called on fatal errors so a crash never leaves water flowing.
func AllOutputsOff() {
	if env.Cfg.SafeMode {
		return
	}

	drive := "dl"
	if !env.Cfg.RelayActiveHigh {
		drive = "dh"
	}

	outputs := []*int{
		env.Cfg.GPIO.DrainPump,
		env.Cfg.GPIO.LightRed,
		env.Cfg.GPIO.LightGreen,
		env.Cfg.GPIO.LightBlue,
	}
	for _, pin := range outputs {
		if pin == nil {
			continue
		}
		if err := pinctrl.SetPin(*pin, "op", "pn", drive); err != nil {
			log.Error().Err(err).Int("pin", *pin).Msg("Failed to drive output to safe state")
		}
	}
	log.Info().Msg("All actuator outputs driven to safe state")
}

func Shutdown() {
	AllOutputsOff()
	os.Exit(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Shutdown()
}
