package sensors

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pandora-iot/pot-controller/internal/datadog"
	"github.com/pandora-iot/pot-controller/internal/gpio"
	"github.com/pandora-iot/pot-controller/internal/model"
	"github.com/pandora-iot/pot-controller/internal/scheduler"
)

// Sampling intervals. The reservoir switch is polled fast because the
// drain controller's safety cutoff depends on it; the analog and climate
// sensors change slowly.
const (
	ReservoirInterval = time.Second
	SoilInterval      = 10 * time.Second
	LightInterval     = 10 * time.Second
	ClimateInterval   = 30 * time.Second
)

var (
	readADC     = gpio.ReadADCRaw
	readClimate = gpio.ReadClimate
	readSwitch  = gpio.CurrentlyActive
)

// NewReservoirTask polls the float switch. The switch is wired so that
// its active level means the reservoir holds water.
func NewReservoirTask(st *model.DeviceState, pin model.GPIOPin) *scheduler.Task {
	return scheduler.NewTask("reservoir-sensor", ReservoirInterval, func(now time.Time) {
		full := readSwitch(pin)
		if full != st.Telemetry.ReservoirFull {
			log.Info().Bool("full", full).Msg("Reservoir level changed")
		}
		st.Telemetry.ReservoirFull = full
	})
}

// NewSoilTask samples the soil dryness ADC. It also owns SampledAt, so
// the telemetry timestamp advances even when other sensors fail. A read
// failure keeps the previous sample.
func NewSoilTask(st *model.DeviceState, path string) *scheduler.Task {
	return scheduler.NewTask("soil-sensor", SoilInterval, func(now time.Time) {
		st.Telemetry.SampledAt = now
		raw, err := readADC(path)
		if err != nil {
			datadog.Incr("sensors.read_failure")
			return
		}
		st.Telemetry.SoilDryness = raw
		datadog.Gauge("sensors.soil_dryness", float64(raw))
	})
}

func NewBrightnessTask(st *model.DeviceState, path string) *scheduler.Task {
	return scheduler.NewTask("brightness-sensor", LightInterval, func(now time.Time) {
		raw, err := readADC(path)
		if err != nil {
			datadog.Incr("sensors.read_failure")
			return
		}
		st.Telemetry.Brightness = raw
		datadog.Gauge("sensors.brightness", float64(raw))
	})
}

func NewClimateTask(st *model.DeviceState, dir string) *scheduler.Task {
	return scheduler.NewTask("climate-sensor", ClimateInterval, func(now time.Time) {
		temp, humidity, err := readClimate(dir)
		if err != nil {
			log.Error().Err(err).Msg("failed to read climate sensor")
			datadog.Incr("sensors.read_failure")
			return
		}
		st.Telemetry.Temperature = temp
		st.Telemetry.Humidity = humidity
		datadog.Gauge("sensors.temperature", temp)
		datadog.Gauge("sensors.humidity", humidity)
	})
}
