package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pandora-iot/pot-controller/internal/config"
	"github.com/pandora-iot/pot-controller/internal/model"
	"github.com/pandora-iot/pot-controller/internal/pinctrl"
	"github.com/pandora-iot/pot-controller/system/shutdown"
)

var safeMode bool

func SetSafeMode(enabled bool) {
	safeMode = enabled
}

var readLevel = pinctrl.ReadLevel

// ValidateStartupPins refuses to start the controller if any actuator
// output is already driven. The reservoir switch is an input and is not
// checked.
func ValidateStartupPins(cfg *config.Config) error {
	checks := []struct {
		Name string
		Pin  model.GPIOPin
	}{
		{"drain_pump", cfg.Pin(cfg.GPIO.DrainPump)},
		{"light_red", cfg.Pin(cfg.GPIO.LightRed)},
		{"light_green", cfg.Pin(cfg.GPIO.LightGreen)},
		{"light_blue", cfg.Pin(cfg.GPIO.LightBlue)},
	}

	for _, check := range checks {
		level, err := readLevel(check.Pin.Number)
		if err != nil {
			return fmt.Errorf("failed to read pin level for %s (GPIO %d): %w", check.Name, check.Pin.Number, err)
		}
		isActive := (check.Pin.ActiveHigh && level) || (!check.Pin.ActiveHigh && !level)
		if isActive {
			return fmt.Errorf("pin %d (%s) is already driven at startup", check.Pin.Number, check.Name)
		}
	}

	return nil
}

func Read(pin model.GPIOPin) bool {
	level, err := readLevel(pin.Number)
	if err != nil {
		shutdown.ShutdownWithError(err, fmt.Sprintf("Failed to read pin level for pin %d", pin.Number))
	}
	return level
}

var Activate = func(pin model.GPIOPin) {
	if safeMode {
		return
	}

	if pin.ActiveHigh {
		err := pinctrl.SetPin(pin.Number, "op", "pn", "dh")
		if err != nil {
			shutdown.ShutdownWithError(err, fmt.Sprintf("Failed to activate pin %d", pin.Number))
		}
		return
	}

	err := pinctrl.SetPin(pin.Number, "op", "pn", "dl")
	if err != nil {
		shutdown.ShutdownWithError(err, fmt.Sprintf("Failed to activate pin %d", pin.Number))
	}
}

var Deactivate = func(pin model.GPIOPin) {
	if safeMode {
		return
	}

	if pin.ActiveHigh {
		err := pinctrl.SetPin(pin.Number, "op", "pn", "dl")
		if err != nil {
			shutdown.ShutdownWithError(err, fmt.Sprintf("Failed to deactivate pin %d", pin.Number))
		}
		return
	}

	err := pinctrl.SetPin(pin.Number, "op", "pn", "dh")
	if err != nil {
		shutdown.ShutdownWithError(err, fmt.Sprintf("Failed to deactivate pin %d", pin.Number))
	}
}

var CurrentlyActive = func(pin model.GPIOPin) bool {
	level := Read(pin)
	return pin.ActiveHigh == level
}

// ReadADCRaw reads a raw IIO ADC sample (e.g. in_voltage0_raw) from sysfs.
// Values above 16 bits are clamped; the scale is sensor-specific and the
// protocol carries the raw number.
var ReadADCRaw = func(path string) (uint16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to read ADC value")
		return 0, err
	}

	raw, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to parse ADC value")
		return 0, err
	}

	if raw < 0 {
		raw = 0
	}
	if raw > 0xFFFF {
		raw = 0xFFFF
	}
	return uint16(raw), nil
}

// ReadClimate reads temperature (°C) and relative humidity (%) from a
// hwmon-style sensor directory exposing temp1_input and humidity1_input
// in milli-units.
var ReadClimate = func(dir string) (float64, float64, error) {
	temp, err := readMilli(filepath.Join(dir, "temp1_input"))
	if err != nil {
		return 0, 0, err
	}
	humidity, err := readMilli(filepath.Join(dir, "humidity1_input"))
	if err != nil {
		return 0, 0, err
	}
	return temp, humidity, nil
}

func readMilli(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return float64(milli) / 1000.0, nil
}
