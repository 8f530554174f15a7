package model

import "time"

// RGB channel bits for the light command mask.
const (
	RGBRed   uint8 = 1 << 0
	RGBGreen uint8 = 1 << 1
	RGBBlue  uint8 = 1 << 2

	RGBAll uint8 = RGBRed | RGBGreen | RGBBlue
)

// Telemetry holds the latest sensor samples. Each field has exactly one
// writer: the sensor task that owns it. Controllers only read.
type Telemetry struct {
	SoilDryness   uint16
	Brightness    uint16
	Humidity      float64
	Temperature   float64
	ReservoirFull bool
	SampledAt     time.Time
}

// LightCommand drives the RGB grow light. Limit is in seconds.
type LightCommand struct {
	RGB    uint8
	Limit  uint32
	Origin time.Time
}

// DrainCommand drives the irrigation pump. Limit is in milliliters.
type DrainCommand struct {
	On     bool
	Limit  uint32
	Origin time.Time
}

// PilotWindow is an allowed time-of-day range for an autopilot rule.
type PilotWindow struct {
	StartHour   uint8
	StartMinute uint8
	EndHour     uint8
	EndMinute   uint8
}

// Contains reports whether t falls inside the window. A window whose end
// precedes its start wraps past midnight; identical endpoints cover the
// whole day.
func (w PilotWindow) Contains(t time.Time) bool {
	start := int(w.StartHour)*60 + int(w.StartMinute)
	end := int(w.EndHour)*60 + int(w.EndMinute)
	m := t.Hour()*60 + t.Minute()

	if start == end {
		return true
	}
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// PilotRule pairs a sensor threshold with the window it may act in.
type PilotRule struct {
	Threshold uint16
	Window    PilotWindow
}

type AutopilotCommand struct {
	On     bool
	Drain  PilotRule
	Light  PilotRule
	Origin time.Time
}

type ForceUpdateCommand struct {
	On     bool
	Origin time.Time
}

// CommandHistory is the authoritative record of commanded behavior, one
// slot per command kind. The Origin timestamp is the only change signal:
// a controller compares it against its own last-acted time to detect a
// rising edge. There are no sequence numbers.
type CommandHistory struct {
	Light       LightCommand
	Drain       DrainCommand
	Autopilot   AutopilotCommand
	ForceUpdate ForceUpdateCommand
}

// InitConfig is the provisioned identity of the device. Empty at boot
// unless seeded from the config file, written once per provisioning
// session, read-only everywhere else.
type InitConfig struct {
	SSID        string
	Passphrase  string
	Account     string
	DeviceID    uint32
	DisplayName string
	NTPHost     string
	GMTOffset   int32
	DSTOffset   int32
}

func (c InitConfig) Provisioned() bool {
	return c.SSID != ""
}

// DeviceState bundles the three shared records. It is passed explicitly
// to every task constructor; consistency relies on the cooperative
// scheduler running one task to completion at a time.
type DeviceState struct {
	Telemetry Telemetry
	History   CommandHistory
	Init      InitConfig
}

type GPIOPin struct {
	Number     int
	ActiveHigh bool
}
