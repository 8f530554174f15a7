package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pandora-iot/pot-controller/internal/model"
)

type GPIO struct {
	// actuators
	DrainPump  *int `json:"drain_pump"`
	LightRed   *int `json:"light_red"`
	LightGreen *int `json:"light_green"`
	LightBlue  *int `json:"light_blue"`

	// inputs
	ReservoirSwitch *int `json:"reservoir_switch"`
}

type Wireless struct {
	SSID               string `json:"ssid"`
	Passphrase         string `json:"passphrase"`
	Interface          string `json:"interface"`
	FallbackSSID       string `json:"fallback_ssid"`
	FallbackPassphrase string `json:"fallback_passphrase"`
}

type Config struct {
	ConfigFile string
	LogFile    string
	LogLevel   zerolog.Level
	SafeMode   bool

	BrokerURL        string `json:"broker_url"`
	Account          string `json:"account"`
	DeviceID         uint32 `json:"device_id"`
	DisplayName      string `json:"display_name"`
	NTPHost          string `json:"ntp_host"`
	GMTOffsetSeconds int32  `json:"gmt_offset_seconds"`
	DSTOffsetSeconds int32  `json:"dst_offset_seconds"`

	ProvisioningAddr string `json:"provisioning_addr"`
	JournalFile      string `json:"journal_file"`
	BootScriptPath   string `json:"boot_script_path"`
	OSServicePath    string `json:"os_service_path"`

	TickMillis      int  `json:"tick_millis"`
	RelayActiveHigh bool `json:"relay_active_high"`

	SoilSensorPath    string `json:"soil_sensor_path"`
	LightSensorPath   string `json:"light_sensor_path"`
	ClimateSensorBus  string `json:"climate_sensor_bus"`

	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`
	EnableDatadog bool     `json:"enable_datadog"`

	GPIO     GPIO     `json:"gpio"`
	Wireless Wireless `json:"wireless"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&cfg.LogFile, "log-file", "", "Log file path (stderr if empty)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.SafeMode, "safe-mode", false, "Disable all GPIO writes")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	if cfg.TickMillis == 0 {
		cfg.TickMillis = 500
	}
	if cfg.ProvisioningAddr == "" {
		cfg.ProvisioningAddr = ":7421"
	}
	if cfg.Wireless.Interface == "" {
		cfg.Wireless.Interface = "wlan0"
	}
	if cfg.BootScriptPath == "" {
		cfg.BootScriptPath = "/usr/local/bin/pot-gpio-boot.sh"
	}
	if cfg.OSServicePath == "" {
		cfg.OSServicePath = "/etc/systemd/system/pot-gpio-boot.service"
	}

	cfg.validate()
	return cfg
}

// SeedInit builds the boot-time InitConfig from the config file. A device
// with no wireless block boots unprovisioned and waits for the fallback AP
// flow to supply one.
func (cfg *Config) SeedInit() model.InitConfig {
	return model.InitConfig{
		SSID:        cfg.Wireless.SSID,
		Passphrase:  cfg.Wireless.Passphrase,
		Account:     cfg.Account,
		DeviceID:    cfg.DeviceID,
		DisplayName: cfg.DisplayName,
		NTPHost:     cfg.NTPHost,
		GMTOffset:   cfg.GMTOffsetSeconds,
		DSTOffset:   cfg.DSTOffsetSeconds,
	}
}

func (cfg *Config) Pin(n *int) model.GPIOPin {
	return model.GPIOPin{Number: *n, ActiveHigh: cfg.RelayActiveHigh}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var (
		missingFields []string
		usedPins      = map[int]string{}
		conflicts     []string
	)

	v := reflect.ValueOf(cfg.GPIO)
	t := reflect.TypeOf(cfg.GPIO)

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldName := t.Field(i).Tag.Get("json")

		if field.IsNil() {
			missingFields = append(missingFields, "gpio."+fieldName)
			continue
		}

		pin := field.Elem().Int()
		if other, exists := usedPins[int(pin)]; exists {
			conflicts = append(conflicts, fmt.Sprintf("gpio.%s and gpio.%s both use pin %d", fieldName, other, pin))
		} else {
			usedPins[int(pin)] = fieldName
		}
	}

	if len(missingFields) > 0 {
		panic("Missing required GPIO config fields: " + strings.Join(missingFields, ", "))
	}
	if len(conflicts) > 0 {
		panic("Conflicting GPIO pins: " + strings.Join(conflicts, ", "))
	}

	if cfg.BrokerURL == "" {
		panic("Missing required config field: broker_url")
	}
}
