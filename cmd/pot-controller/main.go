package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pandora-iot/pot-controller/internal/commlink"
	"github.com/pandora-iot/pot-controller/internal/config"
	"github.com/pandora-iot/pot-controller/internal/connectivity"
	"github.com/pandora-iot/pot-controller/internal/controllers/drainautopilot"
	"github.com/pandora-iot/pot-controller/internal/controllers/draincontroller"
	"github.com/pandora-iot/pot-controller/internal/controllers/lightautopilot"
	"github.com/pandora-iot/pot-controller/internal/controllers/lightcontroller"
	"github.com/pandora-iot/pot-controller/internal/datadog"
	"github.com/pandora-iot/pot-controller/internal/env"
	"github.com/pandora-iot/pot-controller/internal/gpio"
	"github.com/pandora-iot/pot-controller/internal/journal"
	"github.com/pandora-iot/pot-controller/internal/logging"
	"github.com/pandora-iot/pot-controller/internal/model"
	"github.com/pandora-iot/pot-controller/internal/provisioning"
	"github.com/pandora-iot/pot-controller/internal/pubsub"
	"github.com/pandora-iot/pot-controller/internal/scheduler"
	"github.com/pandora-iot/pot-controller/internal/sensors"
	"github.com/pandora-iot/pot-controller/internal/wifi"
	"github.com/pandora-iot/pot-controller/system/shutdown"
	"github.com/pandora-iot/pot-controller/system/startup"
)

const inboxDepth = 64

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)
	datadog.InitMetrics()

	log.Info().
		Str("display_name", cfg.DisplayName).
		Uint32("device_id", cfg.DeviceID).
		Msg("Starting pot controller")

	gpio.SetSafeMode(cfg.SafeMode)
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED — GPIO writes are disabled system-wide")
	}

	installBootConfig(&cfg)

	if err := gpio.ValidateStartupPins(&cfg); err != nil {
		log.Fatal().Err(err).Msg("Refusing to start with actuator pins already driven")
	}

	st := &model.DeviceState{Init: cfg.SeedInit()}

	client := pubsub.NewPahoClient(cfg.BrokerURL)
	inbox := pubsub.NewInbox(inboxDepth)
	commGroup := commlink.NewGroup(st, client, inbox)

	srv, err := provisioning.NewServer(cfg.ProvisioningAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.ProvisioningAddr).Msg("Failed to start provisioning listener")
	}
	defer srv.Close()

	radio := &wifi.Radio{
		Interface:    cfg.Wireless.Interface,
		FallbackSSID: cfg.Wireless.FallbackSSID,
		FallbackPSK:  cfg.Wireless.FallbackPassphrase,
	}

	provGroup := scheduler.NewGroup("provisioning")
	mgr := connectivity.NewManager(st, commGroup, provGroup, radio, srv.DropClient, shutdown.AllOutputsOff)
	provGroup.Add(srv.ListenTask(mgr.Handle))
	provGroup.Add(srv.SessionTask(st, mgr.Handle))

	drain := draincontroller.New(cfg.Pin(cfg.GPIO.DrainPump))
	light := lightcontroller.New(
		cfg.Pin(cfg.GPIO.LightRed),
		cfg.Pin(cfg.GPIO.LightGreen),
		cfg.Pin(cfg.GPIO.LightBlue),
	)

	// The float switch closes to ground when the reservoir holds water.
	switchPin := model.GPIOPin{Number: *cfg.GPIO.ReservoirSwitch, ActiveHigh: false}

	base := scheduler.NewGroup("base",
		sensors.NewReservoirTask(st, switchPin),
		sensors.NewSoilTask(st, cfg.SoilSensorPath),
		sensors.NewBrightnessTask(st, cfg.LightSensorPath),
		sensors.NewClimateTask(st, cfg.ClimateSensorBus),
		drain.Task(st),
		light.Task(st),
		drainautopilot.NewTask(st),
		lightautopilot.NewTask(st),
		connectivity.NewWatcherTask(mgr, radio.Status),
	)

	if cfg.JournalFile != "" {
		j, err := journal.Open(cfg.JournalFile)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.JournalFile).Msg("Telemetry journal disabled")
		} else {
			defer j.Close()
			base.Add(j.Task(st))
		}
	}

	if st.Init.Provisioned() {
		if err := radio.Join(st.Init.SSID, st.Init.Passphrase); err != nil {
			log.Warn().Err(err).Str("ssid", st.Init.SSID).Msg("Initial network join failed, falling back to AP")
			if err := radio.StartFallbackAP(); err != nil {
				log.Error().Err(err).Msg("Failed to start fallback AP")
			}
		}
	} else {
		log.Info().Msg("Device unprovisioned, advertising fallback AP")
		if err := radio.StartFallbackAP(); err != nil {
			log.Error().Err(err).Msg("Failed to start fallback AP")
		}
	}

	sched := scheduler.New(time.Duration(cfg.TickMillis)*time.Millisecond, base, mgr.Active)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		log.Info().Str("signal", s.String()).Msg("Shutdown signal received")
		cancel()
	}()

	sched.Run(ctx)

	client.Disconnect()
	shutdown.AllOutputsOff()
}

// installBootConfig regenerates the GPIO boot script and its systemd unit
// so pin assignment changes propagate. On a fresh install the script also
// runs once, parking every actuator pin before validation looks at them.
func installBootConfig(cfg *config.Config) {
	_, statErr := os.Stat(cfg.BootScriptPath)
	firstInstall := os.IsNotExist(statErr)

	if err := startup.WriteBootScript(); err != nil {
		log.Warn().Err(err).Str("path", cfg.BootScriptPath).Msg("Failed to write GPIO boot script")
		return
	}
	if err := startup.InstallBootService(); err != nil {
		log.Warn().Err(err).Str("path", cfg.OSServicePath).Msg("Failed to install GPIO boot service")
	}
	if firstInstall {
		if err := startup.RunBootScript(); err != nil {
			log.Warn().Err(err).Msg("Failed to run GPIO boot script")
		}
	}
}
