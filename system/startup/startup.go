package startup

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pandora-iot/pot-controller/internal/env"
	"github.com/pandora-iot/pot-controller/internal/model"
)

// WriteBootScript renders a shell script that parks every actuator pin
// in its inactive level and configures the reservoir switch as a pulled-up
// input. The script runs from a systemd oneshot before this controller
// starts, so the pump and lights are off even if the process never comes
// up.
func WriteBootScript() error {
	cfg := env.Cfg

	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# Pot GPIO pin configuration at boot", "")

	write := func(label string, pin model.GPIOPin) {
		drive := "dh"
		if pin.ActiveHigh {
			drive = "dl"
		}
		lines = append(lines, fmt.Sprintf("# %s", label))
		lines = append(lines, fmt.Sprintf("pinctrl set %d op pn %s", pin.Number, drive))
		lines = append(lines, "")
	}

	write("drain_pump", cfg.Pin(cfg.GPIO.DrainPump))
	write("light_red", cfg.Pin(cfg.GPIO.LightRed))
	write("light_green", cfg.Pin(cfg.GPIO.LightGreen))
	write("light_blue", cfg.Pin(cfg.GPIO.LightBlue))

	lines = append(lines, "# reservoir_switch")
	lines = append(lines, fmt.Sprintf("pinctrl set %d ip pu", *cfg.GPIO.ReservoirSwitch))
	lines = append(lines, "")

	contents := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(cfg.BootScriptPath, []byte(contents), 0755)
}

func InstallBootService() error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Configure pot GPIO pins at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, env.Cfg.BootScriptPath)

	return os.WriteFile(env.Cfg.OSServicePath, []byte(unitContents), 0644)
}

func RunBootScript() error {
	cmd := exec.Command("/bin/bash", env.Cfg.BootScriptPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
