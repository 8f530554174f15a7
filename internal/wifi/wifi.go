package wifi

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pandora-iot/pot-controller/internal/connectivity"
)

const hotspotConnName = "pot-fallback-ap"

// Radio drives the WiFi interface through nmcli and iw. All calls are
// synchronous shell-outs; nmcli returns quickly whether or not the
// association itself succeeds, and the link watcher picks up the result.
type Radio struct {
	Interface    string
	FallbackSSID string
	FallbackPSK  string
}

func (r *Radio) Join(ssid, psk string) error {
	out, err := exec.Command("nmcli", "dev", "wifi", "connect", ssid,
		"password", psk, "ifname", r.Interface).CombinedOutput()
	if err != nil {
		return fmt.Errorf("nmcli connect failed: %s (output: %s)", err, string(out))
	}
	return nil
}

func (r *Radio) StartFallbackAP() error {
	out, err := exec.Command("nmcli", "dev", "wifi", "hotspot",
		"ifname", r.Interface, "con-name", hotspotConnName,
		"ssid", r.FallbackSSID, "password", r.FallbackPSK).CombinedOutput()
	if err != nil {
		return fmt.Errorf("nmcli hotspot failed: %s (output: %s)", err, string(out))
	}
	return nil
}

func (r *Radio) StopFallbackAP() error {
	out, err := exec.Command("nmcli", "connection", "down", hotspotConnName).CombinedOutput()
	if err != nil {
		// Tearing down a hotspot that never came up is not a failure.
		if strings.Contains(string(out), "unknown connection") {
			return nil
		}
		return fmt.Errorf("nmcli connection down failed: %s (output: %s)", err, string(out))
	}
	return nil
}

// Status reports whether the interface holds an upstream association and
// whether any station is attached to the fallback AP.
func (r *Radio) Status() (connectivity.LinkStatus, error) {
	out, err := exec.Command("nmcli", "-t", "-f", "GENERAL.STATE,GENERAL.CONNECTION",
		"dev", "show", r.Interface).Output()
	if err != nil {
		return connectivity.LinkStatus{}, fmt.Errorf("nmcli dev show failed: %w", err)
	}

	state, conn := parseDeviceShow(string(out))
	joined := state == 100 && conn != hotspotConnName

	stations := 0
	if conn == hotspotConnName {
		dump, err := exec.Command("iw", "dev", r.Interface, "station", "dump").Output()
		if err != nil {
			return connectivity.LinkStatus{}, fmt.Errorf("iw station dump failed: %w", err)
		}
		stations = countStations(string(dump))
	}

	return connectivity.LinkStatus{Joined: joined, PeerAttached: stations > 0}, nil
}

// parseDeviceShow extracts the numeric device state and the active
// connection name from `nmcli -t dev show` output, e.g.
// "GENERAL.STATE:100 (connected)".
func parseDeviceShow(out string) (int, string) {
	state := 0
	conn := ""
	for _, line := range strings.Split(out, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		switch key {
		case "GENERAL.STATE":
			numeric, _, _ := strings.Cut(strings.TrimSpace(value), " ")
			if n, err := strconv.Atoi(numeric); err == nil {
				state = n
			}
		case "GENERAL.CONNECTION":
			conn = strings.TrimSpace(value)
		}
	}
	return state, conn
}

func countStations(dump string) int {
	count := 0
	for _, line := range strings.Split(dump, "\n") {
		if strings.HasPrefix(line, "Station ") {
			count++
		}
	}
	return count
}
