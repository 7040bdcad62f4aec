package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hass-dash/internal/config"
	"github.com/thatsimonsguy/hass-dash/internal/env"
	"github.com/thatsimonsguy/hass-dash/internal/pinctrl"
)

type pinSetting struct {
	label string
	pin   int
	opts  []string
}

// parkSettings lists the boot state of the panel control lines: panel power
// off, reset released, data/command low, busy as input.
func parkSettings(pins config.PanelPins) ([]pinSetting, error) {
	wanted := []struct {
		label string
		name  string
		opts  []string
	}{
		{"panel power", pins.Power, []string{"op", "pn", "dl"}},
		{"panel reset", pins.Reset, []string{"op", "pn", "dh"}},
		{"panel data/command", pins.DC, []string{"op", "pn", "dl"}},
		{"panel busy", pins.Busy, []string{"ip", "pn"}},
	}

	settings := make([]pinSetting, 0, len(wanted))
	for _, w := range wanted {
		n, err := pinctrl.PinNumber(w.name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", w.label, err)
		}
		settings = append(settings, pinSetting{label: w.label, pin: n, opts: w.opts})
	}
	return settings, nil
}

// BootScript renders a script that parks the panel control lines at boot.
func BootScript(pins config.PanelPins) (string, error) {
	settings, err := parkSettings(pins)
	if err != nil {
		return "", err
	}

	lines := []string{"#!/bin/bash", "", "# e-paper panel pin configuration at boot", ""}
	for _, s := range settings {
		lines = append(lines, "# "+s.label, pinctrl.SetCommand(s.pin, s.opts...), "")
	}
	return strings.Join(lines, "\n") + "\n", nil
}

// setPin applies pinctrl settings; swapped in tests.
var setPin = pinctrl.SetPin

// ParkPins applies the boot state of the panel pins right away.
func ParkPins(pins config.PanelPins) error {
	settings, err := parkSettings(pins)
	if err != nil {
		return err
	}
	for _, s := range settings {
		if err := setPin(s.pin, s.opts...); err != nil {
			return fmt.Errorf("%s: %w", s.label, err)
		}
		log.Info().Str("pin", s.label).Int("gpio", s.pin).Strs("opts", s.opts).Msg("Pin parked")
	}
	return nil
}

func WriteStartupScript() error {
	contents, err := BootScript(env.Cfg.PanelPins)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(env.Cfg.BootScriptPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(env.Cfg.BootScriptPath, []byte(contents), 0755)
}

func InstallStartupService() error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Park e-paper panel pins at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, env.Cfg.BootScriptPath)

	return os.WriteFile(env.Cfg.BootServicePath, []byte(unitContents), 0644)
}

// DashUnit renders the systemd unit for the dashboard itself.
func DashUnit(cfg *config.Config) string {
	bootUnit := filepath.Base(cfg.BootServicePath)
	execCmd := filepath.Join(cfg.WorkDir, "hass-dash")

	return fmt.Sprintf(`[Unit]
Description=Home Assistant e-paper dashboard
After=network-online.target %s
Wants=network-online.target
Requires=%s

[Service]
Type=simple
User=%s
WorkingDirectory=%s
EnvironmentFile=-%s
ExecStart=%s -panel %s -rooms-file %s -assets-dir %s -db %s
Restart=on-failure
RestartSec=30s

[Install]
WantedBy=multi-user.target
`, bootUnit, bootUnit, cfg.ServiceUser, cfg.WorkDir,
		filepath.Join(cfg.WorkDir, ".env"),
		execCmd, cfg.Panel, cfg.RoomsFile, cfg.AssetsDir, cfg.DBPath)
}

func InstallDashService() error {
	return os.WriteFile(env.Cfg.ServicePath, []byte(DashUnit(env.Cfg)), 0644)
}
