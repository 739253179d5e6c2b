// Package config loads the daemon's runtime knobs from an optional
// TOML file and environment variable overrides. CLI flag parsing
// itself stays in cmd/kloak-v2; this package only owns the
// file/env layer beneath it.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every knob named in the specification plus the two
// this repository's own expansion adds (SeatName, CursorColor).
type Config struct {
	MaxDrawableLayers int           `toml:"max_drawable_layers"`
	CursorRadius      int           `toml:"cursor_radius"`
	MaxDelay          time.Duration `toml:"-"`
	MaxDelayMS        int           `toml:"max_delay_ms"`
	PollTimeout       time.Duration `toml:"-"`
	PollTimeoutMS     int           `toml:"poll_timeout_ms"`
	SeatName          string        `toml:"seat_name"`
	CursorColor       uint32        `toml:"-"`
	CursorColorHex    string        `toml:"cursor_color"`
}

// Default returns the configuration with every knob at its
// specification-mandated default.
func Default() Config {
	return Config{
		MaxDrawableLayers: 128,
		CursorRadius:      15,
		MaxDelay:          100 * time.Millisecond,
		MaxDelayMS:        100,
		PollTimeout:       20 * time.Millisecond,
		PollTimeoutMS:     20,
		SeatName:          "",
		CursorColor:       0xFFFF0000,
		CursorColorHex:    "0xFFFF0000",
	}
}

// configPaths returns the file locations checked, in priority order:
// an explicit override, then $XDG_CONFIG_HOME, then /etc.
func configPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "kloak-v2", "kloak.toml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "kloak-v2", "kloak.toml"))
	}
	paths = append(paths, "/etc/kloak-v2/kloak.toml")
	return paths
}

// Load builds a Config from defaults, an optional TOML file (the
// first of configPaths that exists, or explicitPath if set), and
// environment variable overrides, in that priority order (env wins).
func Load(explicitPath string) (Config, error) {
	cfg := Default()

	for _, p := range configPaths(explicitPath) {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
		break
	}

	applyEnvOverrides(&cfg)
	cfg.MaxDelay = time.Duration(cfg.MaxDelayMS) * time.Millisecond
	cfg.PollTimeout = time.Duration(cfg.PollTimeoutMS) * time.Millisecond
	if c, err := parseHexColor(cfg.CursorColorHex); err == nil {
		cfg.CursorColor = c
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KLOAK_MAX_DRAWABLE_LAYERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDrawableLayers = n
		}
	}
	if v := os.Getenv("KLOAK_CURSOR_RADIUS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CursorRadius = n
		}
	}
	if v := os.Getenv("KLOAK_MAX_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDelayMS = n
		}
	}
	if v := os.Getenv("KLOAK_POLL_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollTimeoutMS = n
		}
	}
	if v := os.Getenv("KLOAK_SEAT_NAME"); v != "" {
		cfg.SeatName = v
	}
	if v := os.Getenv("KLOAK_CURSOR_COLOR"); v != "" {
		cfg.CursorColorHex = v
	}
}

func parseHexColor(s string) (uint32, error) {
	n, err := strconv.ParseUint(trimHexPrefix(s), 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
