package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	d := Default()
	assert.Equal(t, 100, d.MaxDelayMS)
	assert.Equal(t, 15, d.CursorRadius)
	assert.Equal(t, 128, d.MaxDrawableLayers)
	assert.Equal(t, uint32(0xFFFF0000), d.CursorColor)
}

func TestLoadFromExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kloak.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_delay_ms = 250
cursor_radius = 20
seat_name = "seat1"
cursor_color = "0x80000000"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.MaxDelayMS)
	assert.Equal(t, 250*time.Millisecond, cfg.MaxDelay)
	assert.Equal(t, 20, cfg.CursorRadius)
	assert.Equal(t, "seat1", cfg.SeatName)
	assert.Equal(t, uint32(0x80000000), cfg.CursorColor)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().MaxDelayMS, cfg.MaxDelayMS)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kloak.toml")
	require.NoError(t, os.WriteFile(path, []byte(`max_delay_ms = 250`), 0o644))

	t.Setenv("KLOAK_MAX_DELAY_MS", "42")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.MaxDelayMS)
}

func TestParseHexColorVariants(t *testing.T) {
	c, err := parseHexColor("0xFF00FF00")
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFF00FF00), c)

	c, err = parseHexColor("ff00ff00")
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFF00FF00), c)
}
