package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "replay.config")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")

	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, 33*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, filepath.Join(dir, "data", "uploads"), cfg.GetUploadDir())
	assert.Equal(t, filepath.Join(dir, "data", "archives"), cfg.GetArchiveDir())

	size, err := cfg.MaxUploadBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024*1024), size)
}

func TestLoadConfig_ReadsFileAndKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "replay.config")
	doc := `<?xml version="1.0"?>
<KineReplay>
  <Server><Port>9000</Port><BindAddress>127.0.0.1</BindAddress></Server>
  <Playback><TickMilliseconds>20</TickMilliseconds><StartPaused>true</StartPaused><PaletteFile>colors.yaml</PaletteFile></Playback>
  <Limits><MaxBodies>8</MaxBodies></Limits>
</KineReplay>`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.GetServerAddr())
	assert.Equal(t, 20*time.Millisecond, cfg.TickInterval())
	assert.True(t, cfg.Playback.StartPaused)
	assert.Equal(t, filepath.Join(dir, "colors.yaml"), cfg.Playback.PaletteFile)
	assert.Equal(t, 8, cfg.Limits.MaxBodies)
	assert.Equal(t, 1024, cfg.Limits.MaxConnectors, "unset values keep their defaults")
	assert.Equal(t, "1GB", cfg.Advanced.DuckDBMemoryLimit)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "elsewhere")
	t.Setenv("PORT", "7001")
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("REPLAY_TICK_MS", "50")

	cfg, err := LoadConfig(filepath.Join(dir, "replay.config"))
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, dataDir, cfg.GetDataDir())
	assert.Equal(t, filepath.Join(dataDir, "uploads"), cfg.GetUploadDir())
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval())

	require.NoError(t, cfg.EnsureDirectories())
	for _, d := range []string{cfg.GetDataDir(), cfg.GetUploadDir(), cfg.GetArchiveDir()} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("REPLAY_TICK_MS=15\n"), 0644))
	// Registered so the variable set by the .env file is cleared after the test.
	t.Setenv("REPLAY_TICK_MS", "")
	os.Unsetenv("REPLAY_TICK_MS")

	cfg, err := LoadConfig(filepath.Join(dir, "replay.config"))
	require.NoError(t, err)
	assert.Equal(t, 15*time.Millisecond, cfg.TickInterval())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `<KineReplay><Server>`},
		{"zero tick", `<KineReplay><Playback><TickMilliseconds>0</TickMilliseconds></Playback></KineReplay>`},
		{"bad size", `<KineReplay><Storage><MaxUploadSize>lots</MaxUploadSize></Storage></KineReplay>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "replay.config")
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}
