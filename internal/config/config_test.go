package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lachioma/bombcell/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 385, cfg.Recording.Channels)
	assert.Equal(t, 30000.0, cfg.Recording.SampleRate)
	assert.Equal(t, 100, cfg.Extract.Snippets)
	assert.Equal(t, 83, cfg.Extract.Width)
	assert.Equal(t, "bombcell_results", cfg.Results.Dir)
	assert.False(t, cfg.Extract.Force)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bombcell.yaml")
	body := `
recording:
  path: /data/rec.bin
  channels: 64
extract:
  snippets: 25
  seed: 7
results:
  dir: /tmp/out
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/rec.bin", cfg.Recording.Path)
	assert.Equal(t, 64, cfg.Recording.Channels)
	assert.Equal(t, 25, cfg.Extract.Snippets)
	assert.Equal(t, int64(7), cfg.Extract.Seed)
	assert.Equal(t, "/tmp/out", cfg.Results.Dir)
	// Untouched keys keep their defaults.
	assert.Equal(t, 83, cfg.Extract.Width)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bombcell.yaml")
	require.NoError(t, os.WriteFile(path, []byte("extract:\n  snippets: 25\n"), 0o644))

	t.Setenv("BOMBCELL_EXTRACT_SNIPPETS", "50")
	t.Setenv("BOMBCELL_RECORDING_PATH", "/env/rec.bin")
	t.Setenv("BOMBCELL_VERBOSE", "true")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Extract.Snippets)
	assert.Equal(t, "/env/rec.bin", cfg.Recording.Path)
	assert.True(t, cfg.Verbose)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)
		cfg.Recording.Path = "/data/rec.bin"
		return cfg
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Recording.Path = ""
	assert.ErrorContains(t, cfg.Validate(), "recording.path")

	cfg = base()
	cfg.Recording.Channels = 0
	assert.ErrorContains(t, cfg.Validate(), "channels")

	cfg = base()
	cfg.Recording.Compressed = true
	assert.ErrorContains(t, cfg.Validate(), "decoder")
	cfg.Recording.Decoder = "zarr-decode"
	assert.ErrorContains(t, cfg.Validate(), "samples")
	cfg.Recording.Samples = 30000 * 60
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Extract.Snippets = 0
	assert.ErrorContains(t, cfg.Validate(), "snippets")

	cfg = base()
	cfg.Extract.Width = -1
	assert.ErrorContains(t, cfg.Validate(), "width")

	cfg = base()
	cfg.Results.Dir = ""
	assert.ErrorContains(t, cfg.Validate(), "results.dir")
}
