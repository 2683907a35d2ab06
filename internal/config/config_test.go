package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/fixtureplay/internal/rendererurl"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvConfig, "")
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost:5000", c.Server.Addr)
	assert.Equal(t, 5*time.Second, c.Liveness.PingInterval)
	assert.Equal(t, 1, c.Liveness.MaxMissedRounds)
	assert.Equal(t, 64, c.Renderers.Max)
	assert.Equal(t, rendererurl.ModeDev, c.Mode)
	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, "default", c.Storage.Namespace)
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "fixtureplay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
liveness:
  ping_interval: 250ms
  max_missed_rounds: 3
renderer_url:
  dev: http://localhost:5050/renderer.html
mode: export
plugins:
  disabled: [propsPanel]
  slot_order:
    - slot: navPanelRow
      plugs: [fixtureSearch, fixtureBookmarks]
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", c.Server.Addr)
	assert.Equal(t, 250*time.Millisecond, c.Liveness.PingInterval)
	assert.Equal(t, 3, c.Liveness.MaxMissedRounds)
	assert.Equal(t, "http://localhost:5050/renderer.html", c.RendererURL.Dev)
	assert.Equal(t, rendererurl.ModeExport, c.Mode)
	assert.Equal(t, []string{"propsPanel"}, c.Plugins.Disabled)
	assert.Equal(t, []string{"fixtureSearch", "fixtureBookmarks"}, c.Plugins.SlotOrders()["navPanelRow"])
}

func TestLoad_Env(t *testing.T) {
	isolate(t)
	t.Setenv("FIXTUREPLAY_SERVER_ADDR", ":7000")
	t.Setenv("FIXTUREPLAY_RENDERERS_MAX", "2")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7000", c.Server.Addr)
	assert.Equal(t, 2, c.Renderers.Max)
}

func TestLoad_EnvConfigPath(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))
	t.Setenv(EnvConfig, path)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: staging\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "invalid mode")

	require.NoError(t, os.WriteFile(path, []byte("liveness:\n  max_missed_rounds: 0\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "max_missed_rounds")
}
