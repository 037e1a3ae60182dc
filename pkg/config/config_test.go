package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	d, err := cfg.GeocodeTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
geocode:
  server: http://localhost:8080
  timeout: 3s
map:
  center_lat: 35.1796
  center_lon: 129.0756
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "http://localhost:8080", cfg.Geocode.Server)
	assert.Equal(t, "3s", cfg.Geocode.Timeout)
	assert.Equal(t, 5, cfg.Geocode.Limit)
	assert.Equal(t, 35.1796, cfg.Map.CenterLat)
	assert.Equal(t, 12, cfg.Map.Zoom)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvAddr, "0.0.0.0:1234")
	t.Setenv(EnvNominatimServer, "https://geo.example.org")
	t.Setenv(EnvUserAgent, "tester/2")
	t.Setenv(EnvGeocodeTimeout, "750ms")
	t.Setenv(EnvSearchLimit, "8")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:1234", cfg.Addr)
	assert.Equal(t, "https://geo.example.org", cfg.Geocode.Server)
	assert.Equal(t, "tester/2", cfg.Geocode.UserAgent)
	assert.Equal(t, 8, cfg.Geocode.Limit)
	d, err := cfg.GeocodeTimeout()
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, d)
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad yaml":    "addr: [",
		"bad timeout": "geocode:\n  timeout: soon\n",
		"zero limit":  "geocode:\n  limit: 0\n",
		"bad center":  "map:\n  center_lat: 123\n",
		"bad zoom":    "map:\n  selected_zoom: 25\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	t.Run("bad env limit", func(t *testing.T) {
		t.Setenv(EnvSearchLimit, "many")
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Addr = ":8088"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("BOOKMAP_USER_AGENT=from-dotenv/1\n"), 0o644))
	t.Setenv(EnvUserAgent, "")
	require.NoError(t, os.Unsetenv(EnvUserAgent))

	require.NoError(t, LoadDotEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-dotenv/1", os.Getenv(EnvUserAgent))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "none.env")))
}
