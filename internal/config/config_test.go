package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, defaultBackendURL, cfg.BackendURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.NotEmpty(t, cfg.LogDir)
}

func TestLoadParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend_url = "http://backend.local:8080"
request_timeout_seconds = 5
output_dir = "/tmp/videos"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://backend.local:8080", cfg.BackendURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout())
	assert.Equal(t, "/tmp/videos", cfg.OutputDir)
	assert.NotEmpty(t, cfg.LogDir, "unset keys keep their defaults")
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`backend_url = [broken`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`backend_url = "http://from-file:1234"`), 0o644))
	t.Setenv("LINGOCTL_BACKEND_URL", "http://from-env:5678")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:5678", cfg.BackendURL)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty url", func(c *Config) { c.BackendURL = "" }, "invalid backend_url"},
		{"no scheme", func(c *Config) { c.BackendURL = "127.0.0.1:5000" }, "invalid backend_url"},
		{"wrong scheme", func(c *Config) { c.BackendURL = "ftp://host" }, "scheme"},
		{"zero timeout", func(c *Config) { c.RequestTimeoutSeconds = 0 }, "at least 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	assert.NoError(t, Default().Validate())
}
