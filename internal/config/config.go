// Package config loads the panel's local configuration file. Everything in
// it is about reaching the backend; run settings live in package settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	appDirName = "lingoctl"
	fileName   = "config.toml"

	defaultBackendURL = "http://127.0.0.1:5000"
	defaultTimeout    = 30
)

// Config is the on-disk configuration. Environment variables override the
// file: LINGOCTL_BACKEND_URL wins over backend_url.
type Config struct {
	BackendURL string `toml:"backend_url"`
	// RequestTimeoutSeconds bounds every non-streaming request.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	// OutputDir is where fetched artifacts are written.
	OutputDir string `toml:"output_dir"`
	// LogDir is where per-run log files are written.
	LogDir string `toml:"log_dir"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		BackendURL:            defaultBackendURL,
		RequestTimeoutSeconds: defaultTimeout,
		OutputDir:             ".",
		LogDir:                defaultLogDir(),
	}
}

// Path returns the expected config file location under the user config dir.
func Path() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(base, appDirName, fileName), nil
}

// Load reads the config at path, or the defaults when the file is missing.
// An empty path means "the standard location".
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		p, err := Path()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// no file is fine; defaults plus env apply
	case err != nil:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Timeout returns the request timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Validate rejects configurations the client cannot work with.
func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend_url %q: expected http(s)://host[:port]", c.BackendURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid backend_url scheme %q: expected http or https", u.Scheme)
	}
	if c.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("request_timeout_seconds must be at least 1 (got %d)", c.RequestTimeoutSeconds)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.BackendURL = envOr("LINGOCTL_BACKEND_URL", c.BackendURL)
	c.OutputDir = envOr("LINGOCTL_OUTPUT_DIR", c.OutputDir)
	c.LogDir = envOr("LINGOCTL_LOG_DIR", c.LogDir)
}

func defaultLogDir() string {
	if cache, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cache, appDirName, "logs")
	}
	return filepath.Join(os.TempDir(), appDirName, "logs")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
