// Package config loads bookmap settings from an optional YAML file, a
// .env file and BOOKMAP_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable keys
const (
	EnvAddr            = "BOOKMAP_ADDR"
	EnvNominatimServer = "BOOKMAP_NOMINATIM_SERVER"
	EnvUserAgent       = "BOOKMAP_USER_AGENT"
	EnvGeocodeTimeout  = "BOOKMAP_GEOCODE_TIMEOUT"
	EnvSearchLimit     = "BOOKMAP_SEARCH_LIMIT"
)

// Config is the full application configuration.
type Config struct {
	Addr    string        `yaml:"addr"`
	Geocode GeocodeConfig `yaml:"geocode"`
	Map     MapConfig     `yaml:"map"`
}

// GeocodeConfig configures the place resolver.
type GeocodeConfig struct {
	Server    string `yaml:"server"`
	UserAgent string `yaml:"user_agent"`
	Timeout   string `yaml:"timeout"`
	Limit     int    `yaml:"limit"`
}

// MapConfig configures the initial map view.
type MapConfig struct {
	CenterLat    float64 `yaml:"center_lat"`
	CenterLon    float64 `yaml:"center_lon"`
	Zoom         int     `yaml:"zoom"`
	SelectedZoom int     `yaml:"selected_zoom"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr: "127.0.0.1:43098",
		Geocode: GeocodeConfig{
			Server:    "https://nominatim.openstreetmap.org",
			UserAgent: "bookmap/1.0 (+https://github.com/rubiojr/bookmap)",
			Timeout:   "10s",
			Limit:     5,
		},
		Map: MapConfig{
			CenterLat:    37.5665,
			CenterLon:    126.9780,
			Zoom:         12,
			SelectedZoom: 16,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files (default ".env")
// into the process environment. Existing variables win; missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

func (c *Config) applyEnvOverrides() error {
	if v := strings.TrimSpace(os.Getenv(EnvAddr)); v != "" {
		c.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvNominatimServer)); v != "" {
		c.Geocode.Server = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvUserAgent)); v != "" {
		c.Geocode.UserAgent = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvGeocodeTimeout)); v != "" {
		c.Geocode.Timeout = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSearchLimit)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSearchLimit, err)
		}
		c.Geocode.Limit = n
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := c.GeocodeTimeout(); err != nil {
		return err
	}
	if c.Geocode.Limit < 1 || c.Geocode.Limit > 40 {
		return fmt.Errorf("geocode.limit must be between 1 and 40, got %d", c.Geocode.Limit)
	}
	if strings.TrimSpace(c.Geocode.UserAgent) == "" {
		return errors.New("geocode.user_agent must not be empty")
	}
	if c.Map.CenterLat < -90 || c.Map.CenterLat > 90 || c.Map.CenterLon < -180 || c.Map.CenterLon > 180 {
		return fmt.Errorf("map center (%f, %f) out of range", c.Map.CenterLat, c.Map.CenterLon)
	}
	if c.Map.Zoom < 1 || c.Map.Zoom > 19 || c.Map.SelectedZoom < 1 || c.Map.SelectedZoom > 19 {
		return errors.New("map zoom levels must be between 1 and 19")
	}
	return nil
}

// GeocodeTimeout parses the configured lookup timeout.
func (c *Config) GeocodeTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Geocode.Timeout)
	if err != nil {
		return 0, fmt.Errorf("geocode.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("geocode.timeout must be positive, got %s", d)
	}
	return d, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
