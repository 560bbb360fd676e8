// Package config handles configuration loading for caudal.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Station StationConfig `mapstructure:"station" yaml:"station"`
	Window  WindowConfig  `mapstructure:"window"  yaml:"window"`
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Output  OutputConfig  `mapstructure:"output"  yaml:"output"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// StationConfig identifies the gauging station to export.
type StationConfig struct {
	ID   string `mapstructure:"id"   yaml:"id"`
	Name string `mapstructure:"name" yaml:"name"`
	// ValueColumn overrides the value-column heuristics with an exact
	// column name. Empty means use the heuristics.
	ValueColumn string `mapstructure:"value_column" yaml:"value_column"`
}

// WindowConfig bounds the requested date range, as YYYY-MM-DD strings.
type WindowConfig struct {
	Start string `mapstructure:"start" yaml:"start"`
	End   string `mapstructure:"end"   yaml:"end"`
}

// APIConfig holds upstream service settings. The download timeout covers
// the second hop when the service answers with an export envelope; file
// downloads are slower than the query endpoint, so it runs longer.
type APIConfig struct {
	BaseURL            string `mapstructure:"base_url"             yaml:"base_url"`
	TimeoutSec         int    `mapstructure:"timeout_sec"          yaml:"timeout_sec"`
	DownloadTimeoutSec int    `mapstructure:"download_timeout_sec" yaml:"download_timeout_sec"`
}

// OutputConfig holds output file locations, all relative to Dir.
type OutputConfig struct {
	Dir  string `mapstructure:"dir"  yaml:"dir"`
	CSV  string `mapstructure:"csv"  yaml:"csv"`
	Plot string `mapstructure:"plot" yaml:"plot"`
	Raw  string `mapstructure:"raw"  yaml:"raw"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"` // "debug", "info", "warn", "error"
}

// StartTime parses the window start.
func (c *Config) StartTime() (time.Time, error) {
	return time.Parse("2006-01-02", c.Window.Start)
}

// EndTime parses the window end.
func (c *Config) EndTime() (time.Time, error) {
	return time.Parse("2006-01-02", c.Window.End)
}

// Timeout returns the upstream query timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// DownloadTimeout returns the export file download timeout.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.API.DownloadTimeoutSec) * time.Second
}

// CSVPath returns the cleaned CSV output path.
func (c *Config) CSVPath() string { return filepath.Join(c.Output.Dir, c.Output.CSV) }

// PlotPath returns the chart output path.
func (c *Config) PlotPath() string { return filepath.Join(c.Output.Dir, c.Output.Plot) }

// RawPath returns the raw payload cache path.
func (c *Config) RawPath() string { return filepath.Join(c.Output.Dir, c.Output.Raw) }

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.caudal/config.yaml (home directory)
//
// Environment variables override config file values.
// Format: CAUDAL_<SECTION>_<KEY>, e.g., CAUDAL_STATION_ID
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".caudal"))

	v.SetEnvPrefix("CAUDAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file not required to exist; defaults + env vars suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("CAUDAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded configuration for obvious mistakes.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Station.ID) == "" {
		return fmt.Errorf("station.id must not be empty")
	}
	start, err := c.StartTime()
	if err != nil {
		return fmt.Errorf("window.start: %w", err)
	}
	end, err := c.EndTime()
	if err != nil {
		return fmt.Errorf("window.end: %w", err)
	}
	if !start.Before(end) {
		return fmt.Errorf("window.start %s must be before window.end %s", c.Window.Start, c.Window.End)
	}
	if c.API.TimeoutSec <= 0 {
		return fmt.Errorf("api.timeout_sec must be positive")
	}
	if c.API.DownloadTimeoutSec <= 0 {
		return fmt.Errorf("api.download_timeout_sec must be positive")
	}
	return nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Riñihue gauging station, the station this tool was built around.
	v.SetDefault("station.id", "10111001")
	v.SetDefault("station.name", "Riñihue")
	v.SetDefault("station.value_column", "")

	v.SetDefault("window.start", "1960-01-01")
	v.SetDefault("window.end", "2025-12-31")

	v.SetDefault("api.base_url", "https://explorador.cr2.cl")
	v.SetDefault("api.timeout_sec", 60)
	v.SetDefault("api.download_timeout_sec", 120)

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.csv", "streamflow_cleaned.csv")
	v.SetDefault("output.plot", "streamflow_plot.png")
	v.SetDefault("output.raw", "streamflow_raw.dat")

	v.SetDefault("logging.level", "info")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
