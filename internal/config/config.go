// Package config loads settings for the civiclens client and simulator.
//
// Values come from, in increasing precedence: built-in defaults, an
// optional YAML file named by --config or CIVICLENS_CONFIG, and the
// CIVICLENS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvConfigPath = "CIVICLENS_CONFIG"

type Config struct {
	API     APIConfig     `yaml:"api"`
	Polling PollingConfig `yaml:"polling"`
	Storage StorageConfig `yaml:"storage"`
}

type APIConfig struct {
	// BaseURL is the backend root, without the /api suffix.
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type PollingConfig struct {
	StatusActive  time.Duration `yaml:"status_active"`
	StatusSettled time.Duration `yaml:"status_settled"`
	ReviewActive  time.Duration `yaml:"review_active"`
	ReviewSettled time.Duration `yaml:"review_settled"`
	Logs          time.Duration `yaml:"logs"`
	LogTail       int           `yaml:"log_tail"`

	// FollowAfterReady keeps the status loop running at the settled
	// cadence after the run becomes reviewable.
	FollowAfterReady bool `yaml:"follow_after_ready"`
}

type StorageConfig struct {
	DBPath    string `yaml:"db_path"`
	ExportDir string `yaml:"export_dir"`
}

func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Polling: PollingConfig{
			StatusActive:  2 * time.Second,
			StatusSettled: 5 * time.Second,
			ReviewActive:  2 * time.Second,
			ReviewSettled: 5 * time.Second,
			Logs:          6 * time.Second,
			LogTail:       40,
		},
		Storage: StorageConfig{
			DBPath:    "./civiclens.db",
			ExportDir: ".",
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// CIVICLENS_CONFIG is consulted; if that is empty too only defaults and
// environment overrides apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func getEnv(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) applyEnv(getenv func(string) string) error {
	c.API.BaseURL = getEnv(getenv, "CIVICLENS_API_BASE", c.API.BaseURL)
	c.Storage.DBPath = getEnv(getenv, "CIVICLENS_DB_PATH", c.Storage.DBPath)
	c.Storage.ExportDir = getEnv(getenv, "CIVICLENS_EXPORT_DIR", c.Storage.ExportDir)

	if tail := getenv("CIVICLENS_LOG_TAIL"); tail != "" {
		n, err := strconv.Atoi(tail)
		if err != nil {
			return fmt.Errorf("invalid CIVICLENS_LOG_TAIL: %w", err)
		}
		c.Polling.LogTail = n
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}

	intervals := map[string]time.Duration{
		"polling.status_active":  c.Polling.StatusActive,
		"polling.status_settled": c.Polling.StatusSettled,
		"polling.review_active":  c.Polling.ReviewActive,
		"polling.review_settled": c.Polling.ReviewSettled,
		"polling.logs":           c.Polling.Logs,
	}
	for name, d := range intervals {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.Polling.LogTail < 1 || c.Polling.LogTail > 500 {
		errs = append(errs, fmt.Errorf("polling.log_tail must be between 1 and 500, got %d", c.Polling.LogTail))
	}
	if c.Storage.DBPath == "" {
		errs = append(errs, errors.New("storage.db_path is required"))
	}

	return errors.Join(errs...)
}
