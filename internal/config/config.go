package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the application.
type Config struct {
	HTTPPort    int    `json:"http_port" validate:"gte=0"`
	MetricsPort int    `json:"metrics_port" validate:"gte=0"`
	LogLevel    string `json:"log_level" validate:"oneof=debug info warn error"`
	NumWorkers  int    `json:"num_workers" validate:"min=1"`
	DBPath      string `json:"db_path" validate:"required"`
	APIKey      string `json:"api_key"`

	Dropbox struct {
		AppKey       string `json:"app_key"`
		AppSecret    string `json:"app_secret"`
		RefreshToken string `json:"refresh_token"`
	} `json:"dropbox"`

	Scheduler struct {
		RefreshSchedule string `json:"refresh_schedule" validate:"required"`
	} `json:"scheduler"`
}

// Load reads configuration from a file and overrides with environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// HasCredentials reports whether a complete Dropbox credential set is present.
// A missing credential set is not fatal at startup; storage operations will
// fail until credentials are provided.
func (c *Config) HasCredentials() bool {
	return c.Dropbox.AppKey != "" && c.Dropbox.AppSecret != "" && c.Dropbox.RefreshToken != ""
}

// applyEnvOverrides overrides config fields with environment variables.
func (c *Config) applyEnvOverrides() error {
	// Dropbox overrides
	if v := os.Getenv("DROPBOX_APP_KEY"); v != "" {
		c.Dropbox.AppKey = v
	}
	if v := os.Getenv("DROPBOX_APP_SECRET"); v != "" {
		c.Dropbox.AppSecret = v
	}
	if v := os.Getenv("DROPBOX_REFRESH_TOKEN"); v != "" {
		c.Dropbox.RefreshToken = v
	}

	// API key overrides
	if v := os.Getenv("API_KEY"); v != "" {
		c.APIKey = v
	}

	// HTTPPort overrides
	if v := os.Getenv("HTTP_PORT"); v != "" {
		var err error
		c.HTTPPort, err = parseInt(v)
		if err != nil {
			return fmt.Errorf("parsing HTTP_PORT: %w", err)
		}
	}

	// MetricsPort overrides
	if v := os.Getenv("METRICS_PORT"); v != "" {
		var err error
		c.MetricsPort, err = parseInt(v)
		if err != nil {
			return fmt.Errorf("parsing METRICS_PORT: %w", err)
		}
	}

	// LogLevel overrides
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	// DBPath overrides
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}

	// Scheduler overrides
	if v := os.Getenv("REFRESH_SCHEDULE"); v != "" {
		c.Scheduler.RefreshSchedule = v
	}

	return nil
}

// validate checks the configuration for errors. Dropbox credentials are
// deliberately not required here; see HasCredentials.
func (c *Config) validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
