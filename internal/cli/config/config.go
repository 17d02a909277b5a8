package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL   = "http://127.0.0.1:8085"
	DefaultAdminURL  = "http://127.0.0.1:8086"
	DefaultTimeout   = 60 * time.Second
	DefaultStatePath = "configs/cli_state.json"
)

// Config holds CLI configuration.
type Config struct {
	BaseURL    string        `yaml:"baseURL"`
	AdminURL   string        `yaml:"adminURL"`
	Timeout    time.Duration `yaml:"timeout"`
	StatePath  string        `yaml:"statePath"`
	PrettyJSON *bool         `yaml:"prettyJSON"`
}

// Load reads the config file. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config file failed: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file failed: %w", err)
		}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AdminURL == "" {
		cfg.AdminURL = DefaultAdminURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StatePath == "" {
		cfg.StatePath = DefaultStatePath
	}
	if cfg.PrettyJSON == nil {
		value := true
		cfg.PrettyJSON = &value
	}
}
