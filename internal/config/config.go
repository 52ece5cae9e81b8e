package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models trackfit.yml.
type Config struct {
	Issuance struct {
		VendorCode   string `yaml:"vendor_code"`
		WarrantyDays int    `yaml:"warranty_days"`
		RetryBudget  int    `yaml:"retry_budget"`
	} `yaml:"issuance"`
	Alerts struct {
		ExpiryThresholdDays int `yaml:"expiry_threshold_days"`
	} `yaml:"alerts"`
	Tags struct {
		OutputDir string `yaml:"output_dir"`
	} `yaml:"tags"`
}

// Load reads and validates config from workspace, falling back to
// defaults when the file does not exist.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Issuance.WarrantyDays <= 0 {
		return fmt.Errorf("config.issuance.warranty_days must be positive")
	}
	if c.Issuance.RetryBudget <= 0 {
		return fmt.Errorf("config.issuance.retry_budget must be positive")
	}
	if c.Issuance.VendorCode == "" {
		return fmt.Errorf("config.issuance.vendor_code is required")
	}
	if c.Alerts.ExpiryThresholdDays <= 0 {
		return fmt.Errorf("config.alerts.expiry_threshold_days must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "trackfit.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	cfg.Issuance.VendorCode = "A1"
	cfg.Issuance.WarrantyDays = 1825
	cfg.Issuance.RetryBudget = 8
	cfg.Alerts.ExpiryThresholdDays = 30
	cfg.Tags.OutputDir = "generated_tags"
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Fields left
// unset fall back to defaults before validation.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
