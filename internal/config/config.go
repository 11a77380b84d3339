// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-hwkey.
//
// go-hwkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads the go-hwkey configuration file and builds the
// selected key primitive provider from it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "HWKEY_CONFIG"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the complete go-hwkey configuration
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Backend  string         `yaml:"backend"`
	Backends BackendsConfig `yaml:"backends"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig toggles Prometheus metrics collection
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BackendsConfig contains configuration for all provider types. Only the
// section named by Config.Backend is used.
type BackendsConfig struct {
	TPM2     *TPM2Config     `yaml:"tpm2,omitempty"`
	PKCS11   *PKCS11Config   `yaml:"pkcs11,omitempty"`
	AWSKMS   *AWSKMSConfig   `yaml:"awskms,omitempty"`
	Software *SoftwareConfig `yaml:"software,omitempty"`
}

// TPM2Config contains TPM 2.0 provider settings
type TPM2Config struct {
	Device        string `yaml:"device"`
	UseSimulator  bool   `yaml:"use_simulator"`
	SimulatorType string `yaml:"simulator_type"`
	SimulatorHost string `yaml:"simulator_host"`
	SimulatorPort int    `yaml:"simulator_port"`
	SRKHandle     uint32 `yaml:"srk_handle"`
	SRKAuth       string `yaml:"srk_auth"`
	HierarchyAuth string `yaml:"hierarchy_auth"`
	KeyAuth       string `yaml:"key_auth"`
}

// PKCS11Config contains PKCS#11 provider settings
type PKCS11Config struct {
	Library    string `yaml:"library"`
	TokenLabel string `yaml:"token_label"`
	Slot       *int   `yaml:"slot,omitempty"`
	PIN        string `yaml:"pin"`
	KeyLabel   string `yaml:"key_label"`
}

// AWSKMSConfig contains AWS KMS provider settings
type AWSKMSConfig struct {
	Region       string        `yaml:"region"`
	AccessKey    string        `yaml:"access_key"`
	SecretKey    string        `yaml:"secret_key"`
	SessionToken string        `yaml:"session_token"`
	Endpoint     string        `yaml:"endpoint"`
	Description  string        `yaml:"description"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SoftwareConfig contains software provider settings
type SoftwareConfig struct {
	Password   string `yaml:"password"`
	Iterations int    `yaml:"iterations"`
}

// Default returns a configuration selecting the TPM resource manager device.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Backend: backend.BackendTypeTPM2.String(),
		Backends: BackendsConfig{
			TPM2: &TPM2Config{Device: "/dev/tpmrm0"},
		},
	}
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Backends = BackendsConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnvironment loads the file named by HWKEY_CONFIG, or Default with
// environment overrides when the variable is unset.
func FromEnvironment() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return Load(path)
	}
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if name := os.Getenv("HWKEY_BACKEND"); name != "" {
		cfg.Backend = name
	}

	// Logging
	if level := os.Getenv("HWKEY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("HWKEY_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// TPM2 settings
	if tpmPath := os.Getenv("TPM_DEVICE_PATH"); tpmPath != "" {
		if cfg.Backends.TPM2 == nil {
			cfg.Backends.TPM2 = &TPM2Config{}
		}
		cfg.Backends.TPM2.Device = tpmPath
	}

	// PKCS#11 settings
	lib, pin := os.Getenv("PKCS11_LIBRARY"), os.Getenv("PKCS11_PIN")
	if cfg.Backends.PKCS11 == nil && (lib != "" || pin != "") {
		cfg.Backends.PKCS11 = &PKCS11Config{}
	}
	if lib != "" {
		cfg.Backends.PKCS11.Library = lib
	}
	if pin != "" {
		cfg.Backends.PKCS11.PIN = pin
	}

	// AWS KMS settings
	region := os.Getenv("AWS_REGION")
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	endpoint := os.Getenv("AWS_ENDPOINT")
	if cfg.Backends.AWSKMS == nil && region+accessKey+secretKey+endpoint != "" {
		cfg.Backends.AWSKMS = &AWSKMSConfig{}
	}
	if region != "" {
		cfg.Backends.AWSKMS.Region = region
	}
	if accessKey != "" {
		cfg.Backends.AWSKMS.AccessKey = accessKey
	}
	if secretKey != "" {
		cfg.Backends.AWSKMS.SecretKey = secretKey
	}
	if endpoint != "" {
		cfg.Backends.AWSKMS.Endpoint = endpoint
	}

	// Software settings
	if password := os.Getenv("HWKEY_SOFTWARE_PASSWORD"); password != "" {
		if cfg.Backends.Software == nil {
			cfg.Backends.Software = &SoftwareConfig{}
		}
		cfg.Backends.Software.Password = password
	}
}

// Validate checks if the configuration is valid. Provider-specific settings
// are validated by the provider when it is built.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: invalid log level: %s", ErrInvalidConfig, c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: invalid log format: %s", ErrInvalidConfig, c.Logging.Format)
	}

	switch backend.BackendType(c.Backend) {
	case backend.BackendTypeTPM2:
		if c.Backends.TPM2 == nil {
			c.Backends.TPM2 = &TPM2Config{}
		}
	case backend.BackendTypePKCS11:
		if c.Backends.PKCS11 == nil {
			return fmt.Errorf("%w: backends.pkcs11 section is required", ErrInvalidConfig)
		}
	case backend.BackendTypeAWSKMS:
		if c.Backends.AWSKMS == nil {
			return fmt.Errorf("%w: backends.awskms section is required", ErrInvalidConfig)
		}
	case backend.BackendTypeSoftware:
		if c.Backends.Software == nil || c.Backends.Software.Password == "" {
			return fmt.Errorf("%w: software backend requires a password", ErrInvalidConfig)
		}
	case "":
		return fmt.Errorf("%w: backend is required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unknown backend: %s", ErrInvalidConfig, c.Backend)
	}
	return nil
}

// NewLogger builds the logger described by the logging section.
func (c *Config) NewLogger() *logging.Logger {
	return logging.New(logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
	})
}
