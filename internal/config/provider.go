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

package config

import (
	"fmt"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/backend/software"
	"github.com/jeremyhahn/go-hwkey/pkg/backend/tpm2"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
	"github.com/jeremyhahn/go-hwkey/pkg/metrics"
)

// ErrBackendNotCompiled is returned when the selected provider was excluded
// by build tags.
var ErrBackendNotCompiled = fmt.Errorf("%w: backend not compiled in", backend.ErrProviderUnavailable)

// NewProvider builds the provider named by Backend and applies the metrics
// switch. logger is handed to the provider; nil uses the default logger.
func (c *Config) NewProvider(logger *logging.Logger) (backend.Provider, error) {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	if c.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	switch backend.BackendType(c.Backend) {
	case backend.BackendTypeTPM2:
		return newTPM2Provider(c.Backends.TPM2, logger)
	case backend.BackendTypePKCS11:
		return newPKCS11Provider(c.Backends.PKCS11, logger)
	case backend.BackendTypeAWSKMS:
		return newAWSKMSProvider(c.Backends.AWSKMS, logger)
	case backend.BackendTypeSoftware:
		return newSoftwareProvider(c.Backends.Software, logger)
	default:
		return nil, fmt.Errorf("%w: unknown backend: %s", ErrInvalidConfig, c.Backend)
	}
}

func newTPM2Provider(cfg *TPM2Config, logger *logging.Logger) (backend.Provider, error) {
	tpmConfig := tpm2.DefaultConfig()
	if cfg != nil {
		if cfg.Device != "" {
			tpmConfig.Device = cfg.Device
		}
		tpmConfig.UseSimulator = cfg.UseSimulator
		if cfg.SimulatorType != "" {
			tpmConfig.SimulatorType = cfg.SimulatorType
		}
		if cfg.SimulatorHost != "" {
			tpmConfig.SimulatorHost = cfg.SimulatorHost
		}
		if cfg.SimulatorPort != 0 {
			tpmConfig.SimulatorPort = cfg.SimulatorPort
		}
		tpmConfig.SRKHandle = cfg.SRKHandle
		tpmConfig.SRKAuth = cfg.SRKAuth
		tpmConfig.HierarchyAuth = cfg.HierarchyAuth
		tpmConfig.KeyAuth = cfg.KeyAuth
	}
	tpmConfig.Logger = logger
	p, err := tpm2.NewProvider(tpmConfig)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newSoftwareProvider(cfg *SoftwareConfig, logger *logging.Logger) (backend.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: software backend requires configuration", ErrInvalidConfig)
	}
	p, err := software.NewProvider(&software.Config{
		Password:   cfg.Password,
		Iterations: cfg.Iterations,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
