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

package tpm2

import (
	"fmt"

	"github.com/google/go-tpm/tpm2/transport"

	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

const (
	// DefaultDevice is the kernel TPM resource manager
	DefaultDevice = "/dev/tpmrm0"

	// SimulatorEmbedded runs the go-tpm-tools simulator in process
	SimulatorEmbedded = "embedded"

	// SimulatorSWTPM connects to a SWTPM instance over TCP
	SimulatorSWTPM = "swtpm"

	defaultSimulatorHost = "localhost"
	defaultSimulatorPort = 2321
)

// Config holds the configuration for the TPM2 provider
type Config struct {
	// Device is the path to the TPM device (e.g., "/dev/tpmrm0"). Paths
	// ending in ".sock" are opened as Unix domain sockets.
	Device string `yaml:"device" json:"device"`

	// UseSimulator selects a simulator instead of Device
	UseSimulator bool `yaml:"use_simulator" json:"use_simulator"`

	// SimulatorType is "embedded" (default) or "swtpm"
	SimulatorType string `yaml:"simulator_type" json:"simulator_type"`

	// SimulatorHost is the hostname of a SWTPM simulator (default: "localhost")
	SimulatorHost string `yaml:"simulator_host" json:"simulator_host"`

	// SimulatorPort is the SWTPM command port; the platform port is
	// SimulatorPort+1 (default: 2321)
	SimulatorPort int `yaml:"simulator_port" json:"simulator_port"`

	// SRKHandle is a persistent storage root key handle. Zero creates a
	// transient ECC SRK under the owner hierarchy for every operation.
	SRKHandle uint32 `yaml:"srk_handle" json:"srk_handle"`

	// SRKAuth is the authorization value of a persistent SRK
	SRKAuth string `yaml:"srk_auth" json:"-"`

	// HierarchyAuth is the owner hierarchy authorization used to create a
	// transient SRK
	HierarchyAuth string `yaml:"hierarchy_auth" json:"-"`

	// KeyAuth is the user authorization value set on created keys
	KeyAuth string `yaml:"key_auth" json:"-"`

	// Transport overrides device and simulator selection
	Transport func() (transport.TPMCloser, error) `yaml:"-" json:"-"`

	// Logger is used for diagnostic output
	Logger *logging.Logger `yaml:"-" json:"-"`
}

// DefaultConfig returns a configuration for the kernel resource manager with
// a transient SRK.
func DefaultConfig() *Config {
	return &Config{
		Device:        DefaultDevice,
		SimulatorType: SimulatorEmbedded,
		SimulatorHost: defaultSimulatorHost,
		SimulatorPort: defaultSimulatorPort,
	}
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if c.UseSimulator {
		if c.SimulatorType == "" {
			c.SimulatorType = SimulatorEmbedded
		}
		switch c.SimulatorType {
		case SimulatorEmbedded:
		case SimulatorSWTPM:
			if c.SimulatorHost == "" {
				c.SimulatorHost = defaultSimulatorHost
			}
			if c.SimulatorPort == 0 {
				c.SimulatorPort = defaultSimulatorPort
			}
			if c.SimulatorPort < 0 || c.SimulatorPort > 65534 {
				return fmt.Errorf("%w: simulator port %d out of range", ErrInvalidConfig, c.SimulatorPort)
			}
		default:
			return fmt.Errorf("%w: unknown simulator type %q", ErrInvalidConfig, c.SimulatorType)
		}
	} else if c.Transport == nil && c.Device == "" {
		c.Device = DefaultDevice
	}
	if c.SRKHandle != 0 && (c.SRKHandle < 0x81000000 || c.SRKHandle > 0x81FFFFFF) {
		return fmt.Errorf("%w: SRK handle 0x%08x is not a persistent handle", ErrInvalidConfig, c.SRKHandle)
	}
	if c.Logger == nil {
		c.Logger = logging.DefaultLogger()
	}
	return nil
}
