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

//go:build pkcs11

package pkcs11

import (
	"fmt"
	"os"

	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

// DefaultKeyLabel is the CKA_LABEL set on generated objects.
const DefaultKeyLabel = "hwkey"

// Config contains configuration for the PKCS#11 provider. It specifies the
// library to load, how to find the token and the user PIN.
type Config struct {
	// Library is the path to the PKCS#11 library file.
	// Examples:
	//   - /usr/lib/softhsm/libsofthsm2.so (SoftHSM)
	//   - /usr/lib/libykcs11.so (YubiKey)
	Library string `yaml:"library" json:"library"`

	// TokenLabel selects the token by label. When empty and Slot is nil,
	// the first slot with a token present is used.
	TokenLabel string `yaml:"token_label" json:"token_label"`

	// Slot selects the token by slot number and takes precedence over
	// TokenLabel.
	Slot *int `yaml:"slot,omitempty" json:"slot,omitempty"`

	// PIN is the user PIN for the token.
	PIN string `yaml:"pin" json:"-"`

	// KeyLabel is the CKA_LABEL set on generated key objects.
	KeyLabel string `yaml:"key_label" json:"key_label"`

	// Context replaces the library loaded from Library. The provider does
	// not finalize an injected context.
	Context Context `yaml:"-" json:"-"`

	// Logger is used for diagnostic output
	Logger *logging.Logger `yaml:"-" json:"-"`
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if c.Context == nil {
		if c.Library == "" {
			return fmt.Errorf("%w: library path is required", ErrInvalidConfig)
		}
		if _, err := os.Stat(c.Library); os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrLibraryNotFound, c.Library)
		}
	}
	if c.PIN != "" && len(c.PIN) < 4 {
		return ErrInvalidPINLength
	}
	if c.Slot != nil && *c.Slot < 0 {
		return fmt.Errorf("%w: slot %d", ErrInvalidConfig, *c.Slot)
	}
	if c.KeyLabel == "" {
		c.KeyLabel = DefaultKeyLabel
	}
	if c.Logger == nil {
		c.Logger = logging.DefaultLogger()
	}
	return nil
}

// String returns a string representation of the config with the PIN masked.
func (c *Config) String() string {
	pinMask := "****"
	if c.PIN == "" {
		pinMask = "<not set>"
	}
	slot := "<not set>"
	if c.Slot != nil {
		slot = fmt.Sprintf("%d", *c.Slot)
	}
	return fmt.Sprintf("PKCS#11 Config{Library: %s, TokenLabel: %s, Slot: %s, PIN: %s, KeyLabel: %s}",
		c.Library, c.TokenLabel, slot, pinMask, c.KeyLabel)
}
