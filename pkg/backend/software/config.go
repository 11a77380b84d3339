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

package software

import (
	"fmt"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

const (
	// DefaultIterations is the PBKDF2 iteration count for new keys
	DefaultIterations = 100000

	defaultSaltSize = 16
)

// Config contains configuration for the software provider.
type Config struct {
	// Password encrypts exported PKCS#8 representations. Required.
	Password string `yaml:"password" json:"-"`

	// Iterations is the PBKDF2-SHA256 iteration count (default: 100000)
	Iterations int `yaml:"iterations" json:"iterations"`

	// Logger is used for diagnostic output
	Logger *logging.Logger `yaml:"-" json:"-"`
}

// Validate checks if the Config is valid and fills in defaults.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: software: config is nil", backend.ErrInvalidConfig)
	}
	if c.Password == "" {
		return fmt.Errorf("%w: software: password is required", backend.ErrInvalidConfig)
	}
	if c.Iterations == 0 {
		c.Iterations = DefaultIterations
	}
	if c.Iterations < 1000 {
		return fmt.Errorf("%w: software: %d PBKDF2 iterations is too few", backend.ErrInvalidConfig, c.Iterations)
	}
	if c.Logger == nil {
		c.Logger = logging.DefaultLogger()
	}
	return nil
}
