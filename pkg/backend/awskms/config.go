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

//go:build awskms

package awskms

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

const (
	// DefaultTimeout bounds each KMS API call
	DefaultTimeout = 30 * time.Second

	// DefaultDescription is set on created keys
	DefaultDescription = "hwkey"
)

// Config contains configuration for the AWS KMS provider. It specifies the
// AWS region, credentials, and optional endpoint override.
type Config struct {
	// Region is the AWS region where KMS keys will be managed.
	// Examples: "us-east-1", "us-west-2", "eu-west-1"
	Region string `yaml:"region" json:"region"`

	// AccessKeyID is the AWS access key ID.
	// Optional - if not provided, will use IAM role or environment credentials.
	AccessKeyID string `yaml:"access_key,omitempty" json:"-"`

	// SecretAccessKey is the AWS secret access key.
	SecretAccessKey string `yaml:"secret_key,omitempty" json:"-"`

	// SessionToken is the AWS session token for temporary credentials.
	SessionToken string `yaml:"session_token,omitempty" json:"-"`

	// Endpoint is a custom KMS endpoint URL, e.g. "http://localhost:4566"
	// for LocalStack.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// Description is set on created keys
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Timeout bounds each API call (default: 30s)
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Client replaces the SDK client built from the fields above.
	Client KMSClient `yaml:"-" json:"-"`

	// Logger is used for diagnostic output
	Logger *logging.Logger `yaml:"-" json:"-"`
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if c.Region == "" {
		return fmt.Errorf("%w: region is required", ErrInvalidConfig)
	}
	if !isValidRegion(c.Region) {
		return fmt.Errorf("%w: %s", ErrInvalidRegion, c.Region)
	}
	if (c.AccessKeyID != "" && c.SecretAccessKey == "") ||
		(c.AccessKeyID == "" && c.SecretAccessKey != "") {
		return fmt.Errorf("%w: both access_key and secret_key must be provided together", ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Description == "" {
		c.Description = DefaultDescription
	}
	if c.Logger == nil {
		c.Logger = logging.DefaultLogger()
	}
	return nil
}

// String returns a string representation of the config with credentials
// masked.
func (c *Config) String() string {
	accessKeyMask := "<not set>"
	if c.AccessKeyID != "" {
		if len(c.AccessKeyID) > 4 {
			accessKeyMask = "****" + c.AccessKeyID[len(c.AccessKeyID)-4:]
		} else {
			accessKeyMask = "****"
		}
	}
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = "<default>"
	}
	return fmt.Sprintf("AWSKMS Config{Region: %s, Endpoint: %s, AccessKeyID: %s}",
		c.Region, endpoint, accessKeyMask)
}

func isValidRegion(region string) bool {
	// LocalStack
	if region == "local" || region == "us-east-1-local" {
		return true
	}
	parts := strings.Split(region, "-")
	if len(parts) < 2 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, r := range part {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
				return false
			}
		}
	}
	return true
}
