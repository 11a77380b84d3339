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

// Package awskms implements the key primitive provider on AWS Key Management
// Service.
//
// Keys are ECC_NIST_P256 customer managed keys with the KEY_AGREEMENT usage.
// The representation handed back to callers is the key ARN; shared secrets
// are computed by the DeriveSharedSecret API, so private key material never
// leaves KMS. Build with the awskms tag.
package awskms

import (
	"fmt"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
)

var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = fmt.Errorf("%w: awskms", backend.ErrInvalidConfig)

	// ErrInvalidRegion is returned when the AWS region is not recognized.
	ErrInvalidRegion = fmt.Errorf("%w: awskms: invalid region", backend.ErrInvalidConfig)

	// ErrUnsupportedKeySpec is returned for keys that are not ECC_NIST_P256
	// key agreement keys.
	ErrUnsupportedKeySpec = fmt.Errorf("%w: awskms: key is not an ECC_NIST_P256 key agreement key", backend.ErrMalformedKey)
)
