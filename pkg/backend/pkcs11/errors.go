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

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
)

var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = fmt.Errorf("%w: pkcs11", backend.ErrInvalidConfig)

	// ErrInvalidPINLength is returned when the user PIN is too short.
	// PKCS#11 typically requires PINs to be at least 4 characters.
	ErrInvalidPINLength = fmt.Errorf("%w: pkcs11: pin must be at least 4 characters", backend.ErrInvalidConfig)

	// ErrLibraryNotFound is returned when the PKCS#11 library cannot be loaded.
	ErrLibraryNotFound = fmt.Errorf("%w: pkcs11: library not found", backend.ErrProviderUnavailable)

	// ErrTokenNotFound is returned when the specified token cannot be found.
	ErrTokenNotFound = fmt.Errorf("%w: pkcs11: token not found", backend.ErrProviderUnavailable)
)
