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
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
)

var (
	// ErrTPMNotAvailable indicates the TPM device could not be opened
	ErrTPMNotAvailable = fmt.Errorf("%w: tpm2: TPM device not available", backend.ErrProviderUnavailable)

	// ErrUnsupportedKeyAlgorithm indicates a loaded object is not an ECC P-256 key
	ErrUnsupportedKeyAlgorithm = fmt.Errorf("%w: tpm2: unsupported key algorithm", backend.ErrMalformedKey)

	// ErrSimulatorUnavailable indicates the binary was built without the embedded simulator
	ErrSimulatorUnavailable = errors.New("tpm2: embedded simulator requires cgo")

	// ErrInvalidConfig indicates the configuration is invalid
	ErrInvalidConfig = fmt.Errorf("%w: tpm2", backend.ErrInvalidConfig)
)
