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

//go:build !cgo

package tpm2

import "github.com/google/go-tpm/tpm2/transport"

func openEmbeddedSimulator() (transport.TPMCloser, error) {
	return nil, ErrSimulatorUnavailable
}
