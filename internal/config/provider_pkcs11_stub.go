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

//go:build !pkcs11

package config

import (
	"fmt"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

// newPKCS11Provider is a stub when PKCS#11 support is not compiled in
func newPKCS11Provider(_ *PKCS11Config, _ *logging.Logger) (backend.Provider, error) {
	return nil, fmt.Errorf("%w: pkcs11 (use -tags pkcs11)", ErrBackendNotCompiled)
}
