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

//go:build !awskms

package config

import (
	"fmt"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

// newAWSKMSProvider is a stub when AWS KMS support is not compiled in
func newAWSKMSProvider(_ *AWSKMSConfig, _ *logging.Logger) (backend.Provider, error) {
	return nil, fmt.Errorf("%w: awskms (use -tags awskms)", ErrBackendNotCompiled)
}
