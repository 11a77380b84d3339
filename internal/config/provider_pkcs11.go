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

package config

import (
	"fmt"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/backend/pkcs11"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

func newPKCS11Provider(cfg *PKCS11Config, logger *logging.Logger) (backend.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: pkcs11 backend requires configuration", ErrInvalidConfig)
	}
	p, err := pkcs11.NewProvider(&pkcs11.Config{
		Library:    cfg.Library,
		TokenLabel: cfg.TokenLabel,
		Slot:       cfg.Slot,
		PIN:        cfg.PIN,
		KeyLabel:   cfg.KeyLabel,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
