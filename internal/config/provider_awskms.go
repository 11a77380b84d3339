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

package config

import (
	"fmt"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/backend/awskms"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

func newAWSKMSProvider(cfg *AWSKMSConfig, logger *logging.Logger) (backend.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: awskms backend requires configuration", ErrInvalidConfig)
	}
	p, err := awskms.NewProvider(&awskms.Config{
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		SessionToken:    cfg.SessionToken,
		Endpoint:        cfg.Endpoint,
		Description:     cfg.Description,
		Timeout:         cfg.Timeout,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
