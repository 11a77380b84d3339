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

package backend

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrorVariables ensures all error variables are properly defined
// and have meaningful messages.
func TestErrorVariables(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrMalformedKey", ErrMalformedKey, "backend: malformed key representation"},
		{"ErrKeyNotFound", ErrKeyNotFound, "backend: key not found"},
		{"ErrKeyTypeMismatch", ErrKeyTypeMismatch, "backend: key type mismatch"},
		{"ErrProviderUnavailable", ErrProviderUnavailable, "backend: provider unavailable"},
		{"ErrKeyCreation", ErrKeyCreation, "backend: key creation failed"},
		{"ErrAgreementFailed", ErrAgreementFailed, "backend: key agreement failed"},
		{"ErrInvalidConfig", ErrInvalidConfig, "backend: invalid configuration"},
		{"ErrClosed", ErrClosed, "backend: provider closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err, "Error should not be nil")
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.True(t, strings.HasPrefix(tt.err.Error(), "backend: "))
		})
	}
}

// TestErrorWrapping verifies provider errors stay matchable after wrapping.
func TestErrorWrapping(t *testing.T) {
	wrapped := fmt.Errorf("%w: tpm2: load failed", ErrMalformedKey)
	assert.True(t, errors.Is(wrapped, ErrMalformedKey))
	assert.False(t, errors.Is(wrapped, ErrKeyNotFound))

	twice := fmt.Errorf("reconstruct: %w", wrapped)
	assert.ErrorIs(t, twice, ErrMalformedKey)
}

func TestBackendType_String(t *testing.T) {
	assert.Equal(t, "tpm2", BackendTypeTPM2.String())
	assert.Equal(t, "pkcs11", BackendTypePKCS11.String())
	assert.Equal(t, "awskms", BackendTypeAWSKMS.String())
	assert.Equal(t, "software", BackendTypeSoftware.String())
}
