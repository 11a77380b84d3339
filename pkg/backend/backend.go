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

// Package backend defines the key primitive provider contract implemented by
// every hardware (and software fallback) key store in go-hwkey.
//
// A Provider creates P-256 key pairs whose private half never leaves the
// provider, exports an opaque representation the caller can persist, and
// reopens keys from that representation to compute public keys and ECDH
// shared secrets.
package backend

import (
	"context"
	"crypto/ecdh"
)

// BackendType identifies a key primitive provider.
type BackendType string

const (
	BackendTypeTPM2     BackendType = "tpm2"     // TPM 2.0 via go-tpm
	BackendTypePKCS11   BackendType = "pkcs11"   // PKCS#11 hardware security modules
	BackendTypeAWSKMS   BackendType = "awskms"   // AWS Key Management Service
	BackendTypeSoftware BackendType = "software" // Password-wrapped PKCS#8, no hardware
)

// String returns the backend name.
func (t BackendType) String() string {
	return string(t)
}

// KeyHandle is an open reference to a private key held by a Provider.
//
// Handles expose no accessor for private key material. They are only valid
// for the Provider that issued them and for the duration of one call; Close
// releases any device objects or sessions the handle holds.
type KeyHandle interface {
	// Public returns the public half of the key pair.
	Public() *ecdh.PublicKey

	// Close releases resources held by the handle. It is safe to call more
	// than once.
	Close() error
}

// Provider is a key primitive provider.
type Provider interface {
	// Type returns the backend identifier.
	Type() BackendType

	// HardwareBacked reports whether private keys are protected by hardware.
	HardwareBacked() bool

	// Create generates a new P-256 key pair inside the provider.
	Create(ctx context.Context) (KeyHandle, error)

	// Reconstruct reopens a key from a representation returned by Export.
	// Malformed representations fail with ErrMalformedKey.
	Reconstruct(ctx context.Context, representation []byte) (KeyHandle, error)

	// Export returns the opaque representation of a key.
	Export(handle KeyHandle) ([]byte, error)

	// PublicKey returns the public key of a handle issued by this provider.
	PublicKey(handle KeyHandle) (*ecdh.PublicKey, error)

	// Agree computes the raw ECDH shared secret between the private key
	// behind handle and peer. The result is the 32-byte X coordinate.
	Agree(ctx context.Context, handle KeyHandle, peer *ecdh.PublicKey) ([]byte, error)

	// Close releases provider-wide resources.
	Close() error
}
