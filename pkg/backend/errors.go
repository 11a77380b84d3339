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

import "errors"

var (
	// ErrMalformedKey is returned when a key representation cannot be parsed:
	// wrong length, wrong format tag, wrong curve or corrupt contents.
	ErrMalformedKey = errors.New("backend: malformed key representation")

	// ErrKeyNotFound is returned when a well formed representation names a
	// key the provider no longer holds.
	ErrKeyNotFound = errors.New("backend: key not found")

	// ErrKeyTypeMismatch is returned when a handle issued by one provider is
	// passed to another, or a key has the wrong algorithm or usage.
	ErrKeyTypeMismatch = errors.New("backend: key type mismatch")

	// ErrProviderUnavailable is returned when the device or service behind a
	// provider cannot be reached.
	ErrProviderUnavailable = errors.New("backend: provider unavailable")

	// ErrKeyCreation is returned when the provider fails to generate a key.
	ErrKeyCreation = errors.New("backend: key creation failed")

	// ErrAgreementFailed is returned when the provider rejects or fails an
	// ECDH operation.
	ErrAgreementFailed = errors.New("backend: key agreement failed")

	// ErrInvalidConfig is returned for unusable provider configuration.
	ErrInvalidConfig = errors.New("backend: invalid configuration")

	// ErrClosed is returned by a provider after Close.
	ErrClosed = errors.New("backend: provider closed")
)
