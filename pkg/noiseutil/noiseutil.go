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

// Package noiseutil plugs hardware-backed P-256 keys into the Noise protocol
// framework as a github.com/flynn/noise DH function.
package noiseutil

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/flynn/noise"

	"github.com/jeremyhahn/go-hwkey/pkg/curve"
	"github.com/jeremyhahn/go-hwkey/pkg/hwkey"
)

// Name is the Noise DH function name.
const Name = "P256"

var (
	// ErrNoBoundary is returned when a hardware key is used with a DH function
	// that has no key boundary.
	ErrNoBoundary = errors.New("noiseutil: hardware key without a key boundary")

	// DHP256 is a software-only P-256 DH function.
	DHP256 noise.DHFunc = New(nil)
)

type dhP256 struct {
	boundary *hwkey.Boundary
}

// New returns the P256 DH function. Private keys of curve.CoordinateSize
// bytes are software scalars; any other length is a key representation and
// is handed to boundary. With a nil boundary only software keys work and
// GenerateKeypair produces software keys.
func New(boundary *hwkey.Boundary) noise.DHFunc {
	return dhP256{boundary: boundary}
}

// GenerateKeypair creates a key through the boundary, or a software key when
// there is none. rng is only used for software keys.
func (d dhP256) GenerateKeypair(rng io.Reader) (noise.DHKey, error) {
	if d.boundary == nil {
		if rng == nil {
			rng = rand.Reader
		}
		priv, err := ecdh.P256().GenerateKey(rng)
		if err != nil {
			return noise.DHKey{}, err
		}
		return noise.DHKey{Private: priv.Bytes(), Public: priv.PublicKey().Bytes()}, nil
	}

	ctx := context.Background()
	key, err := d.boundary.NewKey(ctx)
	if err != nil {
		return noise.DHKey{}, err
	}
	pub, err := d.boundary.PublicKey(ctx, key)
	if err != nil {
		return noise.DHKey{}, err
	}
	return noise.DHKey{Private: key, Public: pub}, nil
}

// DH returns the 32-byte X coordinate of the shared point.
func (d dhP256) DH(privkey, pubkey []byte) ([]byte, error) {
	if len(privkey) != curve.CoordinateSize {
		if d.boundary == nil {
			return nil, ErrNoBoundary
		}
		return d.boundary.SharedSecret(context.Background(), privkey, pubkey)
	}

	priv, err := ecdh.P256().NewPrivateKey(privkey)
	if err != nil {
		return nil, fmt.Errorf("noiseutil: invalid private scalar: %w", err)
	}
	pub, err := curve.ParsePublicKey(pubkey)
	if err != nil {
		return nil, err
	}
	return priv.ECDH(pub)
}

// DHLen returns the public key size. flynn/noise uses DHLen only to size
// public keys, which for P-256 differ from the 32-byte DH output.
func (d dhP256) DHLen() int {
	return curve.PublicKeySize
}

func (d dhP256) DHName() string {
	return Name
}
