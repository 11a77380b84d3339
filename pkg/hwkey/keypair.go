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

package hwkey

import (
	"errors"

	"github.com/jeremyhahn/go-hwkey/pkg/curve"
)

// initialKeyCapacity is the first buffer size Keypair offers CreateKey. It is
// large enough for every bundled provider, so the retry is rarely taken.
const initialKeyCapacity = 512

var (
	// ErrCreateKey is returned by Keypair when CreateKey fails for a reason
	// other than capacity.
	ErrCreateKey = errors.New("hwkey: create key failed")

	// ErrGetPublicKey is returned by Keypair when GetPublicKey fails.
	ErrGetPublicKey = errors.New("hwkey: get public key failed")
)

// Keypair creates a key through the boolean operations and returns the
// uncompressed public key and the key representation. A CreateKey capacity
// failure is retried once with the reported size; that retry creates a
// second key.
func (b *Boundary) Keypair() (public, private []byte, err error) {
	private, err = b.createKey(initialKeyCapacity)
	if err != nil {
		return nil, nil, err
	}

	length := int32(curve.PublicKeySize)
	out := make([]byte, length)
	if !b.GetPublicKey(private, out, &length) {
		if int(length) <= curve.PublicKeySize {
			return nil, nil, ErrGetPublicKey
		}
		out = make([]byte, length)
		if !b.GetPublicKey(private, out, &length) {
			return nil, nil, ErrGetPublicKey
		}
	}
	return out[:length], private, nil
}

func (b *Boundary) createKey(capacity int32) ([]byte, error) {
	length := capacity
	out := make([]byte, length)
	if b.CreateKey(out, &length) {
		return out[:length], nil
	}
	if length <= capacity {
		return nil, ErrCreateKey
	}
	out = make([]byte, length)
	if !b.CreateKey(out, &length) {
		return nil, ErrCreateKey
	}
	return out[:length], nil
}
