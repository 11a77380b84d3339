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

package main

import (
	"sync"
	"unsafe"

	"github.com/jeremyhahn/go-hwkey/internal/config"
	"github.com/jeremyhahn/go-hwkey/pkg/hwkey"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

// shim adapts raw caller memory to the boundary. The boundary is built on
// first successful use and kept for the life of the process; a failed open
// is retried on the next call.
type shim struct {
	open func() (*hwkey.Boundary, error)

	mu       sync.Mutex
	boundary *hwkey.Boundary
}

func newShim(open func() (*hwkey.Boundary, error)) *shim {
	return &shim{open: open}
}

// openFromEnvironment builds the boundary from the HWKEY_CONFIG file, or
// defaults plus environment overrides.
func openFromEnvironment() (*hwkey.Boundary, error) {
	cfg, err := config.FromEnvironment()
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger()
	provider, err := cfg.NewProvider(logger)
	if err != nil {
		return nil, err
	}
	return hwkey.New(provider, logger), nil
}

func (s *shim) get() *hwkey.Boundary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boundary != nil {
		return s.boundary
	}
	b, err := s.open()
	if err != nil {
		logging.DefaultLogger().Errorf("libhwkey: backend unavailable: %v", err)
		return nil
	}
	s.boundary = b
	return b
}

// output wraps the caller's output region. The slice is sized from the
// capacity in length; a nil pointer yields a nil slice, which the boundary
// accepts only with zero capacity.
func output(ptr unsafe.Pointer, length *int32) []byte {
	if ptr == nil || length == nil || *length <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), int(*length))
}

// input wraps a caller input. Negative lengths, and a nil pointer with a
// positive length, are malformed.
func input(ptr unsafe.Pointer, n int32) ([]byte, bool) {
	switch {
	case n < 0:
		return nil, false
	case n == 0:
		return []byte{}, true
	case ptr == nil:
		return nil, false
	}
	return unsafe.Slice((*byte)(ptr), int(n)), true
}

func (s *shim) createKey(buf unsafe.Pointer, length *int32) (ok bool) {
	defer recoverFalse(&ok)
	b := s.get()
	if b == nil {
		return false
	}
	return b.CreateKey(output(buf, length), length)
}

func (s *shim) getPublicKey(key unsafe.Pointer, keyLen int32, buf unsafe.Pointer, length *int32) (ok bool) {
	defer recoverFalse(&ok)
	priv, valid := input(key, keyLen)
	if !valid {
		return false
	}
	b := s.get()
	if b == nil {
		return false
	}
	return b.GetPublicKey(priv, output(buf, length), length)
}

func (s *shim) keyAgreement(key unsafe.Pointer, keyLen int32, peer unsafe.Pointer, peerLen int32,
	buf unsafe.Pointer, length *int32) (ok bool) {

	defer recoverFalse(&ok)
	priv, valid := input(key, keyLen)
	if !valid {
		return false
	}
	pub, valid := input(peer, peerLen)
	if !valid {
		return false
	}
	b := s.get()
	if b == nil {
		return false
	}
	return b.KeyAgreement(priv, pub, output(buf, length), length)
}

func recoverFalse(ok *bool) {
	if r := recover(); r != nil {
		logging.DefaultLogger().Errorf("libhwkey: recovered from panic: %v", r)
		*ok = false
	}
}
