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

// Package hwkey is the key boundary: three operations that create a
// hardware-backed P-256 key, derive its public key and compute an ECDH shared
// secret, each returning variable-length bytes through a caller-owned buffer.
//
// The boolean operations follow the buffer contract in package buffer:
//
//	var length int32
//	if !b.GetPublicKey(key, nil, &length) && length > 0 {
//		out := make([]byte, length)
//		b.GetPublicKey(key, out, &length)
//	}
//
// A failed call changes length only when the buffer was too small, so a
// caller that sees length unchanged must not retry with the same input.
// Every boolean operation recovers panics; nothing propagates to the caller.
//
// NewKey, PublicKey and SharedSecret return the same results with errors for
// in-process callers.
package hwkey

import (
	"context"
	"errors"
	"time"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/buffer"
	"github.com/jeremyhahn/go-hwkey/pkg/curve"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
	"github.com/jeremyhahn/go-hwkey/pkg/metrics"
)

// Boundary runs the key operations against one provider. It holds no
// mutable state and is safe for concurrent use when the provider is.
type Boundary struct {
	provider backend.Provider
	logger   *logging.Logger
	name     string
}

// New returns a Boundary over provider. A nil logger uses the default.
func New(provider backend.Provider, logger *logging.Logger) *Boundary {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	name := provider.Type().String()
	return &Boundary{
		provider: provider,
		logger:   logger.With("backend", name),
		name:     name,
	}
}

// Provider returns the underlying key primitive provider.
func (b *Boundary) Provider() backend.Provider {
	return b.provider
}

// NewKey creates a key and returns its opaque representation.
func (b *Boundary) NewKey(ctx context.Context) ([]byte, error) {
	handle, err := b.provider.Create(ctx)
	if err != nil {
		return nil, err
	}
	defer b.release(handle)
	return b.provider.Export(handle)
}

// PublicKey reopens key and returns its 65-byte uncompressed public key.
func (b *Boundary) PublicKey(ctx context.Context, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, backend.ErrMalformedKey
	}
	handle, err := b.provider.Reconstruct(ctx, key)
	if err != nil {
		return nil, err
	}
	defer b.release(handle)

	pub, err := b.provider.PublicKey(handle)
	if err != nil {
		return nil, err
	}
	return curve.SerializePublicKey(pub)
}

// SharedSecret reopens key and computes the raw ECDH secret with the
// uncompressed peer public key. The secret is not hashed or derived.
func (b *Boundary) SharedSecret(ctx context.Context, key, peer []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, backend.ErrMalformedKey
	}
	peerKey, err := curve.ParsePublicKey(peer)
	if err != nil {
		return nil, err
	}
	handle, err := b.provider.Reconstruct(ctx, key)
	if err != nil {
		return nil, err
	}
	defer b.release(handle)
	return b.provider.Agree(ctx, handle, peerKey)
}

// CreateKey creates a new key and writes its representation to out. A key
// is created on every call that gets past descriptor validation, including
// calls that then fail for capacity.
func (b *Boundary) CreateKey(out []byte, length *int32) bool {
	return b.run(metrics.OpCreateKey, out, length, false, func(ctx context.Context) ([]byte, error) {
		return b.NewKey(ctx)
	})
}

// GetPublicKey writes the uncompressed public key of key to out.
func (b *Boundary) GetPublicKey(key, out []byte, length *int32) bool {
	return b.run(metrics.OpGetPublicKey, out, length, false, func(ctx context.Context) ([]byte, error) {
		return b.PublicKey(ctx, key)
	})
}

// KeyAgreement writes the shared secret between key and peer to out.
func (b *Boundary) KeyAgreement(key, peer, out []byte, length *int32) bool {
	return b.run(metrics.OpKeyAgreement, out, length, true, func(ctx context.Context) ([]byte, error) {
		return b.SharedSecret(ctx, key, peer)
	})
}

// run validates the output descriptor, computes the result and applies the
// buffer contract. Sensitive results are zeroed once copied.
func (b *Boundary) run(op string, out []byte, length *int32, sensitive bool,
	compute func(ctx context.Context) ([]byte, error)) (ok bool) {

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("hwkey: %s: recovered from panic: %v", op, r)
			metrics.Observe(op, b.name, start, metrics.ErrorTypePanic)
			ok = false
		}
	}()

	output, err := buffer.NewOutput(out, length)
	if err != nil {
		b.observe(op, start, err)
		return false
	}
	result, err := compute(context.Background())
	if err != nil {
		b.observe(op, start, err)
		return false
	}
	if sensitive {
		defer clear(result)
	}
	err = output.Fill(result)
	b.observe(op, start, err)
	return err == nil
}

// observe logs a failure without its inputs and records metrics.
func (b *Boundary) observe(op string, start time.Time, err error) {
	errType := ErrorType(err)
	switch errType {
	case "":
	case metrics.ErrorTypeCapacity:
		b.logger.Debug("hwkey: buffer too small", "operation", op,
			"required", buffer.RequiredSize(err))
	case metrics.ErrorTypeMalformed:
		b.logger.Warn("hwkey: rejected input", "operation", op, "error", err)
	default:
		b.logger.Error(err, "operation", op)
	}
	metrics.Observe(op, b.name, start, errType)
}

func (b *Boundary) release(handle backend.KeyHandle) {
	if err := handle.Close(); err != nil {
		b.logger.Warnf("hwkey: closing key handle: %v", err)
	}
}

// ErrorType classifies err into one of the metrics error types. It returns
// "" for nil.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, buffer.ErrInsufficientCapacity):
		return metrics.ErrorTypeCapacity
	case errors.Is(err, backend.ErrMalformedKey),
		errors.Is(err, curve.ErrInvalidPublicKey),
		errors.Is(err, curve.ErrUnsupportedCurve),
		errors.Is(err, buffer.ErrInvalidDescriptor):
		return metrics.ErrorTypeMalformed
	default:
		return metrics.ErrorTypeProvider
	}
}
