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

//go:build cgo

package tpm2

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/curve"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

// newSimulatorProvider returns a provider backed by the embedded simulator.
// Only one simulator can be open at a time, so tests must not run in parallel.
func newSimulatorProvider(t *testing.T, keyAuth string) *Provider {
	t.Helper()
	p, err := NewProvider(&Config{
		UseSimulator: true,
		KeyAuth:      keyAuth,
		Logger:       logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, p.Close())
	})
	return p
}

func TestProvider_CreateAndExport(t *testing.T) {
	p := newSimulatorProvider(t, "")
	ctx := context.Background()

	assert.Equal(t, backend.BackendTypeTPM2, p.Type())
	assert.True(t, p.HardwareBacked())

	key, err := p.Create(ctx)
	require.NoError(t, err)
	defer key.Close()

	pub, err := p.PublicKey(key)
	require.NoError(t, err)
	raw, err := curve.SerializePublicKey(pub)
	require.NoError(t, err)
	assert.Len(t, raw, curve.PublicKeySize)
	assert.Equal(t, byte(0x04), raw[0])

	repr, err := p.Export(key)
	require.NoError(t, err)
	assert.Equal(t, backend.FormatTPM2, repr[0])
	assert.Equal(t, backend.RepresentationVersion, repr[1])

	again, err := p.Export(key)
	require.NoError(t, err)
	assert.Equal(t, repr, again)
}

func TestProvider_ReconstructRoundTrip(t *testing.T) {
	p := newSimulatorProvider(t, "")
	ctx := context.Background()

	key, err := p.Create(ctx)
	require.NoError(t, err)
	repr, err := p.Export(key)
	require.NoError(t, err)

	reopened, err := p.Reconstruct(ctx, repr)
	require.NoError(t, err)
	assert.Equal(t, key.Public().Bytes(), reopened.Public().Bytes())
}

func TestProvider_AgreeMatchesSoftware(t *testing.T) {
	for _, auth := range []string{"", "key-password"} {
		t.Run("auth="+auth, func(t *testing.T) {
			p := newSimulatorProvider(t, auth)
			ctx := context.Background()

			key, err := p.Create(ctx)
			require.NoError(t, err)

			peer, err := ecdh.P256().GenerateKey(rand.Reader)
			require.NoError(t, err)

			secret, err := p.Agree(ctx, key, peer.PublicKey())
			require.NoError(t, err)
			require.Len(t, secret, curve.SharedSecretSize)

			want, err := peer.ECDH(key.Public())
			require.NoError(t, err)
			assert.Equal(t, want, secret)

			again, err := p.Agree(ctx, key, peer.PublicKey())
			require.NoError(t, err)
			assert.Equal(t, secret, again)
		})
	}
}

func TestProvider_TwoKeysAgree(t *testing.T) {
	p := newSimulatorProvider(t, "")
	ctx := context.Background()

	a, err := p.Create(ctx)
	require.NoError(t, err)
	b, err := p.Create(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a.Public().Bytes(), b.Public().Bytes())

	ab, err := p.Agree(ctx, a, b.Public())
	require.NoError(t, err)
	ba, err := p.Agree(ctx, b, a.Public())
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestProvider_ReconstructMalformed(t *testing.T) {
	p := newSimulatorProvider(t, "")
	ctx := context.Background()

	key, err := p.Create(ctx)
	require.NoError(t, err)
	repr, err := p.Export(key)
	require.NoError(t, err)

	truncated := repr[:len(repr)-1]
	wrongTag := append([]byte{backend.FormatSoftware}, repr[1:]...)
	wrongVersion := append([]byte{backend.FormatTPM2, 0x7F}, repr[2:]...)
	tampered := append([]byte(nil), repr...)
	tampered[len(tampered)-1] ^= 0xFF

	for name, data := range map[string][]byte{
		"Empty":        nil,
		"HeaderOnly":   repr[:2],
		"Truncated":    truncated,
		"WrongTag":     wrongTag,
		"WrongVersion": wrongVersion,
		"Tampered":     tampered,
		"Extended":     append(append([]byte(nil), repr...), 0x00),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.Reconstruct(ctx, data)
			require.Error(t, err)
			assert.ErrorIs(t, err, backend.ErrMalformedKey)
		})
	}
}

func TestProvider_AgreeRejectsForeignHandle(t *testing.T) {
	p := newSimulatorProvider(t, "")
	peer, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, err = p.Agree(context.Background(), nil, peer.PublicKey())
	assert.ErrorIs(t, err, backend.ErrKeyTypeMismatch)

	_, err = p.Export(nil)
	assert.ErrorIs(t, err, backend.ErrKeyTypeMismatch)
}

func TestProvider_AgreeRejectsWrongCurve(t *testing.T) {
	p := newSimulatorProvider(t, "")
	key, err := p.Create(context.Background())
	require.NoError(t, err)

	other, err := ecdh.P384().GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, err = p.Agree(context.Background(), key, other.PublicKey())
	assert.ErrorIs(t, err, curve.ErrInvalidPublicKey)
}

func TestProvider_CanceledContext(t *testing.T) {
	p := newSimulatorProvider(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Create(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProvider_Closed(t *testing.T) {
	p, err := NewProvider(&Config{UseSimulator: true, Logger: logging.Discard()})
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.Create(context.Background())
	assert.ErrorIs(t, err, backend.ErrClosed)
}
