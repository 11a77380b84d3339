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
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/backend/software"
	"github.com/jeremyhahn/go-hwkey/pkg/buffer"
	"github.com/jeremyhahn/go-hwkey/pkg/curve"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
	"github.com/jeremyhahn/go-hwkey/pkg/metrics"
)

const sentinel = 0xA5

func newTestBoundary(t *testing.T) *Boundary {
	t.Helper()
	p, err := software.NewProvider(&software.Config{
		Password:   "boundary-test",
		Iterations: 1000,
		Logger:     logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return New(p, logging.Discard())
}

func filled(n int) []byte {
	return bytes.Repeat([]byte{sentinel}, n)
}

func untouched(t *testing.T, region []byte) {
	t.Helper()
	assert.Equal(t, filled(len(region)), region, "region must not be written")
}

func mustCreate(t *testing.T, b *Boundary) []byte {
	t.Helper()
	key, err := b.NewKey(context.Background())
	require.NoError(t, err)
	return key
}

func mustPublic(t *testing.T, b *Boundary, key []byte) []byte {
	t.Helper()
	pub, err := b.PublicKey(context.Background(), key)
	require.NoError(t, err)
	return pub
}

// fakeProvider lets tests inject failures and panics.
type fakeProvider struct {
	createFn      func() (backend.KeyHandle, error)
	reconstructFn func(repr []byte) (backend.KeyHandle, error)
	exportFn      func() ([]byte, error)
	agreeFn       func() ([]byte, error)
}

type fakeHandle struct{}

func (fakeHandle) Public() *ecdh.PublicKey { return nil }
func (fakeHandle) Close() error            { return nil }

func (f *fakeProvider) Type() backend.BackendType { return "fake" }
func (f *fakeProvider) HardwareBacked() bool      { return true }
func (f *fakeProvider) Close() error              { return nil }

func (f *fakeProvider) Create(context.Context) (backend.KeyHandle, error) {
	if f.createFn != nil {
		return f.createFn()
	}
	return fakeHandle{}, nil
}

func (f *fakeProvider) Reconstruct(_ context.Context, repr []byte) (backend.KeyHandle, error) {
	if f.reconstructFn != nil {
		return f.reconstructFn(repr)
	}
	return fakeHandle{}, nil
}

func (f *fakeProvider) Export(backend.KeyHandle) ([]byte, error) {
	if f.exportFn != nil {
		return f.exportFn()
	}
	return []byte{'F', 0x01, 0xFF}, nil
}

func (f *fakeProvider) PublicKey(backend.KeyHandle) (*ecdh.PublicKey, error) {
	return nil, errors.New("fake: no public key")
}

func (f *fakeProvider) Agree(context.Context, backend.KeyHandle, *ecdh.PublicKey) ([]byte, error) {
	if f.agreeFn != nil {
		return f.agreeFn()
	}
	return nil, backend.ErrAgreementFailed
}

func TestGetPublicKey_CapacityBoundary(t *testing.T) {
	b := newTestBoundary(t)
	key := mustCreate(t, b)
	want := mustPublic(t, b, key)
	require.Len(t, want, curve.PublicKeySize)
	assert.Equal(t, byte(0x04), want[0])

	for c := 0; c < curve.PublicKeySize; c++ {
		region := filled(c)
		length := int32(c)
		assert.False(t, b.GetPublicKey(key, region, &length), "capacity %d", c)
		assert.Equal(t, int32(curve.PublicKeySize), length, "capacity %d", c)
		untouched(t, region)
	}
	for c := curve.PublicKeySize; c <= curve.PublicKeySize+8; c++ {
		region := filled(c)
		length := int32(c)
		require.True(t, b.GetPublicKey(key, region, &length), "capacity %d", c)
		assert.Equal(t, int32(curve.PublicKeySize), length)
		assert.Equal(t, want, region[:length])
		assert.Equal(t, filled(c-curve.PublicKeySize), region[length:], "bytes past the result")
	}
}

func TestKeyAgreement_CapacityBoundary(t *testing.T) {
	b := newTestBoundary(t)
	a := mustCreate(t, b)
	peer := mustPublic(t, b, mustCreate(t, b))
	want, err := b.SharedSecret(context.Background(), a, peer)
	require.NoError(t, err)
	require.Len(t, want, curve.SharedSecretSize)

	for c := 0; c < curve.SharedSecretSize; c++ {
		region := filled(c)
		length := int32(c)
		assert.False(t, b.KeyAgreement(a, peer, region, &length), "capacity %d", c)
		assert.Equal(t, int32(curve.SharedSecretSize), length)
		untouched(t, region)
	}
	region := filled(curve.SharedSecretSize)
	length := int32(curve.SharedSecretSize)
	require.True(t, b.KeyAgreement(a, peer, region, &length))
	assert.Equal(t, want, region)
}

func TestCreateKey_TwoPhase(t *testing.T) {
	b := newTestBoundary(t)

	var length int32
	assert.False(t, b.CreateKey(nil, &length))
	require.Greater(t, length, int32(0), "required size must be reported")

	region := filled(int(length) - 1)
	short := length - 1
	assert.False(t, b.CreateKey(region, &short))
	assert.Equal(t, length, short)
	untouched(t, region)

	region = filled(int(length))
	require.True(t, b.CreateKey(region, &length))

	var pubLen int32
	assert.False(t, b.GetPublicKey(region[:length], nil, &pubLen))
	assert.Equal(t, int32(curve.PublicKeySize), pubLen)
	pub := make([]byte, pubLen)
	require.True(t, b.GetPublicKey(region[:length], pub, &pubLen))
	assert.Equal(t, byte(0x04), pub[0])
}

func TestCreateKey_Distinct(t *testing.T) {
	b := newTestBoundary(t)
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		region := make([]byte, 512)
		length := int32(len(region))
		require.True(t, b.CreateKey(region, &length))
		repr := string(region[:length])
		assert.False(t, seen[repr], "duplicate representation")
		seen[repr] = true
	}
}

func TestKeyAgreement_Symmetric(t *testing.T) {
	b := newTestBoundary(t)
	a, c := mustCreate(t, b), mustCreate(t, b)
	aPub, cPub := mustPublic(t, b, a), mustPublic(t, b, c)

	ab := make([]byte, curve.SharedSecretSize)
	abLen := int32(len(ab))
	require.True(t, b.KeyAgreement(a, cPub, ab, &abLen))

	ba := make([]byte, curve.SharedSecretSize)
	baLen := int32(len(ba))
	require.True(t, b.KeyAgreement(c, aPub, ba, &baLen))

	assert.Equal(t, ab, ba)
}

func TestKeyAgreement_MatchesSoftwareECDH(t *testing.T) {
	b := newTestBoundary(t)
	key := mustCreate(t, b)
	hwPub, err := curve.ParsePublicKey(mustPublic(t, b, key))
	require.NoError(t, err)

	peer, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	want, err := peer.ECDH(hwPub)
	require.NoError(t, err)

	got, err := b.SharedSecret(context.Background(), key, peer.PublicKey().Bytes())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMalformedInputs(t *testing.T) {
	b := newTestBoundary(t)
	key := mustCreate(t, b)
	peer := mustPublic(t, b, mustCreate(t, b))

	garbage := make([]byte, 200)
	_, _ = rand.Read(garbage)

	offCurve := make([]byte, curve.PublicKeySize)
	offCurve[0] = 0x04
	offCurve[1] = 0x01

	keys := map[string][]byte{
		"nil":       nil,
		"empty":     {},
		"one byte":  {'S'},
		"header":    {'S', 0x01},
		"truncated": key[:len(key)/2],
		"garbage":   garbage,
		"wrong tag": append([]byte{'T'}, key[1:]...),
	}
	for name, bad := range keys {
		t.Run("key "+name, func(t *testing.T) {
			region := filled(128)
			length := int32(len(region))
			assert.False(t, b.GetPublicKey(bad, region, &length))
			assert.Equal(t, int32(128), length)
			untouched(t, region)

			length = int32(len(region))
			assert.False(t, b.KeyAgreement(bad, peer, region, &length))
			assert.Equal(t, int32(128), length)
			untouched(t, region)
		})
	}

	peers := map[string][]byte{
		"nil":        nil,
		"short":      peer[:64],
		"long":       append(append([]byte{}, peer...), 0x00),
		"compressed": append([]byte{0x02}, peer[1:33]...),
		"off curve":  offCurve,
		"infinity":   {0x00},
	}
	for name, bad := range peers {
		t.Run("peer "+name, func(t *testing.T) {
			region := filled(64)
			length := int32(len(region))
			assert.False(t, b.KeyAgreement(key, bad, region, &length))
			assert.Equal(t, int32(64), length)
			untouched(t, region)

			_, err := b.SharedSecret(context.Background(), key, bad)
			assert.ErrorIs(t, err, curve.ErrInvalidPublicKey)
		})
	}
}

func TestInvalidDescriptor(t *testing.T) {
	b := newTestBoundary(t)
	key := mustCreate(t, b)
	peer := mustPublic(t, b, key)

	assert.False(t, b.CreateKey(make([]byte, 16), nil))
	assert.False(t, b.GetPublicKey(key, make([]byte, 65), nil))
	assert.False(t, b.KeyAgreement(key, peer, make([]byte, 32), nil))

	// A region smaller than the stated capacity is rejected before the
	// provider is called.
	calls := 0
	fb := New(&fakeProvider{createFn: func() (backend.KeyHandle, error) {
		calls++
		return fakeHandle{}, nil
	}}, logging.Discard())
	length := int32(64)
	assert.False(t, fb.CreateKey(nil, &length))
	assert.Equal(t, int32(64), length)
	region := filled(10)
	assert.False(t, fb.CreateKey(region, &length))
	assert.Equal(t, int32(64), length)
	untouched(t, region)
	assert.Zero(t, calls)
}

func TestNegativeCapacity(t *testing.T) {
	b := newTestBoundary(t)
	key := mustCreate(t, b)

	length := int32(-1)
	assert.False(t, b.GetPublicKey(key, nil, &length))
	assert.Equal(t, int32(curve.PublicKeySize), length)
}

func TestProviderFailure_LengthUnchanged(t *testing.T) {
	providerErr := errors.New("device gone")
	b := New(&fakeProvider{
		createFn: func() (backend.KeyHandle, error) {
			return nil, providerErr
		},
	}, logging.Discard())

	region := filled(8)
	length := int32(0)
	assert.False(t, b.CreateKey(nil, &length))
	assert.Zero(t, length)

	length = 8
	assert.False(t, b.CreateKey(region, &length))
	assert.Equal(t, int32(8), length)
	untouched(t, region)

	_, err := b.NewKey(context.Background())
	assert.ErrorIs(t, err, providerErr)
}

func TestProviderFailure_LogsBackend(t *testing.T) {
	var buf bytes.Buffer
	b := New(&fakeProvider{
		createFn: func() (backend.KeyHandle, error) {
			return nil, errors.New("device gone")
		},
	}, logging.New(logging.Config{Format: "json", Output: &buf}))

	length := int32(0)
	assert.False(t, b.CreateKey(nil, &length))

	out := buf.String()
	assert.Contains(t, out, `"msg":"device gone"`)
	assert.Contains(t, out, `"backend":"fake"`)
	assert.Contains(t, out, `"operation":"create_key"`)
}

func TestPanicRecovered(t *testing.T) {
	b := New(&fakeProvider{
		createFn: func() (backend.KeyHandle, error) {
			panic("driver fault")
		},
		reconstructFn: func([]byte) (backend.KeyHandle, error) {
			panic("driver fault")
		},
	}, logging.Discard())

	region := filled(32)
	length := int32(len(region))
	assert.NotPanics(t, func() {
		assert.False(t, b.CreateKey(region, &length))
	})
	assert.Equal(t, int32(32), length)

	pub, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		assert.False(t, b.GetPublicKey([]byte{'F', 0x01, 0x00}, region, &length))
		assert.False(t, b.KeyAgreement([]byte{'F', 0x01, 0x00}, pub.PublicKey().Bytes(), region, &length))
	})
	assert.Equal(t, int32(32), length)
	untouched(t, region)
}

func TestKeyAgreement_SecretCleared(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, curve.SharedSecretSize)
	b := New(&fakeProvider{
		agreeFn: func() ([]byte, error) { return secret, nil },
	}, logging.Discard())

	pub, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	out := make([]byte, curve.SharedSecretSize)
	length := int32(len(out))
	require.True(t, b.KeyAgreement([]byte{'F', 0x01, 0x00}, pub.PublicKey().Bytes(), out, &length))
	assert.Equal(t, bytes.Repeat([]byte{0x42}, curve.SharedSecretSize), out)
	assert.Equal(t, make([]byte, curve.SharedSecretSize), secret)
}

func TestConcurrentUse(t *testing.T) {
	b := newTestBoundary(t)
	key := mustCreate(t, b)
	want := mustPublic(t, b, key)

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			out := make([]byte, curve.PublicKeySize)
			length := int32(len(out))
			if !b.GetPublicKey(key, out, &length) || !bytes.Equal(want, out) {
				errs <- errors.New("concurrent GetPublicKey mismatch")
				return
			}
			errs <- nil
		}()
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"capacity", &buffer.CapacityError{Capacity: 1, Required: 2}, metrics.ErrorTypeCapacity},
		{"malformed key", backend.ErrMalformedKey, metrics.ErrorTypeMalformed},
		{"bad peer", curve.ErrInvalidPublicKey, metrics.ErrorTypeMalformed},
		{"descriptor", buffer.ErrInvalidDescriptor, metrics.ErrorTypeMalformed},
		{"unavailable", backend.ErrProviderUnavailable, metrics.ErrorTypeProvider},
		{"mismatch", backend.ErrKeyTypeMismatch, metrics.ErrorTypeProvider},
		{"other", errors.New("boom"), metrics.ErrorTypeProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorType(tt.err))
		})
	}
}
