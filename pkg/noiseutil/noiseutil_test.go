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

package noiseutil

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/flynn/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-hwkey/pkg/backend/software"
	"github.com/jeremyhahn/go-hwkey/pkg/curve"
	"github.com/jeremyhahn/go-hwkey/pkg/hwkey"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

func newBoundary(t *testing.T) *hwkey.Boundary {
	t.Helper()
	p, err := software.NewProvider(&software.Config{
		Password:   "noise-test",
		Iterations: 1000,
		Logger:     logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return hwkey.New(p, logging.Discard())
}

func TestDHP256_Software(t *testing.T) {
	a, err := DHP256.GenerateKeypair(nil)
	require.NoError(t, err)
	b, err := DHP256.GenerateKeypair(rand.Reader)
	require.NoError(t, err)

	assert.Len(t, a.Private, curve.CoordinateSize)
	assert.Len(t, a.Public, curve.PublicKeySize)
	assert.Equal(t, curve.PublicKeySize, DHP256.DHLen())
	assert.Equal(t, "P256", DHP256.DHName())

	ab, err := DHP256.DH(a.Private, b.Public)
	require.NoError(t, err)
	ba, err := DHP256.DH(b.Private, a.Public)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.Len(t, ab, curve.SharedSecretSize)
}

func TestDHP256_RejectsBadInput(t *testing.T) {
	a, err := DHP256.GenerateKeypair(nil)
	require.NoError(t, err)

	_, err = DHP256.DH(a.Private, a.Public[:33])
	assert.ErrorIs(t, err, curve.ErrInvalidPublicKey)

	_, err = DHP256.DH(make([]byte, 80), a.Public)
	assert.ErrorIs(t, err, ErrNoBoundary)
}

func TestDH_HardwareMatchesSoftware(t *testing.T) {
	dh := New(newBoundary(t))

	hw, err := dh.GenerateKeypair(nil)
	require.NoError(t, err)
	assert.NotEqual(t, curve.CoordinateSize, len(hw.Private))
	require.Len(t, hw.Public, curve.PublicKeySize)

	sw, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	hwSide, err := dh.DH(hw.Private, sw.PublicKey().Bytes())
	require.NoError(t, err)
	swSide, err := dh.DH(sw.Bytes(), hw.Public)
	require.NoError(t, err)
	assert.Equal(t, hwSide, swSide)
}

func TestHandshakeXX(t *testing.T) {
	dh := New(newBoundary(t))
	suite := noise.NewCipherSuite(dh, noise.CipherAESGCM, noise.HashSHA256)

	hwStatic, err := dh.GenerateKeypair(nil)
	require.NoError(t, err)
	swStatic, err := DHP256.GenerateKeypair(nil)
	require.NoError(t, err)

	initiator, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   suite,
		Pattern:       noise.HandshakeXX,
		Initiator:     true,
		StaticKeypair: hwStatic,
	})
	require.NoError(t, err)
	responder, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   suite,
		Pattern:       noise.HandshakeXX,
		StaticKeypair: swStatic,
	})
	require.NoError(t, err)

	msg, _, _, err := initiator.WriteMessage(nil, nil)
	require.NoError(t, err)
	_, _, _, err = responder.ReadMessage(nil, msg)
	require.NoError(t, err)

	msg, _, _, err = responder.WriteMessage(nil, nil)
	require.NoError(t, err)
	_, _, _, err = initiator.ReadMessage(nil, msg)
	require.NoError(t, err)

	msg, iSend, iRecv, err := initiator.WriteMessage(nil, nil)
	require.NoError(t, err)
	_, rRecv, rSend, err := responder.ReadMessage(nil, msg)
	require.NoError(t, err)
	require.NotNil(t, iSend)
	require.NotNil(t, rSend)

	assert.Equal(t, hwStatic.Public, responder.PeerStatic())
	assert.Equal(t, swStatic.Public, initiator.PeerStatic())

	ct, err := iSend.Encrypt(nil, nil, []byte("hello"))
	require.NoError(t, err)
	pt, err := rRecv.Decrypt(nil, nil, ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pt)

	ct, err = rSend.Encrypt(nil, nil, []byte("world"))
	require.NoError(t, err)
	pt, err = iRecv.Decrypt(nil, nil, ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), pt)
}
