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

// Package curve parses and serializes NIST P-256 public keys.
//
// The wire form used throughout go-hwkey is the uncompressed SEC1 point
// (0x04 || X || Y, 65 bytes). Shared secrets are the 32-byte X coordinate of
// the ECDH product. Point validation is delegated to crypto/ecdh, which
// rejects points that are not on the curve and the point at infinity.
package curve

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
)

const (
	// CoordinateSize is the size of one P-256 field element in bytes.
	CoordinateSize = 32

	// PublicKeySize is the size of an uncompressed P-256 point.
	PublicKeySize = 1 + 2*CoordinateSize

	// SharedSecretSize is the size of a raw P-256 ECDH shared secret.
	SharedSecretSize = CoordinateSize

	pointUncompressed = 0x04
)

var (
	// ErrInvalidPublicKey is returned for bytes that are not an uncompressed
	// P-256 point on the curve.
	ErrInvalidPublicKey = errors.New("curve: invalid P-256 public key")

	// ErrUnsupportedCurve is returned for keys on any curve other than P-256.
	ErrUnsupportedCurve = errors.New("curve: unsupported curve")
)

// P256 returns the only curve go-hwkey supports.
func P256() ecdh.Curve {
	return ecdh.P256()
}

// ParsePublicKey parses an uncompressed P-256 point.
func ParsePublicKey(data []byte) (*ecdh.PublicKey, error) {
	if len(data) != PublicKeySize || data[0] != pointUncompressed {
		return nil, fmt.Errorf("%w: expected %d byte uncompressed point, got %d bytes",
			ErrInvalidPublicKey, PublicKeySize, len(data))
	}
	pub, err := ecdh.P256().NewPublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// SerializePublicKey returns the uncompressed encoding of a P-256 key.
func SerializePublicKey(pub *ecdh.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, ErrInvalidPublicKey
	}
	if pub.Curve() != ecdh.P256() {
		return nil, ErrUnsupportedCurve
	}
	return pub.Bytes(), nil
}

// FromECDSA converts an ECDSA P-256 public key.
func FromECDSA(pub *ecdsa.PublicKey) (*ecdh.PublicKey, error) {
	if pub == nil {
		return nil, ErrInvalidPublicKey
	}
	if pub.Curve != elliptic.P256() {
		return nil, ErrUnsupportedCurve
	}
	key, err := pub.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return key, nil
}

// FromCoordinates builds a public key from big-endian affine coordinates.
// Coordinates shorter than CoordinateSize are left-padded.
func FromCoordinates(x, y []byte) (*ecdh.PublicKey, error) {
	if len(x) > CoordinateSize || len(y) > CoordinateSize {
		return nil, fmt.Errorf("%w: coordinate too long", ErrInvalidPublicKey)
	}
	point := make([]byte, PublicKeySize)
	point[0] = pointUncompressed
	copy(point[1+CoordinateSize-len(x):1+CoordinateSize], x)
	copy(point[PublicKeySize-len(y):], y)
	return ParsePublicKey(point)
}

// Coordinates splits a public key into its 32-byte X and Y coordinates.
func Coordinates(pub *ecdh.PublicKey) (x, y []byte, err error) {
	raw, err := SerializePublicKey(pub)
	if err != nil {
		return nil, nil, err
	}
	return raw[1 : 1+CoordinateSize], raw[1+CoordinateSize:], nil
}

// PadSecret left-pads a shared secret to SharedSecretSize. Some devices strip
// leading zero bytes from the X coordinate.
func PadSecret(secret []byte) ([]byte, error) {
	switch {
	case len(secret) == SharedSecretSize:
		return secret, nil
	case len(secret) == 0 || len(secret) > SharedSecretSize:
		return nil, fmt.Errorf("curve: unexpected shared secret length %d", len(secret))
	}
	padded := make([]byte, SharedSecretSize)
	copy(padded[SharedSecretSize-len(secret):], secret)
	return padded, nil
}

// MarshalPKIX encodes a public key as a DER SubjectPublicKeyInfo.
func MarshalPKIX(pub *ecdh.PublicKey) ([]byte, error) {
	if _, err := SerializePublicKey(pub); err != nil {
		return nil, err
	}
	return x509.MarshalPKIXPublicKey(pub)
}

// ParsePKIX decodes a DER SubjectPublicKeyInfo holding a P-256 key.
func ParsePKIX(der []byte) (*ecdh.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	switch pub := key.(type) {
	case *ecdsa.PublicKey:
		return FromECDSA(pub)
	case *ecdh.PublicKey:
		if pub.Curve() != ecdh.P256() {
			return nil, ErrUnsupportedCurve
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedCurve, key)
	}
}

// oidNamedCurveP256 is the ANSI X9.62 prime256v1 object identifier.
var oidNamedCurveP256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}

// NamedCurveParams returns the DER encoded ECParameters for P-256.
func NamedCurveParams() []byte {
	der, _ := asn1.Marshal(oidNamedCurveP256)
	return der
}

// ParseECPoint decodes a point as stored in a PKCS#11 CKA_EC_POINT
// attribute. Tokens disagree on whether the point is wrapped in a DER
// OCTET STRING, so both forms are accepted.
func ParseECPoint(data []byte) (*ecdh.PublicKey, error) {
	if len(data) == PublicKeySize && data[0] == pointUncompressed {
		return ParsePublicKey(data)
	}
	var point []byte
	rest, err := asn1.Unmarshal(data, &point)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing data after EC point", ErrInvalidPublicKey)
	}
	return ParsePublicKey(point)
}
