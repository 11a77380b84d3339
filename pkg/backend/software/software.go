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

// Package software implements a key primitive provider without hardware
// protection. Private keys are generated in process memory and exported as
// password-encrypted PKCS#8 (PBES2 with PBKDF2-SHA256 and AES-256-CBC).
//
// It exists for hosts with no secure element and for tests. HardwareBacked
// reports false so callers can refuse it where hardware is required.
package software

import (
	"context"
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/youmark/pkcs8"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/curve"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

// Provider is the software key primitive provider.
//
// Thread-safe: Yes.
type Provider struct {
	password []byte
	opts     *pkcs8.Opts
	logger   *logging.Logger
	mu       sync.RWMutex
	closed   bool
}

type keyHandle struct {
	provider *Provider
	mu       sync.Mutex
	priv     *ecdsa.PrivateKey
	pub      *ecdh.PublicKey
}

func (k *keyHandle) Public() *ecdh.PublicKey {
	return k.pub
}

// Close drops the reference to the private key.
func (k *keyHandle) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.priv = nil
	return nil
}

func (k *keyHandle) private() (*ecdsa.PrivateKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.priv == nil {
		return nil, backend.ErrClosed
	}
	return k.priv, nil
}

// NewProvider creates a software provider.
func NewProvider(config *Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Provider{
		password: []byte(config.Password),
		opts: &pkcs8.Opts{
			Cipher: pkcs8.AES256CBC,
			KDFOpts: pkcs8.PBKDF2Opts{
				SaltSize:       defaultSaltSize,
				IterationCount: config.Iterations,
				HMACHash:       crypto.SHA256,
			},
		},
		logger: config.Logger,
	}, nil
}

// Type returns backend.BackendTypeSoftware.
func (p *Provider) Type() backend.BackendType {
	return backend.BackendTypeSoftware
}

// HardwareBacked returns false.
func (p *Provider) HardwareBacked() bool {
	return false
}

// Create generates a P-256 key with crypto/rand.
func (p *Provider) Create(ctx context.Context) (backend.KeyHandle, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: software: %v", backend.ErrKeyCreation, err)
	}
	return p.newKeyHandle(priv)
}

// Reconstruct decrypts and parses an exported PKCS#8 representation.
func (p *Provider) Reconstruct(ctx context.Context, representation []byte) (backend.KeyHandle, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	der, err := backend.DecodeRepresentation(backend.FormatSoftware, representation)
	if err != nil {
		return nil, err
	}
	priv, err := pkcs8.ParsePKCS8PrivateKeyECDSA(der, p.password)
	if err != nil {
		return nil, fmt.Errorf("%w: software: %v", backend.ErrMalformedKey, err)
	}
	if priv.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: software: %v", backend.ErrMalformedKey, curve.ErrUnsupportedCurve)
	}
	return p.newKeyHandle(priv)
}

// Export encrypts the private key into a PKCS#8 representation.
func (p *Provider) Export(handle backend.KeyHandle) ([]byte, error) {
	key, err := p.keyHandle(handle)
	if err != nil {
		return nil, err
	}
	priv, err := key.private()
	if err != nil {
		return nil, err
	}
	der, err := pkcs8.MarshalPrivateKey(priv, p.password, p.opts)
	if err != nil {
		return nil, fmt.Errorf("software: encrypt private key: %w", err)
	}
	return backend.EncodeRepresentation(backend.FormatSoftware, der), nil
}

// PublicKey returns the public half of handle.
func (p *Provider) PublicKey(handle backend.KeyHandle) (*ecdh.PublicKey, error) {
	key, err := p.keyHandle(handle)
	if err != nil {
		return nil, err
	}
	return key.pub, nil
}

// Agree computes the ECDH shared secret with crypto/ecdh.
func (p *Provider) Agree(ctx context.Context, handle backend.KeyHandle, peer *ecdh.PublicKey) ([]byte, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	key, err := p.keyHandle(handle)
	if err != nil {
		return nil, err
	}
	if peer == nil || peer.Curve() != curve.P256() {
		return nil, curve.ErrInvalidPublicKey
	}
	priv, err := key.private()
	if err != nil {
		return nil, err
	}
	ecdhPriv, err := priv.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: software: %v", backend.ErrAgreementFailed, err)
	}
	secret, err := ecdhPriv.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("%w: software: %v", backend.ErrAgreementFailed, err)
	}
	return secret, nil
}

// Close marks the provider closed.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Provider) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return backend.ErrClosed
	}
	return nil
}

func (p *Provider) keyHandle(handle backend.KeyHandle) (*keyHandle, error) {
	key, ok := handle.(*keyHandle)
	if !ok || key == nil || key.provider != p {
		return nil, backend.ErrKeyTypeMismatch
	}
	return key, nil
}

func (p *Provider) newKeyHandle(priv *ecdsa.PrivateKey) (*keyHandle, error) {
	pub, err := curve.FromECDSA(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: software: %v", backend.ErrMalformedKey, err)
	}
	return &keyHandle{
		provider: p,
		priv:     priv,
		pub:      pub,
	}, nil
}
