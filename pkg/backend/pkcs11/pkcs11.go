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

//go:build pkcs11

package pkcs11

import (
	"context"
	"crypto/ecdh"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/miekg/pkcs11"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/curve"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

// keyIDSize is the length of the CKA_ID assigned to generated keys.
const keyIDSize = 16

// Context is the subset of *pkcs11.Ctx used by the provider.
type Context interface {
	Initialize() error
	Finalize() error
	Destroy()
	GetSlotList(tokenPresent bool) ([]uint, error)
	GetTokenInfo(slotID uint) (pkcs11.TokenInfo, error)
	OpenSession(slotID uint, flags uint) (pkcs11.SessionHandle, error)
	CloseSession(sh pkcs11.SessionHandle) error
	Login(sh pkcs11.SessionHandle, userType uint, pin string) error
	GenerateKeyPair(sh pkcs11.SessionHandle, m []*pkcs11.Mechanism, public, private []*pkcs11.Attribute) (pkcs11.ObjectHandle, pkcs11.ObjectHandle, error)
	FindObjectsInit(sh pkcs11.SessionHandle, temp []*pkcs11.Attribute) error
	FindObjects(sh pkcs11.SessionHandle, max int) ([]pkcs11.ObjectHandle, bool, error)
	FindObjectsFinal(sh pkcs11.SessionHandle) error
	GetAttributeValue(sh pkcs11.SessionHandle, o pkcs11.ObjectHandle, a []*pkcs11.Attribute) ([]*pkcs11.Attribute, error)
	DeriveKey(sh pkcs11.SessionHandle, m []*pkcs11.Mechanism, basekey pkcs11.ObjectHandle, a []*pkcs11.Attribute) (pkcs11.ObjectHandle, error)
	DestroyObject(sh pkcs11.SessionHandle, oh pkcs11.ObjectHandle) error
}

var _ Context = (*pkcs11.Ctx)(nil)

// Provider is a PKCS#11 key primitive provider. A session is opened and
// logged in for every operation.
type Provider struct {
	config  *Config
	p11ctx  Context
	ownsCtx bool
	slot    uint
	logger  *logging.Logger
	mu      sync.RWMutex
	closed  bool
}

// keyHandle refers to a token key pair by CKA_ID.
type keyHandle struct {
	provider *Provider
	id       []byte
	pub      *ecdh.PublicKey
}

func (k *keyHandle) Public() *ecdh.PublicKey {
	return k.pub
}

// Close is a no-op; key objects live on the token.
func (k *keyHandle) Close() error {
	return nil
}

// NewProvider loads and initializes the PKCS#11 library, or uses the
// injected context, and selects the configured token.
func NewProvider(config *Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p11ctx := config.Context
	ownsCtx := false
	if p11ctx == nil {
		ctx := pkcs11.New(config.Library)
		if ctx == nil {
			return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, config.Library)
		}
		if err := ctx.Initialize(); err != nil {
			if err != pkcs11.Error(pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED) {
				ctx.Destroy()
				return nil, fmt.Errorf("%w: pkcs11: initialize: %v", backend.ErrProviderUnavailable, err)
			}
		}
		p11ctx = ctx
		ownsCtx = true
	}

	p := &Provider{
		config:  config,
		p11ctx:  p11ctx,
		ownsCtx: ownsCtx,
		logger:  config.Logger,
	}
	slot, err := p.findSlot()
	if err != nil {
		p.release()
		return nil, err
	}
	p.slot = slot
	p.logger.Debug("pkcs11: provider ready", "config", config.String(), "slot", slot)
	return p, nil
}

// findSlot returns the configured slot, the slot holding TokenLabel, or the
// first slot with a token present.
func (p *Provider) findSlot() (uint, error) {
	if p.config.Slot != nil {
		return uint(*p.config.Slot), nil
	}
	slots, err := p.p11ctx.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("%w: get slot list: %v", ErrTokenNotFound, err)
	}
	if len(slots) == 0 {
		return 0, fmt.Errorf("%w: no slots available", ErrTokenNotFound)
	}
	if p.config.TokenLabel == "" {
		return slots[0], nil
	}
	for _, slot := range slots {
		info, err := p.p11ctx.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if strings.TrimRight(info.Label, " \x00") == p.config.TokenLabel {
			return slot, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrTokenNotFound, p.config.TokenLabel)
}

// Type returns backend.BackendTypePKCS11.
func (p *Provider) Type() backend.BackendType {
	return backend.BackendTypePKCS11
}

// HardwareBacked returns true.
func (p *Provider) HardwareBacked() bool {
	return true
}

// Create generates a P-256 key pair on the token.
func (p *Provider) Create(ctx context.Context) (backend.KeyHandle, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	id := uuid.New()
	keyID := id[:]
	label := p.config.KeyLabel

	publicTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_EC),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, curve.NamedCurveParams()),
		pkcs11.NewAttribute(pkcs11.CKA_ID, keyID),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}
	privateTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_EC),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE, true),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, false),
		pkcs11.NewAttribute(pkcs11.CKA_DERIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_ID, keyID),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}

	var key *keyHandle
	err := p.withSession(func(session pkcs11.SessionHandle) error {
		pubObj, _, err := p.p11ctx.GenerateKeyPair(session,
			[]*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_EC_KEY_PAIR_GEN, nil)},
			publicTemplate, privateTemplate)
		if err != nil {
			return fmt.Errorf("%w: pkcs11: C_GenerateKeyPair: %v", backend.ErrKeyCreation, err)
		}
		pub, err := p.readPublic(session, pubObj)
		if err != nil {
			return fmt.Errorf("%w: pkcs11: %v", backend.ErrKeyCreation, err)
		}
		key = &keyHandle{provider: p, id: keyID, pub: pub}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("pkcs11: created key", "label", label, "slot", p.slot)
	return key, nil
}

// Reconstruct finds the key pair named by the CKA_ID in representation.
func (p *Provider) Reconstruct(ctx context.Context, representation []byte) (backend.KeyHandle, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	keyID, err := backend.DecodeRepresentation(backend.FormatPKCS11, representation)
	if err != nil {
		return nil, err
	}
	if len(keyID) != keyIDSize {
		return nil, fmt.Errorf("%w: pkcs11: key id is %d bytes, want %d",
			backend.ErrMalformedKey, len(keyID), keyIDSize)
	}
	keyID = append([]byte(nil), keyID...)

	var key *keyHandle
	err = p.withSession(func(session pkcs11.SessionHandle) error {
		if _, err := p.findObject(session, pkcs11.CKO_PRIVATE_KEY, keyID); err != nil {
			return err
		}
		pubObj, err := p.findObject(session, pkcs11.CKO_PUBLIC_KEY, keyID)
		if err != nil {
			return err
		}
		pub, err := p.readPublic(session, pubObj)
		if err != nil {
			return fmt.Errorf("%w: pkcs11: %v", backend.ErrMalformedKey, err)
		}
		key = &keyHandle{provider: p, id: keyID, pub: pub}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// Export returns tag || version || CKA_ID.
func (p *Provider) Export(handle backend.KeyHandle) ([]byte, error) {
	key, err := p.keyHandle(handle)
	if err != nil {
		return nil, err
	}
	return backend.EncodeRepresentation(backend.FormatPKCS11, key.id), nil
}

// PublicKey returns the public key read from CKA_EC_POINT.
func (p *Provider) PublicKey(handle backend.KeyHandle) (*ecdh.PublicKey, error) {
	key, err := p.keyHandle(handle)
	if err != nil {
		return nil, err
	}
	return key.pub, nil
}

// Agree derives the raw ECDH secret with CKM_ECDH1_DERIVE into a session
// object, reads CKA_VALUE and destroys the object.
func (p *Provider) Agree(ctx context.Context, handle backend.KeyHandle, peer *ecdh.PublicKey) ([]byte, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	key, err := p.keyHandle(handle)
	if err != nil {
		return nil, err
	}
	peerPoint, err := curve.SerializePublicKey(peer)
	if err != nil {
		return nil, err
	}

	var secret []byte
	err = p.withSession(func(session pkcs11.SessionHandle) error {
		privObj, err := p.findObject(session, pkcs11.CKO_PRIVATE_KEY, key.id)
		if err != nil {
			return err
		}
		mech := []*pkcs11.Mechanism{
			pkcs11.NewMechanism(pkcs11.CKM_ECDH1_DERIVE,
				pkcs11.NewECDH1DeriveParams(pkcs11.CKD_NULL, nil, peerPoint)),
		}
		template := []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_SECRET_KEY),
			pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_GENERIC_SECRET),
			pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
			pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, false),
			pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, true),
			pkcs11.NewAttribute(pkcs11.CKA_VALUE_LEN, curve.SharedSecretSize),
		}
		derived, err := p.p11ctx.DeriveKey(session, mech, privObj, template)
		if err != nil {
			return fmt.Errorf("%w: pkcs11: C_DeriveKey: %v", backend.ErrAgreementFailed, err)
		}
		defer func() {
			if err := p.p11ctx.DestroyObject(session, derived); err != nil {
				p.logger.Warnf("pkcs11: destroying derived secret: %v", err)
			}
		}()

		attrs, err := p.p11ctx.GetAttributeValue(session, derived,
			[]*pkcs11.Attribute{pkcs11.NewAttribute(pkcs11.CKA_VALUE, nil)})
		if err != nil {
			return fmt.Errorf("%w: pkcs11: read derived secret: %v", backend.ErrAgreementFailed, err)
		}
		if len(attrs) != 1 {
			return fmt.Errorf("%w: pkcs11: derived secret has no value", backend.ErrAgreementFailed)
		}
		secret, err = curve.PadSecret(attrs[0].Value)
		if err != nil {
			return fmt.Errorf("%w: pkcs11: %v", backend.ErrAgreementFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return secret, nil
}

// Close finalizes the library if the provider loaded it.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.release()
}

func (p *Provider) release() error {
	if !p.ownsCtx {
		return nil
	}
	err := p.p11ctx.Finalize()
	p.p11ctx.Destroy()
	if err != nil {
		return fmt.Errorf("pkcs11: finalize: %w", err)
	}
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

// withSession opens a read-write session, logs in and runs fn.
func (p *Provider) withSession(fn func(session pkcs11.SessionHandle) error) error {
	session, err := p.p11ctx.OpenSession(p.slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		return fmt.Errorf("%w: pkcs11: open session: %v", backend.ErrProviderUnavailable, err)
	}
	defer func() {
		if err := p.p11ctx.CloseSession(session); err != nil {
			p.logger.Warnf("pkcs11: closing session: %v", err)
		}
	}()

	// C_Logout affects every session of the application, so sessions stay
	// logged in.
	if p.config.PIN != "" {
		if err := p.p11ctx.Login(session, pkcs11.CKU_USER, p.config.PIN); err != nil {
			if err != pkcs11.Error(pkcs11.CKR_USER_ALREADY_LOGGED_IN) {
				return fmt.Errorf("%w: pkcs11: login: %v", backend.ErrProviderUnavailable, err)
			}
		}
	}
	return fn(session)
}

// findObject returns the single object of class with CKA_ID id.
func (p *Provider) findObject(session pkcs11.SessionHandle, class uint, id []byte) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
	}
	if err := p.p11ctx.FindObjectsInit(session, template); err != nil {
		return 0, fmt.Errorf("%w: pkcs11: find objects: %v", backend.ErrProviderUnavailable, err)
	}
	objs, _, err := p.p11ctx.FindObjects(session, 2)
	finalErr := p.p11ctx.FindObjectsFinal(session)
	if err = errors.Join(err, finalErr); err != nil {
		return 0, fmt.Errorf("%w: pkcs11: find objects: %v", backend.ErrProviderUnavailable, err)
	}
	switch len(objs) {
	case 0:
		return 0, fmt.Errorf("%w: pkcs11: no object with the requested id", backend.ErrKeyNotFound)
	case 1:
		return objs[0], nil
	default:
		return 0, fmt.Errorf("%w: pkcs11: %d objects share one id", backend.ErrMalformedKey, len(objs))
	}
}

// readPublic reads CKA_EC_POINT from a public key object.
func (p *Provider) readPublic(session pkcs11.SessionHandle, obj pkcs11.ObjectHandle) (*ecdh.PublicKey, error) {
	attrs, err := p.p11ctx.GetAttributeValue(session, obj,
		[]*pkcs11.Attribute{pkcs11.NewAttribute(pkcs11.CKA_EC_POINT, nil)})
	if err != nil {
		return nil, fmt.Errorf("read CKA_EC_POINT: %w", err)
	}
	if len(attrs) != 1 {
		return nil, errors.New("CKA_EC_POINT missing")
	}
	return curve.ParseECPoint(attrs[0].Value)
}
