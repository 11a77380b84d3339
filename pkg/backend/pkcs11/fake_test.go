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
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/asn1"
	"errors"
	"reflect"
	"sync"

	"github.com/miekg/pkcs11"
)

// fakeObject is a token or session object held by fakeContext.
type fakeObject struct {
	attrs map[uint][]byte
	priv  *ecdh.PrivateKey
}

// fakeContext is an in-memory token implementing Context with crypto/ecdh.
type fakeContext struct {
	mu          sync.Mutex
	label       string
	pin         string
	next        pkcs11.ObjectHandle
	objects     map[pkcs11.ObjectHandle]*fakeObject
	sessions    map[pkcs11.SessionHandle]bool
	nextSession pkcs11.SessionHandle
	search      []*pkcs11.Attribute
	finalized   bool

	// injected failures
	generateErr error
	deriveErr   error
}

func newFakeContext(label, pin string) *fakeContext {
	return &fakeContext{
		label:    label,
		pin:      pin,
		objects:  make(map[pkcs11.ObjectHandle]*fakeObject),
		sessions: make(map[pkcs11.SessionHandle]bool),
	}
}

func (f *fakeContext) Initialize() error { return nil }

func (f *fakeContext) Finalize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = true
	return nil
}

func (f *fakeContext) Destroy() {}

func (f *fakeContext) GetSlotList(bool) ([]uint, error) {
	return []uint{0, 7}, nil
}

func (f *fakeContext) GetTokenInfo(slotID uint) (pkcs11.TokenInfo, error) {
	if slotID == 7 {
		return pkcs11.TokenInfo{Label: f.label + "    "}, nil
	}
	return pkcs11.TokenInfo{Label: "other"}, nil
}

func (f *fakeContext) OpenSession(uint, uint) (pkcs11.SessionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSession++
	f.sessions[f.nextSession] = true
	return f.nextSession, nil
}

func (f *fakeContext) CloseSession(sh pkcs11.SessionHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sh)
	return nil
}

func (f *fakeContext) openSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeContext) Login(_ pkcs11.SessionHandle, _ uint, pin string) error {
	if pin != f.pin {
		return pkcs11.Error(pkcs11.CKR_PIN_INCORRECT)
	}
	return nil
}

func (f *fakeContext) add(obj *fakeObject) pkcs11.ObjectHandle {
	f.next++
	f.objects[f.next] = obj
	return f.next
}

func attrMap(template []*pkcs11.Attribute) map[uint][]byte {
	m := make(map[uint][]byte, len(template))
	for _, a := range template {
		m[a.Type] = a.Value
	}
	return m
}

func (f *fakeContext) GenerateKeyPair(_ pkcs11.SessionHandle, m []*pkcs11.Mechanism, public, private []*pkcs11.Attribute) (pkcs11.ObjectHandle, pkcs11.ObjectHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generateErr != nil {
		return 0, 0, f.generateErr
	}
	if len(m) != 1 || m[0].Mechanism != pkcs11.CKM_EC_KEY_PAIR_GEN {
		return 0, 0, pkcs11.Error(pkcs11.CKR_MECHANISM_INVALID)
	}
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return 0, 0, err
	}
	point, err := asn1.Marshal(priv.PublicKey().Bytes())
	if err != nil {
		return 0, 0, err
	}
	pubAttrs := attrMap(public)
	pubAttrs[pkcs11.CKA_EC_POINT] = point
	pubObj := f.add(&fakeObject{attrs: pubAttrs})
	privObj := f.add(&fakeObject{attrs: attrMap(private), priv: priv})
	return pubObj, privObj, nil
}

func (f *fakeContext) FindObjectsInit(_ pkcs11.SessionHandle, temp []*pkcs11.Attribute) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.search = temp
	return nil
}

func (f *fakeContext) FindObjects(_ pkcs11.SessionHandle, max int) ([]pkcs11.ObjectHandle, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found []pkcs11.ObjectHandle
	for h, obj := range f.objects {
		match := true
		for _, a := range f.search {
			if !bytes.Equal(obj.attrs[a.Type], a.Value) {
				match = false
				break
			}
		}
		if match && len(found) < max {
			found = append(found, h)
		}
	}
	return found, false, nil
}

func (f *fakeContext) FindObjectsFinal(pkcs11.SessionHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.search = nil
	return nil
}

func (f *fakeContext) GetAttributeValue(_ pkcs11.SessionHandle, o pkcs11.ObjectHandle, a []*pkcs11.Attribute) ([]*pkcs11.Attribute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[o]
	if !ok {
		return nil, pkcs11.Error(pkcs11.CKR_OBJECT_HANDLE_INVALID)
	}
	out := make([]*pkcs11.Attribute, 0, len(a))
	for _, attr := range a {
		value, ok := obj.attrs[attr.Type]
		if !ok {
			return nil, pkcs11.Error(pkcs11.CKR_ATTRIBUTE_TYPE_INVALID)
		}
		out = append(out, pkcs11.NewAttribute(attr.Type, value))
	}
	return out, nil
}

// derivePublicKeyData reads the peer point from CKM_ECDH1_DERIVE parameters.
// The mechanism keeps them unexported until it is serialized for cgo.
func derivePublicKeyData(m *pkcs11.Mechanism) ([]byte, error) {
	generator := reflect.ValueOf(m).Elem().FieldByName("generator")
	if !generator.IsValid() || generator.IsNil() {
		return nil, errors.New("mechanism has no parameters")
	}
	params := generator.Elem()
	if params.Type() != reflect.TypeOf(&pkcs11.ECDH1DeriveParams{}) {
		return nil, errors.New("unexpected mechanism parameters")
	}
	return params.Elem().FieldByName("PublicKeyData").Bytes(), nil
}

func (f *fakeContext) DeriveKey(_ pkcs11.SessionHandle, m []*pkcs11.Mechanism, basekey pkcs11.ObjectHandle, a []*pkcs11.Attribute) (pkcs11.ObjectHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deriveErr != nil {
		return 0, f.deriveErr
	}
	if len(m) != 1 || m[0].Mechanism != pkcs11.CKM_ECDH1_DERIVE {
		return 0, pkcs11.Error(pkcs11.CKR_MECHANISM_INVALID)
	}
	base, ok := f.objects[basekey]
	if !ok || base.priv == nil {
		return 0, pkcs11.Error(pkcs11.CKR_KEY_HANDLE_INVALID)
	}
	data, err := derivePublicKeyData(m[0])
	if err != nil {
		return 0, pkcs11.Error(pkcs11.CKR_MECHANISM_PARAM_INVALID)
	}
	peer, err := ecdh.P256().NewPublicKey(data)
	if err != nil {
		return 0, pkcs11.Error(pkcs11.CKR_MECHANISM_PARAM_INVALID)
	}
	secret, err := base.priv.ECDH(peer)
	if err != nil {
		return 0, pkcs11.Error(pkcs11.CKR_FUNCTION_FAILED)
	}
	attrs := attrMap(a)
	attrs[pkcs11.CKA_VALUE] = secret
	return f.add(&fakeObject{attrs: attrs}), nil
}

func (f *fakeContext) DestroyObject(_ pkcs11.SessionHandle, oh pkcs11.ObjectHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[oh]; !ok {
		return pkcs11.Error(pkcs11.CKR_OBJECT_HANDLE_INVALID)
	}
	delete(f.objects, oh)
	return nil
}

func (f *fakeContext) objectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}
