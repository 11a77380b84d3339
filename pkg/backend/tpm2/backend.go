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

package tpm2

import (
	"context"
	"crypto/ecdh"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
	"github.com/google/go-tpm/tpm2/transport/tcp"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/curve"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

// keyTemplate is an unrestricted ECC NIST P-256 key usable for ECDH_ZGen.
var keyTemplate = tpm2.TPMTPublic{
	Type:    tpm2.TPMAlgECC,
	NameAlg: tpm2.TPMAlgSHA256,
	ObjectAttributes: tpm2.TPMAObject{
		FixedTPM:            true,
		FixedParent:         true,
		SensitiveDataOrigin: true,
		UserWithAuth:        true,
		NoDA:                true,
		Decrypt:             true,
		SignEncrypt:         true,
	},
	Parameters: tpm2.NewTPMUPublicParms(
		tpm2.TPMAlgECC,
		&tpm2.TPMSECCParms{
			Symmetric: tpm2.TPMTSymDefObject{
				Algorithm: tpm2.TPMAlgNull,
			},
			Scheme: tpm2.TPMTECCScheme{
				Scheme: tpm2.TPMAlgNull,
			},
			CurveID: tpm2.TPMECCNistP256,
			KDF: tpm2.TPMTKDFScheme{
				Scheme: tpm2.TPMAlgNull,
			},
		},
	),
	Unique: tpm2.NewTPMUPublicID(
		tpm2.TPMAlgECC,
		&tpm2.TPMSECCPoint{
			X: tpm2.TPM2BECCParameter{Buffer: make([]byte, curve.CoordinateSize)},
			Y: tpm2.TPM2BECCParameter{Buffer: make([]byte, curve.CoordinateSize)},
		},
	),
}

// Provider is a TPM 2.0 key primitive provider. Commands are serialized; a
// device connection is opened per operation and closed afterwards, while the
// embedded simulator stays open until Close.
type Provider struct {
	config *Config
	logger *logging.Logger
	mu     sync.Mutex
	shared transport.TPMCloser
	closed bool
}

// keyHandle holds the wrapped key blobs. The private blob is only usable by
// the TPM under the SRK it was created with.
type keyHandle struct {
	provider *Provider
	public   tpm2.TPM2BPublic
	private  tpm2.TPM2BPrivate
	pub      *ecdh.PublicKey
}

func (k *keyHandle) Public() *ecdh.PublicKey {
	return k.pub
}

// Close is a no-op; the key is only loaded for the duration of a command.
func (k *keyHandle) Close() error {
	return nil
}

// NewProvider validates config and returns a TPM2 provider.
func NewProvider(config *Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	p := &Provider{
		config: config,
		logger: config.Logger,
	}
	if config.Transport == nil && config.UseSimulator && config.SimulatorType == SimulatorEmbedded {
		sim, err := openEmbeddedSimulator()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTPMNotAvailable, err)
		}
		p.shared = sim
	}
	return p, nil
}

// Type returns backend.BackendTypeTPM2.
func (p *Provider) Type() backend.BackendType {
	return backend.BackendTypeTPM2
}

// HardwareBacked returns true.
func (p *Provider) HardwareBacked() bool {
	return true
}

// Create generates a new P-256 key under the SRK.
func (p *Provider) Create(ctx context.Context) (backend.KeyHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var key *keyHandle
	err := p.withTPM(func(tpm transport.TPM) error {
		srk, release, err := p.parent(tpm)
		if err != nil {
			return err
		}
		defer release()

		rsp, err := tpm2.Create{
			ParentHandle: srk,
			InSensitive: tpm2.TPM2BSensitiveCreate{
				Sensitive: &tpm2.TPMSSensitiveCreate{
					UserAuth: tpm2.TPM2BAuth{Buffer: []byte(p.config.KeyAuth)},
				},
			},
			InPublic: tpm2.New2B(keyTemplate),
		}.Execute(tpm)
		if err != nil {
			return fmt.Errorf("%w: tpm2: TPM2_Create: %v", backend.ErrKeyCreation, err)
		}
		key, err = p.newKeyHandle(rsp.OutPublic, rsp.OutPrivate)
		if err != nil {
			return fmt.Errorf("%w: tpm2: %v", backend.ErrKeyCreation, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("tpm2: created key", "srk_handle", fmt.Sprintf("0x%08x", p.config.SRKHandle))
	return key, nil
}

// Reconstruct parses a representation and verifies the TPM accepts it by
// loading it under the SRK.
func (p *Provider) Reconstruct(ctx context.Context, representation []byte) (backend.KeyHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := backend.DecodeRepresentation(backend.FormatTPM2, representation)
	if err != nil {
		return nil, err
	}
	public, private, err := unmarshalBlobs(payload)
	if err != nil {
		return nil, err
	}
	key, err := p.newKeyHandle(*public, *private)
	if err != nil {
		return nil, err
	}
	err = p.withTPM(func(tpm transport.TPM) error {
		srk, release, err := p.parent(tpm)
		if err != nil {
			return err
		}
		defer release()
		handle, err := p.load(tpm, srk, key)
		if err != nil {
			return err
		}
		p.flush(tpm, handle.Handle)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// Export returns tag || version || TPM2B_PUBLIC || TPM2B_PRIVATE.
func (p *Provider) Export(handle backend.KeyHandle) ([]byte, error) {
	key, err := p.keyHandle(handle)
	if err != nil {
		return nil, err
	}
	public := tpm2.Marshal(key.public)
	private := tpm2.Marshal(key.private)
	payload := make([]byte, 0, len(public)+len(private))
	payload = append(payload, public...)
	payload = append(payload, private...)
	return backend.EncodeRepresentation(backend.FormatTPM2, payload), nil
}

// PublicKey returns the public key recorded in the TPM2B_PUBLIC area.
func (p *Provider) PublicKey(handle backend.KeyHandle) (*ecdh.PublicKey, error) {
	key, err := p.keyHandle(handle)
	if err != nil {
		return nil, err
	}
	return key.pub, nil
}

// Agree loads the key and runs TPM2_ECDH_ZGen against peer. The returned
// secret is the X coordinate of the shared point, left-padded to 32 bytes.
func (p *Provider) Agree(ctx context.Context, handle backend.KeyHandle, peer *ecdh.PublicKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := p.keyHandle(handle)
	if err != nil {
		return nil, err
	}
	if peer == nil || peer.Curve() != curve.P256() {
		return nil, curve.ErrInvalidPublicKey
	}
	x, y, err := curve.Coordinates(peer)
	if err != nil {
		return nil, err
	}

	var secret []byte
	err = p.withTPM(func(tpm transport.TPM) error {
		srk, release, err := p.parent(tpm)
		if err != nil {
			return err
		}
		defer release()

		loaded, err := p.load(tpm, srk, key)
		if err != nil {
			return err
		}
		defer p.flush(tpm, loaded.Handle)

		rsp, err := tpm2.ECDHZGen{
			KeyHandle: loaded,
			InPoint: tpm2.New2B(tpm2.TPMSECCPoint{
				X: tpm2.TPM2BECCParameter{Buffer: x},
				Y: tpm2.TPM2BECCParameter{Buffer: y},
			}),
		}.Execute(tpm)
		if err != nil {
			return fmt.Errorf("%w: tpm2: TPM2_ECDH_ZGen: %v", backend.ErrAgreementFailed, err)
		}
		point, err := rsp.OutPoint.Contents()
		if err != nil {
			return fmt.Errorf("%w: tpm2: %v", backend.ErrAgreementFailed, err)
		}
		secret, err = curve.PadSecret(point.X.Buffer)
		if err != nil {
			return fmt.Errorf("%w: tpm2: %v", backend.ErrAgreementFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return secret, nil
}

// Close releases the embedded simulator, if any.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.shared != nil {
		return p.shared.Close()
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

// newKeyHandle validates the public area and extracts the public key.
func (p *Provider) newKeyHandle(public tpm2.TPM2BPublic, private tpm2.TPM2BPrivate) (*keyHandle, error) {
	contents, err := public.Contents()
	if err != nil {
		return nil, fmt.Errorf("%w: tpm2: public area: %v", backend.ErrMalformedKey, err)
	}
	if contents.Type != tpm2.TPMAlgECC {
		return nil, fmt.Errorf("%w: type 0x%04x", ErrUnsupportedKeyAlgorithm, uint16(contents.Type))
	}
	if contents.ObjectAttributes.Restricted || !contents.ObjectAttributes.Decrypt {
		return nil, fmt.Errorf("%w: key cannot be used for ECDH", ErrUnsupportedKeyAlgorithm)
	}
	params, err := contents.Parameters.ECCDetail()
	if err != nil {
		return nil, fmt.Errorf("%w: tpm2: %v", backend.ErrMalformedKey, err)
	}
	if params.CurveID != tpm2.TPMECCNistP256 {
		return nil, fmt.Errorf("%w: curve 0x%04x", ErrUnsupportedKeyAlgorithm, uint16(params.CurveID))
	}
	point, err := contents.Unique.ECC()
	if err != nil {
		return nil, fmt.Errorf("%w: tpm2: %v", backend.ErrMalformedKey, err)
	}
	pub, err := curve.FromCoordinates(point.X.Buffer, point.Y.Buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: tpm2: %v", backend.ErrMalformedKey, err)
	}
	if len(private.Buffer) == 0 {
		return nil, fmt.Errorf("%w: tpm2: empty private area", backend.ErrMalformedKey)
	}
	return &keyHandle{
		provider: p,
		public:   public,
		private:  private,
		pub:      pub,
	}, nil
}

// unmarshalBlobs splits a payload into its TPM2B_PUBLIC and TPM2B_PRIVATE
// parts. The two sized buffers must cover the payload exactly.
func unmarshalBlobs(payload []byte) (*tpm2.TPM2BPublic, *tpm2.TPM2BPrivate, error) {
	publicBlob, rest, err := splitSized(payload)
	if err != nil {
		return nil, nil, err
	}
	privateBlob, rest, err := splitSized(rest)
	if err != nil {
		return nil, nil, err
	}
	if len(rest) != 0 {
		return nil, nil, fmt.Errorf("%w: tpm2: %d trailing bytes", backend.ErrMalformedKey, len(rest))
	}
	public, err := tpm2.Unmarshal[tpm2.TPM2BPublic](publicBlob)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: tpm2: public blob: %v", backend.ErrMalformedKey, err)
	}
	private, err := tpm2.Unmarshal[tpm2.TPM2BPrivate](privateBlob)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: tpm2: private blob: %v", backend.ErrMalformedKey, err)
	}
	return public, private, nil
}

// splitSized returns the leading TPM2B (size prefix included) and the rest.
func splitSized(data []byte) (blob, rest []byte, err error) {
	if len(data) < 2 {
		return nil, nil, fmt.Errorf("%w: tpm2: truncated blob", backend.ErrMalformedKey)
	}
	size := int(binary.BigEndian.Uint16(data))
	if size == 0 || len(data) < 2+size {
		return nil, nil, fmt.Errorf("%w: tpm2: blob size %d exceeds %d remaining bytes",
			backend.ErrMalformedKey, size, len(data)-2)
	}
	return data[:2+size], data[2+size:], nil
}

// withTPM runs fn with exclusive access to a TPM connection.
func (p *Provider) withTPM(fn func(tpm transport.TPM) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return backend.ErrClosed
	}
	if p.shared != nil {
		return fn(p.shared)
	}
	tpm, err := p.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := tpm.Close(); err != nil {
			p.logger.Warnf("tpm2: closing transport: %v", err)
		}
	}()
	return fn(tpm)
}

// open connects to the configured device, SWTPM instance or custom transport.
func (p *Provider) open() (transport.TPMCloser, error) {
	var (
		tpm transport.TPMCloser
		err error
	)
	switch {
	case p.config.Transport != nil:
		tpm, err = p.config.Transport()
	case p.config.UseSimulator:
		port := p.config.SimulatorPort
		tcpTPM, tcpErr := tcp.Open(tcp.Config{
			CommandAddress:  net.JoinHostPort(p.config.SimulatorHost, strconv.Itoa(port)),
			PlatformAddress: net.JoinHostPort(p.config.SimulatorHost, strconv.Itoa(port+1)),
		})
		if tcpErr == nil {
			tpm = tcpTPM
		}
		err = tcpErr
	default:
		tpm, err = openDevice(p.config.Device)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTPMNotAvailable, err)
	}
	return tpm, nil
}

// parent returns the storage parent for new and loaded keys and a function
// that releases it. A transient SRK is flushed by release.
func (p *Provider) parent(tpm transport.TPM) (tpm2.AuthHandle, func(), error) {
	if p.config.SRKHandle != 0 {
		handle := tpm2.TPMHandle(p.config.SRKHandle)
		rsp, err := tpm2.ReadPublic{ObjectHandle: handle}.Execute(tpm)
		if err != nil {
			return tpm2.AuthHandle{}, nil, fmt.Errorf("%w: read SRK 0x%08x: %v",
				ErrTPMNotAvailable, p.config.SRKHandle, err)
		}
		return tpm2.AuthHandle{
			Handle: handle,
			Name:   rsp.Name,
			Auth:   tpm2.PasswordAuth([]byte(p.config.SRKAuth)),
		}, func() {}, nil
	}

	rsp, err := tpm2.CreatePrimary{
		PrimaryHandle: tpm2.AuthHandle{
			Handle: tpm2.TPMRHOwner,
			Auth:   tpm2.PasswordAuth([]byte(p.config.HierarchyAuth)),
		},
		InPublic: tpm2.New2B(tpm2.ECCSRKTemplate),
	}.Execute(tpm)
	if err != nil {
		return tpm2.AuthHandle{}, nil, fmt.Errorf("%w: create SRK: %v", ErrTPMNotAvailable, err)
	}
	release := func() {
		p.flush(tpm, rsp.ObjectHandle)
	}
	return tpm2.AuthHandle{
		Handle: rsp.ObjectHandle,
		Name:   rsp.Name,
		Auth:   tpm2.PasswordAuth(nil),
	}, release, nil
}

// load loads key under srk. A blob the TPM rejects was not created under
// this SRK or has been tampered with.
func (p *Provider) load(tpm transport.TPM, srk tpm2.AuthHandle, key *keyHandle) (tpm2.AuthHandle, error) {
	rsp, err := tpm2.Load{
		ParentHandle: srk,
		InPrivate:    key.private,
		InPublic:     key.public,
	}.Execute(tpm)
	if err != nil {
		return tpm2.AuthHandle{}, fmt.Errorf("%w: tpm2: TPM2_Load: %v", backend.ErrMalformedKey, err)
	}
	return tpm2.AuthHandle{
		Handle: rsp.ObjectHandle,
		Name:   rsp.Name,
		Auth:   tpm2.PasswordAuth([]byte(p.config.KeyAuth)),
	}, nil
}

func (p *Provider) flush(tpm transport.TPM, handle tpm2.TPMHandle) {
	if _, err := (tpm2.FlushContext{FlushHandle: handle}).Execute(tpm); err != nil {
		p.logger.Warnf("tpm2: flushing handle 0x%08x: %v", uint32(handle), err)
	}
}
