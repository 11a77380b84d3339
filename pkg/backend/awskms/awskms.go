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

//go:build awskms

package awskms

import (
	"context"
	"crypto/ecdh"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/jeremyhahn/go-hwkey/pkg/backend"
	"github.com/jeremyhahn/go-hwkey/pkg/curve"
	"github.com/jeremyhahn/go-hwkey/pkg/logging"
)

// Provider is an AWS KMS key primitive provider.
type Provider struct {
	config *Config
	client KMSClient
	logger *logging.Logger
	mu     sync.Mutex
	closed bool
}

// keyHandle refers to a KMS key by ARN.
type keyHandle struct {
	provider *Provider
	arn      string
	pub      *ecdh.PublicKey
}

func (k *keyHandle) Public() *ecdh.PublicKey {
	return k.pub
}

// Close is a no-op; KMS keys are not held open.
func (k *keyHandle) Close() error {
	return nil
}

// NewProvider creates an AWS KMS provider. The SDK client is built on first
// use unless config.Client is set.
func NewProvider(config *Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Provider{
		config: config,
		client: config.Client,
		logger: config.Logger,
	}, nil
}

// initClient initializes the AWS KMS client if not already initialized.
func (p *Provider) initClient(ctx context.Context) (KMSClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, backend.ErrClosed
	}
	if p.client != nil {
		return p.client, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(p.config.Region),
	}
	if p.config.AccessKeyID != "" && p.config.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			p.config.AccessKeyID,
			p.config.SecretAccessKey,
			p.config.SessionToken,
		)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: awskms: load AWS config: %v", backend.ErrProviderUnavailable, err)
	}

	var clientOpts []func(*kms.Options)
	if p.config.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(p.config.Endpoint)
		})
	}
	p.client = kms.NewFromConfig(cfg, clientOpts...)
	p.logger.Debug("awskms: client initialized", "config", p.config.String())
	return p.client, nil
}

// Type returns backend.BackendTypeAWSKMS.
func (p *Provider) Type() backend.BackendType {
	return backend.BackendTypeAWSKMS
}

// HardwareBacked returns true; KMS keys are held in FIPS validated HSMs.
func (p *Provider) HardwareBacked() bool {
	return true
}

// Create creates an ECC_NIST_P256 key agreement key.
func (p *Provider) Create(ctx context.Context) (backend.KeyHandle, error) {
	client, err := p.initClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	out, err := client.CreateKey(ctx, &kms.CreateKeyInput{
		KeySpec:     kmstypes.KeySpecEccNistP256,
		KeyUsage:    kmstypes.KeyUsageTypeKeyAgreement,
		Description: aws.String(p.config.Description),
		Tags: []kmstypes.Tag{
			{TagKey: aws.String("managed-by"), TagValue: aws.String("hwkey")},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: awskms: CreateKey: %v", backend.ErrKeyCreation, err)
	}
	if out == nil || out.KeyMetadata == nil || aws.ToString(out.KeyMetadata.Arn) == "" {
		return nil, fmt.Errorf("%w: awskms: CreateKey returned no key ARN", backend.ErrKeyCreation)
	}
	keyARN := aws.ToString(out.KeyMetadata.Arn)

	pub, err := p.fetchPublicKey(ctx, client, keyARN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrKeyCreation, err)
	}
	p.logger.Debug("awskms: created key", "region", p.config.Region)
	return &keyHandle{provider: p, arn: keyARN, pub: pub}, nil
}

// Reconstruct looks up the key named by the ARN in representation.
func (p *Provider) Reconstruct(ctx context.Context, representation []byte) (backend.KeyHandle, error) {
	payload, err := backend.DecodeRepresentation(backend.FormatAWSKMS, representation)
	if err != nil {
		return nil, err
	}
	keyARN := string(payload)
	if !validARN(keyARN) {
		return nil, fmt.Errorf("%w: awskms: not a key ARN", backend.ErrMalformedKey)
	}
	client, err := p.initClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	pub, err := p.fetchPublicKey(ctx, client, keyARN)
	if err != nil {
		return nil, err
	}
	return &keyHandle{provider: p, arn: keyARN, pub: pub}, nil
}

// Export returns tag || version || key ARN.
func (p *Provider) Export(handle backend.KeyHandle) ([]byte, error) {
	key, err := p.keyHandle(handle)
	if err != nil {
		return nil, err
	}
	return backend.EncodeRepresentation(backend.FormatAWSKMS, []byte(key.arn)), nil
}

// PublicKey returns the public key fetched with GetPublicKey.
func (p *Provider) PublicKey(handle backend.KeyHandle) (*ecdh.PublicKey, error) {
	key, err := p.keyHandle(handle)
	if err != nil {
		return nil, err
	}
	return key.pub, nil
}

// Agree calls DeriveSharedSecret with the peer key as SubjectPublicKeyInfo.
func (p *Provider) Agree(ctx context.Context, handle backend.KeyHandle, peer *ecdh.PublicKey) ([]byte, error) {
	key, err := p.keyHandle(handle)
	if err != nil {
		return nil, err
	}
	spki, err := curve.MarshalPKIX(peer)
	if err != nil {
		return nil, err
	}
	client, err := p.initClient(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	out, err := client.DeriveSharedSecret(ctx, &kms.DeriveSharedSecretInput{
		KeyId:                 aws.String(key.arn),
		KeyAgreementAlgorithm: kmstypes.KeyAgreementAlgorithmSpecEcdh,
		PublicKey:             spki,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: awskms: DeriveSharedSecret: %v", classify(err, backend.ErrAgreementFailed), err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: awskms: DeriveSharedSecret returned no secret", backend.ErrAgreementFailed)
	}
	secret, err := curve.PadSecret(out.SharedSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: awskms: %v", backend.ErrAgreementFailed, err)
	}
	return secret, nil
}

// Close drops the client.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.client = nil
	return nil
}

func (p *Provider) keyHandle(handle backend.KeyHandle) (*keyHandle, error) {
	key, ok := handle.(*keyHandle)
	if !ok || key == nil || key.provider != p {
		return nil, backend.ErrKeyTypeMismatch
	}
	return key, nil
}

// fetchPublicKey reads and checks the public key of keyARN.
func (p *Provider) fetchPublicKey(ctx context.Context, client KMSClient, keyARN string) (*ecdh.PublicKey, error) {
	out, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(keyARN),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: awskms: GetPublicKey: %v", classify(err, backend.ErrProviderUnavailable), err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: awskms: GetPublicKey returned nothing", backend.ErrProviderUnavailable)
	}
	if out.KeySpec != kmstypes.KeySpecEccNistP256 || out.KeyUsage != kmstypes.KeyUsageTypeKeyAgreement {
		return nil, fmt.Errorf("%w: spec %s usage %s", ErrUnsupportedKeySpec, out.KeySpec, out.KeyUsage)
	}
	pub, err := curve.ParsePKIX(out.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: awskms: %v", backend.ErrMalformedKey, err)
	}
	return pub, nil
}

// classify maps KMS service exceptions onto provider errors.
func classify(err error, fallback error) error {
	var notFound *kmstypes.NotFoundException
	if errors.As(err, &notFound) {
		return backend.ErrKeyNotFound
	}
	var invalidARN *kmstypes.InvalidArnException
	if errors.As(err, &invalidARN) {
		return backend.ErrMalformedKey
	}
	var invalidUsage *kmstypes.InvalidKeyUsageException
	if errors.As(err, &invalidUsage) {
		return ErrUnsupportedKeySpec
	}
	return fallback
}

// validARN checks the shape arn:<partition>:kms:<region>:<account>:key/<id>.
func validARN(keyARN string) bool {
	parsed, err := arn.Parse(keyARN)
	if err != nil || parsed.Service != "kms" {
		return false
	}
	id, ok := strings.CutPrefix(parsed.Resource, "key/")
	return ok && id != ""
}
