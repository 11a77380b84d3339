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

package cli

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/hkdf"

	"github.com/jeremyhahn/go-hwkey/pkg/curve"
)

var (
	// ErrOperationFailed is returned when a boundary operation reports failure
	// without asking for a larger buffer.
	ErrOperationFailed = errors.New("operation failed")

	// ErrInvalidHKDFLength is returned for --hkdf-len outside 1..255*32.
	ErrInvalidHKDFLength = errors.New("hkdf length must be between 1 and 8160")
)

func newCreateCmd(opts *Options) *cobra.Command {
	var outFile, pubFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a key and write its representation to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, closeFn, err := opts.openBoundary()
			if err != nil {
				return err
			}
			defer closeFn()

			public, private, err := b.Keypair()
			if err != nil {
				return err
			}
			if err := os.WriteFile(outFile, private, 0600); err != nil {
				return fmt.Errorf("write key: %w", err)
			}
			if pubFile != "" {
				if err := os.WriteFile(pubFile, public, 0644); err != nil {
					return fmt.Errorf("write public key: %w", err)
				}
			}
			provider := b.Provider()
			return opts.printer(cmd).PrintFields(
				Field{"backend", provider.Type().String()},
				Field{"hardware_backed", provider.HardwareBacked()},
				Field{"key_file", outFile},
				Field{"public_key", Hex(public)},
			)
		},
	}
	cmd.Flags().StringVar(&outFile, "out", "", "file to write the key representation to")
	cmd.Flags().StringVar(&pubFile, "pub", "", "file to write the public key to")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newPubkeyCmd(opts *Options) *cobra.Command {
	var keyFile string
	cmd := &cobra.Command{
		Use:   "pubkey",
		Short: "Print the uncompressed public key of a key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readFile(keyFile)
			if err != nil {
				return err
			}
			b, closeFn, err := opts.openBoundary()
			if err != nil {
				return err
			}
			defer closeFn()

			public, err := twoPhase(func(out []byte, length *int32) bool {
				return b.GetPublicKey(key, out, length)
			})
			if err != nil {
				return fmt.Errorf("get public key: %w", err)
			}
			return opts.printer(cmd).PrintFields(Field{"public_key", Hex(public)})
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "", "key representation file")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newAgreeCmd(opts *Options) *cobra.Command {
	var (
		keyFile, peerFile, hkdfInfo string
		hkdfLen                     int
	)
	cmd := &cobra.Command{
		Use:   "agree",
		Short: "Compute an ECDH shared secret with a peer public key",
		Long: `Compute the raw P-256 ECDH shared secret between a key and a peer public
key. With --hkdf-len the secret is expanded with HKDF-SHA256 and only the
derived bytes are printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("hkdf-len") && (hkdfLen < 1 || hkdfLen > 255*sha256.Size) {
				return ErrInvalidHKDFLength
			}
			key, err := readFile(keyFile)
			if err != nil {
				return err
			}
			peer, err := readPublicKey(peerFile)
			if err != nil {
				return err
			}
			b, closeFn, err := opts.openBoundary()
			if err != nil {
				return err
			}
			defer closeFn()

			secret, err := twoPhase(func(out []byte, length *int32) bool {
				return b.KeyAgreement(key, peer, out, length)
			})
			if err != nil {
				return fmt.Errorf("key agreement: %w", err)
			}
			defer clear(secret)

			if hkdfLen == 0 {
				return opts.printer(cmd).PrintFields(Field{"shared_secret", Hex(secret)})
			}
			derived := make([]byte, hkdfLen)
			if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), derived); err != nil {
				return fmt.Errorf("hkdf: %w", err)
			}
			return opts.printer(cmd).PrintFields(Field{"derived_key", Hex(derived)})
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "", "key representation file")
	cmd.Flags().StringVar(&peerFile, "peer", "", "peer public key file (raw or hex)")
	cmd.Flags().StringVar(&hkdfInfo, "hkdf-info", "", "HKDF info string")
	cmd.Flags().IntVar(&hkdfLen, "hkdf-len", 0, "derive this many bytes with HKDF-SHA256")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("peer")
	return cmd
}

// twoPhase asks op for the required size, then calls it again with a buffer
// of that size.
func twoPhase(op func(out []byte, length *int32) bool) ([]byte, error) {
	var length int32
	if op(nil, &length) {
		return []byte{}, nil
	}
	if length <= 0 {
		return nil, ErrOperationFailed
	}
	out := make([]byte, length)
	if !op(out, &length) {
		return nil, ErrOperationFailed
	}
	return out[:length], nil
}

func readFile(path string) ([]byte, error) {
	// #nosec G304 - path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// readPublicKey accepts a raw 65-byte point or its hex encoding.
func readPublicKey(path string) ([]byte, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == curve.PublicKeySize {
		return data, nil
	}
	decoded, err := hex.DecodeString(string(bytes.TrimSpace(data)))
	if err != nil {
		return nil, fmt.Errorf("%s: not a raw or hex encoded public key", path)
	}
	return decoded, nil
}
