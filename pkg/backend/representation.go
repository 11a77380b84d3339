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

package backend

import "fmt"

// Format tags identify which provider produced a representation.
const (
	FormatTPM2     byte = 'T'
	FormatPKCS11   byte = 'P'
	FormatAWSKMS   byte = 'A'
	FormatSoftware byte = 'S'
)

// RepresentationVersion is the current representation layout version.
const RepresentationVersion byte = 0x01

// headerSize is the format tag plus the version byte.
const headerSize = 2

// EncodeRepresentation prefixes a provider payload with its format tag and
// the layout version.
func EncodeRepresentation(format byte, payload []byte) []byte {
	out := make([]byte, headerSize+len(payload))
	out[0] = format
	out[1] = RepresentationVersion
	copy(out[headerSize:], payload)
	return out
}

// DecodeRepresentation checks the header of a representation and returns the
// provider payload. The payload aliases data.
func DecodeRepresentation(format byte, data []byte) ([]byte, error) {
	if len(data) <= headerSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrMalformedKey, len(data))
	}
	if data[0] != format {
		return nil, fmt.Errorf("%w: format tag 0x%02x, want 0x%02x", ErrMalformedKey, data[0], format)
	}
	if data[1] != RepresentationVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedKey, data[1])
	}
	return data[headerSize:], nil
}
