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

// Package tpm2 implements the key primitive provider on a TPM 2.0 device.
//
// Keys are ordinary (unrestricted) ECC NIST P-256 objects created under a
// storage root key. The representation handed back to callers is the
// TPM2B_PUBLIC and TPM2B_PRIVATE pair returned by TPM2_Create; the private
// blob is wrapped by the SRK and can only be loaded back into the TPM that
// produced it. Shared secrets are computed with TPM2_ECDH_ZGen.
//
// Supported transports are the kernel resource manager (/dev/tpmrm0), a
// Unix domain socket (paths ending in .sock), the embedded go-tpm-tools
// simulator, a SWTPM instance over TCP, or a caller supplied opener.
package tpm2
