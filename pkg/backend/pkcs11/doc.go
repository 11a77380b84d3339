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

// Package pkcs11 implements the key primitive provider on PKCS#11 hardware
// security modules.
//
// Key pairs are generated on the token with CKM_EC_KEY_PAIR_GEN as sensitive,
// non-extractable token objects tagged with a random 16-byte CKA_ID. The
// representation handed back to callers is that identifier; the private key
// never leaves the token. Shared secrets are derived with CKM_ECDH1_DERIVE
// (KDF CKD_NULL) into a session object that is read and destroyed.
//
// # Usage Example
//
//	provider, err := pkcs11.NewProvider(&pkcs11.Config{
//		Library:    "/usr/lib/softhsm/libsofthsm2.so",
//		TokenLabel: "hwkey",
//		PIN:        "1234",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer provider.Close()
//
// The package requires cgo and is only built with the pkcs11 build tag.
package pkcs11
