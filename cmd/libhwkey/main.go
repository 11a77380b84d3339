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

// Command libhwkey builds the key boundary as a C shared library:
//
//	go build -buildmode=c-shared -o libhwkey.so ./cmd/libhwkey
//
// The provider is read from the file named by HWKEY_CONFIG on first call.
package main

/*
#include <stdbool.h>
*/
import "C"

import "unsafe"

var lib = newShim(openFromEnvironment)

//export CreateKey
func CreateKey(buffer *C.char, length *C.int) C.bool {
	return C.bool(lib.createKey(unsafe.Pointer(buffer), (*int32)(unsafe.Pointer(length))))
}

//export GetPublicKey
func GetPublicKey(privateKey *C.char, privateKeyLength C.int, buffer *C.char, length *C.int) C.bool {
	return C.bool(lib.getPublicKey(unsafe.Pointer(privateKey), int32(privateKeyLength),
		unsafe.Pointer(buffer), (*int32)(unsafe.Pointer(length))))
}

//export KeyAgreement
func KeyAgreement(privateKey *C.char, privateKeyLength C.int,
	publicKey *C.char, publicKeyLength C.int,
	buffer *C.char, length *C.int) C.bool {

	return C.bool(lib.keyAgreement(unsafe.Pointer(privateKey), int32(privateKeyLength),
		unsafe.Pointer(publicKey), int32(publicKeyLength),
		unsafe.Pointer(buffer), (*int32)(unsafe.Pointer(length))))
}

func main() {}
