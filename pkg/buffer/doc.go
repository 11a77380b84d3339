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

// Package buffer implements the sizing contract used to hand variable-length
// results to callers that own the destination memory.
//
// A caller passes a writable region together with an in/out length. On entry
// the length holds the capacity of the region. On return it holds either the
// number of bytes written (success) or the number of bytes required (failure
// due to insufficient capacity). Any other failure leaves the length exactly
// as the caller set it, so callers can tell "retry with a larger buffer" apart
// from "the request itself is invalid".
//
// Writes are all-or-nothing: a failed Fill never touches the region.
//
// Example:
//
//	var length int32
//	out, err := buffer.NewOutput(nil, &length)
//	if err != nil {
//	    return err
//	}
//	if err := out.Fill(result); errors.Is(err, buffer.ErrInsufficientCapacity) {
//	    // length now holds len(result)
//	}
package buffer
