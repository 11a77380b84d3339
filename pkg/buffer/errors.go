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

package buffer

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCapacity is returned when the caller's region is smaller
	// than the result. The in/out length has been set to the required size.
	ErrInsufficientCapacity = errors.New("buffer: insufficient capacity")

	// ErrInvalidDescriptor is returned when the output descriptor itself is
	// unusable: a nil length, or a nil or short region with a non-zero capacity.
	ErrInvalidDescriptor = errors.New("buffer: invalid output descriptor")

	// ErrResultTooLarge is returned when a result cannot be described by a
	// 32-bit length.
	ErrResultTooLarge = errors.New("buffer: result exceeds maximum length")
)

// CapacityError reports the capacity observed at call entry and the size the
// caller must provide to succeed.
type CapacityError struct {
	Capacity int
	Required int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: have %d bytes, need %d", ErrInsufficientCapacity, e.Capacity, e.Required)
}

// Unwrap allows errors.Is(err, ErrInsufficientCapacity).
func (e *CapacityError) Unwrap() error {
	return ErrInsufficientCapacity
}

// RequiredSize returns the size reported by a capacity failure, or 0 if err
// is not a capacity failure.
func RequiredSize(err error) int {
	var capErr *CapacityError
	if errors.As(err, &capErr) {
		return capErr.Required
	}
	return 0
}
