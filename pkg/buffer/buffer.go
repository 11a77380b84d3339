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

import "math"

// MaxLength is the largest result the 32-bit length field can describe.
const MaxLength = math.MaxInt32

// Output is a caller-owned region plus the in/out length that bounds it.
// The capacity is captured once, when the Output is created, and is never
// re-read from the length field.
type Output struct {
	region   []byte
	length   *int32
	capacity int
}

// NewOutput wraps a caller region and its in/out length. A negative length is
// treated as zero capacity. A nil region is accepted only with zero capacity,
// which is how a caller asks for the required size without allocating.
func NewOutput(region []byte, length *int32) (*Output, error) {
	if length == nil {
		return nil, ErrInvalidDescriptor
	}
	capacity := int(*length)
	if capacity < 0 {
		capacity = 0
	}
	if len(region) < capacity {
		return nil, ErrInvalidDescriptor
	}
	return &Output{
		region:   region[:capacity],
		length:   length,
		capacity: capacity,
	}, nil
}

// Fill copies result into the region if it fits. On success the length is set
// to len(result). If the result does not fit, the length is set to
// len(result), the region is left untouched and a *CapacityError is returned.
func (o *Output) Fill(result []byte) error {
	n := len(result)
	if n > MaxLength {
		return ErrResultTooLarge
	}
	if n > o.capacity {
		*o.length = int32(n)
		return &CapacityError{Capacity: o.capacity, Required: n}
	}
	copy(o.region, result)
	*o.length = int32(n)
	return nil
}
