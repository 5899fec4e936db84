// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package binfmt exposes endian-aware helpers for decoding fields of the
// SAS7BDAT on-disk format. SAS files declare their byte order in the header
// and every multi-byte field thereafter is read under that order, so the
// helpers take an explicit Endianness rather than baking one in.
package binfmt

import (
	"encoding/binary"
	"math"
)

// Endianness selects the byte order declared by a file's header.
type Endianness uint8

const (
	// Little denotes little-endian byte order (header flag 0x01).
	Little Endianness = iota
	// Big denotes big-endian byte order (header flag 0x00).
	Big
)

// String implements fmt.Stringer.
func (e Endianness) String() string {
	if e == Big {
		return "big"
	}
	return "little"
}

// Uint16 decodes b[:2] under e.
func Uint16(e Endianness, b []byte) uint16 {
	if e == Big {
		return binary.BigEndian.Uint16(b)
	}
	return binary.LittleEndian.Uint16(b)
}

// Int16 decodes b[:2] under e as a signed value.
func Int16(e Endianness, b []byte) int16 {
	return int16(Uint16(e, b))
}

// Uint32 decodes b[:4] under e.
func Uint32(e Endianness, b []byte) uint32 {
	if e == Big {
		return binary.BigEndian.Uint32(b)
	}
	return binary.LittleEndian.Uint32(b)
}

// Uint64 decodes b[:8] under e.
func Uint64(e Endianness, b []byte) uint64 {
	if e == Big {
		return binary.BigEndian.Uint64(b)
	}
	return binary.LittleEndian.Uint64(b)
}

// Float64 decodes b[:8] under e as an IEEE-754 double.
func Float64(e Endianness, b []byte) float64 {
	return math.Float64frombits(Uint64(e, b))
}

// NumericBits reconstructs the bit pattern of an 8-byte double from a
// partial-width numeric field of 3 to 8 bytes. SAS truncates doubles from
// the mantissa end, so the stored bytes are the most significant ones: a
// big-endian field is left-aligned and zero-padded on the right, while a
// little-endian field is reversed into the same layout.
func NumericBits(e Endianness, b []byte) uint64 {
	if len(b) == 8 {
		return Uint64(e, b)
	}
	var buf [8]byte
	if e == Big {
		copy(buf[:], b)
	} else {
		for i, j := 0, len(b)-1; j >= 0; i, j = i+1, j-1 {
			buf[i] = b[j]
		}
	}
	return binary.BigEndian.Uint64(buf[:])
}

// TrimPadding returns b with trailing ASCII spaces and NULs removed. The
// scan works backwards word-at-a-time before falling to a byte loop; SAS
// pads character fields heavily and most cells are entirely padding.
func TrimPadding(b []byte) []byte {
	end := len(b)
	for end >= 8 {
		w := binary.LittleEndian.Uint64(b[end-8 : end])
		if w&^spaceMask64 != 0 {
			break
		}
		end -= 8
	}
	for end > 0 {
		if c := b[end-1]; c != ' ' && c != 0 {
			break
		}
		end--
	}
	return b[:end]
}

// IsBlank reports whether b consists solely of ASCII spaces and NULs.
func IsBlank(b []byte) bool {
	return len(TrimPadding(b)) == 0
}

// spaceMask64 has the 0x20 bit of every byte set. A word made only of
// 0x20 and 0x00 bytes has no bits outside the mask.
const spaceMask64 = 0x2020202020202020
