// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package rowcompr

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/sasdata/sas7bdat/internal/base"
)

func decodeRLE(t *testing.T, src []byte, rowLength int) []byte {
	t.Helper()
	dst := make([]byte, rowLength)
	require.NoError(t, DecodeRLE(src, dst))
	return dst
}

func TestRLELiteralCopies(t *testing.T) {
	// Command 0x8: nibble+1 literal bytes.
	got := decodeRLE(t, []byte{0x83, 'a', 'b', 'c', 'd'}, 4)
	require.Equal(t, []byte("abcd"), got)

	// Command 0x9: nibble+17 literal bytes.
	lit := bytes.Repeat([]byte{'x'}, 17)
	got = decodeRLE(t, append([]byte{0x90}, lit...), 17)
	require.Equal(t, lit, got)

	// Command 0xA: nibble+33, 0xB: nibble+49.
	lit = bytes.Repeat([]byte{'y'}, 33)
	got = decodeRLE(t, append([]byte{0xA0}, lit...), 33)
	require.Equal(t, lit, got)
	lit = bytes.Repeat([]byte{'z'}, 49)
	got = decodeRLE(t, append([]byte{0xB0}, lit...), 49)
	require.Equal(t, lit, got)

	// Command 0x2: nibble+96.
	lit = bytes.Repeat([]byte{'q'}, 96)
	got = decodeRLE(t, append([]byte{0x20}, lit...), 96)
	require.Equal(t, lit, got)
}

func TestRLELongLiteralCopies(t *testing.T) {
	// Command 0x0: next byte B, length n*256 + B + 64.
	lit := bytes.Repeat([]byte{'L'}, 256+10+64)
	got := decodeRLE(t, append([]byte{0x01, 10}, lit...), len(lit))
	require.Equal(t, lit, got)

	// Command 0x1 adds 4096.
	lit = bytes.Repeat([]byte{'M'}, 4096+64+5)
	got = decodeRLE(t, append([]byte{0x10, 5}, lit...), len(lit))
	require.Equal(t, lit, got)
}

func TestRLEShortFills(t *testing.T) {
	// 0xC: next byte repeated nibble+3 times.
	require.Equal(t, bytes.Repeat([]byte{0x7E}, 5), decodeRLE(t, []byte{0xC2, 0x7E}, 5))
	// 0xD: '@' repeated nibble+2.
	require.Equal(t, bytes.Repeat([]byte{'@'}, 6), decodeRLE(t, []byte{0xD4}, 6))
	// 0xE: ' ' repeated nibble+2.
	require.Equal(t, bytes.Repeat([]byte{' '}, 2), decodeRLE(t, []byte{0xE0}, 2))
	// 0xF: NUL repeated nibble+2.
	require.Equal(t, make([]byte, 17), decodeRLE(t, []byte{0xFF}, 17))
}

func TestRLELongFills(t *testing.T) {
	// 0x4: byte fill, length next+18+nibble*256.
	want := bytes.Repeat([]byte{0xAB}, 18+7)
	require.Equal(t, want, decodeRLE(t, []byte{0x40, 7, 0xAB}, len(want)))
	// 0x5: '@' fill, length next+17.
	want = bytes.Repeat([]byte{'@'}, 17+3)
	require.Equal(t, want, decodeRLE(t, []byte{0x50, 3}, len(want)))
	// 0x6: space fill.
	want = bytes.Repeat([]byte{' '}, 17)
	require.Equal(t, want, decodeRLE(t, []byte{0x60, 0}, len(want)))
	// 0x7: NUL fill.
	want = make([]byte, 17+2)
	require.Equal(t, want, decodeRLE(t, []byte{0x70, 2}, len(want)))
	// A nibble contributes 256 per unit.
	want = bytes.Repeat([]byte{' '}, 2*256+17+1)
	require.Equal(t, want, decodeRLE(t, []byte{0x62, 1}, len(want)))
}

func TestRLECommand3IsNoOp(t *testing.T) {
	got := decodeRLE(t, []byte{0x3F, 0x82, 'h', 'i', 'j'}, 3)
	require.Equal(t, []byte("hij"), got)
}

// A short stream pads the row tail with spaces: SAS drops trailing blank
// cells from the compressed form.
func TestRLEShortOutputPadsWithSpaces(t *testing.T) {
	got := decodeRLE(t, []byte{0x81, 'o', 'k'}, 8)
	require.Equal(t, []byte("ok      "), got)
}

func TestRLEErrors(t *testing.T) {
	dst := make([]byte, 4)

	// Literal copy overruns the row.
	err := DecodeRLE([]byte{0x87, 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h'}, dst)
	require.True(t, errors.Is(err, base.ErrInvalidCompressed))

	// Literal copy exceeds the input.
	err = DecodeRLE([]byte{0x83, 'a'}, dst)
	require.True(t, errors.Is(err, base.ErrInvalidCompressed))

	// Argument byte missing.
	err = DecodeRLE([]byte{0x40}, dst)
	require.True(t, errors.Is(err, base.ErrInvalidCompressed))

	// Fill overruns the row.
	err = DecodeRLE([]byte{0xFF}, dst)
	require.True(t, errors.Is(err, base.ErrInvalidCompressed))
}

// Random streams must never panic or over-read; they either decode with a
// space-padded tail or fail with a typed error.
func TestRLERandomStreamsNeverPanic(t *testing.T) {
	rng := rand.New(rand.NewPCG(0xC0FFEE, 7))
	dst := make([]byte, 64)
	for i := 0; i < 20000; i++ {
		src := make([]byte, rng.IntN(48))
		for j := range src {
			src[j] = byte(rng.Uint32())
		}
		if err := DecodeRLE(src, dst); err != nil {
			require.True(t, errors.Is(err, base.ErrInvalidCompressed))
		}
	}
}
