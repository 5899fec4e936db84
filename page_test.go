// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sasdata/sas7bdat/internal/binfmt"
)

func TestPageClassification(t *testing.T) {
	// META, DATA, MIX, AMD carry their kind in the low mask.
	require.True(t, isMetaPage(0x0000))
	require.True(t, isMetaPage(0x0200))
	require.True(t, isMetaPage(0x0400))
	require.False(t, isMetaPage(0x0100))
	require.True(t, hasRowData(0x0100))
	require.True(t, hasRowData(0x0200))
	require.False(t, hasRowData(0x0000))

	// META2 is a flag outside the mask.
	require.True(t, isMetaPage(0x4000))

	// The 0x8000 high bit is orthogonal: mask it, never treat it as a kind.
	require.True(t, isMetaPage(0x8000))
	require.True(t, hasRowData(0x8100))
	require.True(t, isMetaPage(0x8200))

	// COMP-class pages are never metadata or data.
	require.True(t, isCompPage(0x9000))
	require.True(t, isCompPage(0x9C00))
	require.False(t, isMetaPage(0x9000))
	require.False(t, hasRowData(0x9000))

	require.False(t, isKnownPage(0x0700))
	require.Equal(t, "COMP", pageKindName(0x9000))
	require.Equal(t, "DATA", pageKindName(0x8100))
	require.Equal(t, "META2", pageKindName(0x4000))
	require.Equal(t, "UNKNOWN", pageKindName(0x0700))
}

func TestParsePointer32(t *testing.T) {
	b := []byte{
		0x10, 0x00, 0x00, 0x00, // offset 16
		0x40, 0x00, 0x00, 0x00, // length 64
		0x04, // compression: row
		0x01, // compressed data
		0x00, 0x00,
	}
	info, err := parsePointer(binfmt.Little, false, b)
	require.NoError(t, err)
	require.Equal(t, 16, info.offset)
	require.Equal(t, 64, info.length)
	require.Equal(t, uint8(4), info.compression)
	require.True(t, info.compressedData)

	_, err = parsePointer(binfmt.Little, false, b[:8])
	require.Error(t, err)
}

func TestParsePointer64(t *testing.T) {
	b := make([]byte, 24)
	b[7] = 0x01  // offset: big-endian u64 = 1
	b[15] = 0x20 // length: big-endian u64 = 32
	info, err := parsePointer(binfmt.Big, true, b)
	require.NoError(t, err)
	require.Equal(t, 1, info.offset)
	require.Equal(t, 0x20, info.length)
	require.Equal(t, uint8(0), info.compression)
	require.False(t, info.compressedData)
}

func TestReadSignatureBigEndian64(t *testing.T) {
	// Big-endian 64-bit files sign-extend the signature; an all-ones first
	// word defers to the second.
	data := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFB, 0xFE}
	require.Equal(t, uint32(sigColumnFormat), readSignature(binfmt.Big, true, data))

	// Without the 64-bit layout, the first word stands.
	require.Equal(t, uint32(sigColumnName), readSignature(binfmt.Big, false, data))

	// Little-endian reads the first word directly.
	le := []byte{0xF7, 0xF7, 0xF7, 0xF7}
	require.Equal(t, uint32(sigRowSize), readSignature(binfmt.Little, false, le))

	require.Equal(t, uint32(0), readSignature(binfmt.Little, false, le[:2]))
	require.True(t, signatureRecognized(sigCounts))
	require.False(t, signatureRecognized(0xDEADBEEF))
}

func TestDataStartAlignment(t *testing.T) {
	hdr32 := &fileHeader{pageHdrSize: 24, ptrSize: 12}
	require.Equal(t, 24, dataStart(hdr32, 0))
	// 24 + 12 = 36 rounds to 40.
	require.Equal(t, 40, dataStart(hdr32, 1))
	// 24 + 24 = 48 is already aligned.
	require.Equal(t, 48, dataStart(hdr32, 2))

	hdr64 := &fileHeader{is64: true, pageHdrSize: 40, ptrSize: 24}
	require.Equal(t, 40, dataStart(hdr64, 0))
	require.Equal(t, 64, dataStart(hdr64, 1))
}

func TestClampSubheaderCount(t *testing.T) {
	hdr := &fileHeader{pageHdrSize: 24, ptrSize: 12}
	count, clamped := clampSubheaderCount(hdr, 4096, 10)
	require.Equal(t, 10, count)
	require.False(t, clamped)

	// The 0x0CC8-style oversized table is cut to what the page holds.
	count, clamped = clampSubheaderCount(hdr, 4096, 0x0CC8)
	require.Equal(t, (4096-24)/12, count)
	require.True(t, clamped)
}
