// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package charenc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	require.Equal(t, "UTF-8", Lookup(20))
	require.Equal(t, "WINDOWS-1252", Lookup(62))
	require.Equal(t, "EUC-JP", Lookup(134))
	require.Equal(t, "ISO-8859-1", Lookup(29))
	// Unknown ids fall back to the default rather than failing: the
	// encoding only matters once a non-UTF-8 cell is seen.
	require.Equal(t, DefaultName, Lookup(255))
	require.False(t, Known(255))
	require.True(t, Known(0))
}

func TestDecodeUTF8Passthrough(t *testing.T) {
	dec, ok := ForName("WINDOWS-1252")
	require.True(t, ok)
	s, ok := dec.Decode([]byte("plain ascii"))
	require.True(t, ok)
	require.Equal(t, "plain ascii", s)

	s, ok = dec.Decode([]byte("caf\xc3\xa9")) // already UTF-8
	require.True(t, ok)
	require.Equal(t, "café", s)
}

func TestDecodeWindows1252(t *testing.T) {
	dec, ok := ForName("WINDOWS-1252")
	require.True(t, ok)
	s, ok := dec.Decode([]byte{'c', 'a', 'f', 0xE9}) // é in cp1252
	require.True(t, ok)
	require.Equal(t, "café", s)

	s, ok = dec.Decode([]byte{0x80}) // euro sign
	require.True(t, ok)
	require.Equal(t, "€", s)
}

func TestDecodeISO8859_5(t *testing.T) {
	dec, ok := ForName("ISO-8859-5")
	require.True(t, ok)
	s, ok := dec.Decode([]byte{0xBC, 0xB8, 0xC0}) // "МИР"
	require.True(t, ok)
	require.Equal(t, "МИР", s)
}

func TestDecodeUnmappedEncoding(t *testing.T) {
	dec, ok := ForName("MACTHAI")
	require.False(t, ok)
	// UTF-8 bytes still pass.
	s, decoded := dec.Decode([]byte("ascii"))
	require.True(t, decoded)
	require.Equal(t, "ascii", s)
	// Legacy bytes cannot be decoded.
	_, decoded = dec.Decode([]byte{0xFF, 0xFE})
	require.False(t, decoded)
}
