// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"github.com/cockroachdb/errors"

	"github.com/sasdata/sas7bdat/internal/base"
	"github.com/sasdata/sas7bdat/internal/binfmt"
	"github.com/sasdata/sas7bdat/internal/charenc"
)

// textRef locates a string within the text heap: a blob index plus a byte
// window. Column builders hold these references during the metadata walk;
// freezing resolves them into the strings stored on each Column.
type textRef struct {
	index  uint16
	offset uint16
	length uint16
}

func (t textRef) isEmpty() bool { return t.length == 0 }

// parseTextRef decodes the 6-byte on-disk form of a text reference.
func parseTextRef(e Endianness, b []byte) textRef {
	return textRef{
		index:  binfmt.Uint16(e, b[0:2]),
		offset: binfmt.Uint16(e, b[2:4]),
		length: binfmt.Uint16(e, b[4:6]),
	}
}

// textHeap accumulates the column-text subheader blobs, in file order. The
// blob index of a textRef counts these in order of appearance.
type textHeap struct {
	blobs [][]byte
}

func (h *textHeap) push(blob []byte) {
	owned := make([]byte, len(blob))
	copy(owned, blob)
	h.blobs = append(h.blobs, owned)
}

// resolve returns the string a reference points at, decoded through dec.
// An empty reference resolves to "". References outside the heap are a
// schema mismatch; undecodable bytes are an encoding error.
func (h *textHeap) resolve(ref textRef, dec charenc.Decoder) (string, error) {
	if ref.isEmpty() {
		return "", nil
	}
	if int(ref.index) >= len(h.blobs) {
		return "", base.SchemaMismatchf(
			"sas7bdat: text reference blob %d outside heap of %d",
			errors.Safe(ref.index), errors.Safe(len(h.blobs)))
	}
	blob := h.blobs[ref.index]
	end := int(ref.offset) + int(ref.length)
	if end > len(blob) {
		return "", base.SchemaMismatchf(
			"sas7bdat: text reference %d..%d exceeds blob of %d bytes",
			errors.Safe(ref.offset), errors.Safe(end), errors.Safe(len(blob)))
	}
	raw := binfmt.TrimPadding(blob[ref.offset:end])
	s, ok := dec.Decode(raw)
	if !ok {
		return "", base.UnsupportedEncodingf(
			"sas7bdat: column text is not valid UTF-8 and encoding %s has no decoder", dec.Name())
	}
	return s, nil
}
