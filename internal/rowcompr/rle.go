// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package rowcompr implements the two proprietary row-payload compression
// schemes found in SAS7BDAT files: the run-length scheme tagged SASYZCRL
// (RLE) and the Ross Data Compression variant tagged SASYZCR2 (RDC). Both
// decoders write into a caller-provided buffer whose length is the row
// length; a row that decodes short is padded with ASCII spaces, while any
// overrun or malformed stream is an error.
package rowcompr

import (
	"github.com/cockroachdb/errors"

	"github.com/sasdata/sas7bdat/internal/base"
)

// rleArgBytes gives, per command nibble, how many argument bytes follow the
// control byte before any literal payload.
var rleArgBytes = [16]int{1, 1, 0, 0, 2, 1, 1, 1, 0, 0, 0, 0, 1, 0, 0, 0}

// DecodeRLE decompresses an RLE row payload into dst. On success dst holds
// exactly len(dst) decoded-or-padded bytes.
func DecodeRLE(src, dst []byte) error {
	out := 0
	for i := 0; i < len(src); {
		control := src[i]
		i++
		cmd := int(control >> 4)
		nib := int(control & 0x0F)
		if i+rleArgBytes[cmd] > len(src) {
			return base.InvalidCompressedf(
				"rle: command 0x%X at %d needs %d argument bytes, %d remain",
				errors.Safe(cmd), errors.Safe(i-1), errors.Safe(rleArgBytes[cmd]), errors.Safe(len(src)-i))
		}

		var copyLen, fillLen int
		var fillByte byte
		switch cmd {
		case 0x0:
			copyLen = int(src[i]) + 64 + nib*256
			i++
		case 0x1:
			copyLen = int(src[i]) + 64 + nib*256 + 4096
			i++
		case 0x2:
			copyLen = nib + 96
		case 0x3:
			// No payload. Observed in the wild as a filler command.
		case 0x4:
			fillLen = int(src[i]) + 18 + nib*256
			fillByte = src[i+1]
			i += 2
		case 0x5:
			fillLen = int(src[i]) + 17 + nib*256
			fillByte = '@'
			i++
		case 0x6:
			fillLen = int(src[i]) + 17 + nib*256
			fillByte = ' '
			i++
		case 0x7:
			fillLen = int(src[i]) + 17 + nib*256
			fillByte = 0x00
			i++
		case 0x8:
			copyLen = nib + 1
		case 0x9:
			copyLen = nib + 17
		case 0xA:
			copyLen = nib + 33
		case 0xB:
			copyLen = nib + 49
		case 0xC:
			fillLen = nib + 3
			fillByte = src[i]
			i++
		case 0xD:
			fillLen = nib + 2
			fillByte = '@'
		case 0xE:
			fillLen = nib + 2
			fillByte = ' '
		case 0xF:
			fillLen = nib + 2
			fillByte = 0x00
		}

		if copyLen > 0 {
			if out+copyLen > len(dst) {
				return base.InvalidCompressedf(
					"rle: literal copy of %d bytes overruns row of %d at %d",
					errors.Safe(copyLen), errors.Safe(len(dst)), errors.Safe(out))
			}
			if i+copyLen > len(src) {
				return base.InvalidCompressedf(
					"rle: literal copy of %d bytes exceeds input, %d remain",
					errors.Safe(copyLen), errors.Safe(len(src)-i))
			}
			copy(dst[out:out+copyLen], src[i:i+copyLen])
			i += copyLen
			out += copyLen
		}
		if fillLen > 0 {
			if out+fillLen > len(dst) {
				return base.InvalidCompressedf(
					"rle: fill of %d bytes overruns row of %d at %d",
					errors.Safe(fillLen), errors.Safe(len(dst)), errors.Safe(out))
			}
			for j := out; j < out+fillLen; j++ {
				dst[j] = fillByte
			}
			out += fillLen
		}
	}
	padRow(dst, out)
	return nil
}

// padRow space-fills the undecoded tail of a row. Rows whose trailing cells
// are all blank are stored short by the writer.
func padRow(dst []byte, out int) {
	for i := out; i < len(dst); i++ {
		dst[i] = ' '
	}
}
