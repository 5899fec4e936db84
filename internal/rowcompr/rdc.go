// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package rowcompr

import (
	"github.com/cockroachdb/errors"

	"github.com/sasdata/sas7bdat/internal/base"
)

// DecodeRDC decompresses an RDC row payload into dst. The stream is a
// sequence of 16-bit control prefixes, each guarding sixteen items: a zero
// bit passes one literal byte through, a one bit introduces a marker pair
// selecting a byte fill or a back-reference into the decoded prefix. Every
// back-reference is bounds-checked against [0, cursor); a reference outside
// that range would read bytes the stream never produced.
func DecodeRDC(src, dst []byte) error {
	out := 0
	i := 0
	for i+2 <= len(src) {
		prefix := uint16(src[i])<<8 | uint16(src[i+1])
		i += 2
		for bit := 0; bit < 16; bit++ {
			if prefix&(1<<(15-bit)) == 0 {
				if i >= len(src) {
					break
				}
				if out >= len(dst) {
					return base.InvalidCompressedf(
						"rdc: literal byte overruns row of %d", errors.Safe(len(dst)))
				}
				dst[out] = src[i]
				out++
				i++
				continue
			}

			if i+2 > len(src) {
				return base.InvalidCompressedf("rdc: marker pair exceeds input at %d", errors.Safe(i))
			}
			marker := src[i]
			next := src[i+1]
			i += 2

			var fillLen, copyLen, backOff int
			var fillByte byte
			switch {
			case marker <= 0x0F:
				fillLen = 3 + int(marker)
				fillByte = next
			case marker>>4 == 1:
				if i >= len(src) {
					return base.InvalidCompressedf("rdc: long fill length exceeds input")
				}
				fillLen = 19 + int(marker&0x0F) + int(next)*16
				fillByte = src[i]
				i++
			case marker>>4 == 2:
				if i >= len(src) {
					return base.InvalidCompressedf("rdc: long copy length exceeds input")
				}
				copyLen = 16 + int(src[i])
				i++
				backOff = 3 + int(marker&0x0F) + int(next)*16
			default:
				copyLen = int(marker >> 4)
				backOff = 3 + int(marker&0x0F) + int(next)*16
			}

			switch {
			case fillLen > 0:
				if out+fillLen > len(dst) {
					return base.InvalidCompressedf(
						"rdc: fill of %d bytes overruns row of %d at %d",
						errors.Safe(fillLen), errors.Safe(len(dst)), errors.Safe(out))
				}
				for j := out; j < out+fillLen; j++ {
					dst[j] = fillByte
				}
				out += fillLen
			case copyLen > 0:
				if backOff == 0 || out < backOff || copyLen > backOff || out+copyLen > len(dst) {
					return base.InvalidCompressedf(
						"rdc: back-reference offset=%d len=%d invalid at cursor %d (row %d)",
						errors.Safe(backOff), errors.Safe(copyLen), errors.Safe(out), errors.Safe(len(dst)))
				}
				start := out - backOff
				for j := 0; j < copyLen; j++ {
					dst[out+j] = dst[start+j]
				}
				out += copyLen
			}
		}
	}
	padRow(dst, out)
	return nil
}
