// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"github.com/cockroachdb/errors"

	"github.com/sasdata/sas7bdat/internal/base"
	"github.com/sasdata/sas7bdat/internal/binfmt"
)

// Page kinds, after masking the orthogonal 0x8000 flag. META2 and the COMP
// class live outside the low mask and are tested as flags of their own.
const (
	pageKindMask      = 0x0F00
	pageKindMeta      = 0x0000
	pageKindData      = 0x0100
	pageKindMix       = 0x0200
	pageKindAMD       = 0x0400
	pageKindMeta2Flag = 0x4000
	pageKindCompClass = 0x9000

	// subheaderPointerOffset is the gap between the page bit offset and the
	// pointer table, part of the data-area alignment formula.
	subheaderPointerOffset = 8
)

// Subheader pointer compression codes.
const (
	ptrCompressionNone      = 0
	ptrCompressionTruncated = 1
	ptrCompressionRow       = 4
)

// Metadata subheader signatures, in their canonical 32-bit forms.
const (
	sigRowSize      = 0xF7F7F7F7
	sigColumnSize   = 0xF6F6F6F6
	sigCounts       = 0xFFFFFC00
	sigColumnText   = 0xFFFFFFFD
	sigColumnName   = 0xFFFFFFFF
	sigColumnAttrs  = 0xFFFFFFFC
	sigColumnFormat = 0xFFFFFBFE
	sigColumnList   = 0xFFFFFFFE
)

// isCompPage reports whether the raw kind word belongs to the COMP class
// (COMP and its table-bearing variant). COMP pages never carry metadata or
// rows.
func isCompPage(raw uint16) bool {
	return raw&pageKindCompClass == pageKindCompClass
}

// isMetaPage reports whether the page can carry metadata subheaders.
func isMetaPage(raw uint16) bool {
	if isCompPage(raw) {
		return false
	}
	base := raw & pageKindMask
	return base == pageKindMeta || base == pageKindMix || base == pageKindAMD ||
		raw&pageKindMeta2Flag != 0 || raw == 0
}

// hasRowData reports whether the page's data area holds plain rows.
func hasRowData(raw uint16) bool {
	base := raw & pageKindMask
	return base == pageKindData || base == pageKindMix
}

// isKnownPage reports whether the kind word matches any kind this package
// understands. Unknown kinds are skipped, once-logged, never an error.
func isKnownPage(raw uint16) bool {
	return isCompPage(raw) || isMetaPage(raw) || hasRowData(raw)
}

// pageKindName renders the raw kind word for diagnostics.
func pageKindName(raw uint16) string {
	if isCompPage(raw) {
		return "COMP"
	}
	if raw&pageKindMeta2Flag != 0 {
		return "META2"
	}
	switch raw & pageKindMask {
	case pageKindMeta:
		return "META"
	case pageKindData:
		return "DATA"
	case pageKindMix:
		return "MIX"
	case pageKindAMD:
		return "AMD"
	}
	return "UNKNOWN"
}

// pointerInfo is a decoded subheader pointer-table entry.
type pointerInfo struct {
	offset         int
	length         int
	compression    uint8
	compressedData bool
}

// parsePointer decodes a 12- or 24-byte pointer-table entry.
func parsePointer(e Endianness, is64 bool, b []byte) (pointerInfo, error) {
	var info pointerInfo
	if is64 {
		if len(b) < 18 {
			return info, base.SchemaMismatchf("sas7bdat: 64-bit subheader pointer too short: %d bytes", errors.Safe(len(b)))
		}
		info.offset = int(binfmt.Uint64(e, b[0:8]))
		info.length = int(binfmt.Uint64(e, b[8:16]))
		info.compression = b[16]
		info.compressedData = b[17] != 0
	} else {
		if len(b) < 10 {
			return info, base.SchemaMismatchf("sas7bdat: 32-bit subheader pointer too short: %d bytes", errors.Safe(len(b)))
		}
		info.offset = int(binfmt.Uint32(e, b[0:4]))
		info.length = int(binfmt.Uint32(e, b[4:8]))
		info.compression = b[8]
		info.compressedData = b[9] != 0
	}
	if info.offset < 0 || info.length < 0 {
		return info, base.SchemaMismatchf("sas7bdat: subheader pointer exceeds addressable range")
	}
	return info, nil
}

// readSignature reads a subheader's signature word. Big-endian 64-bit files
// sign-extend the 32-bit signatures; when the first word reads as all-ones
// the real signature sits in the second word.
func readSignature(e Endianness, is64 bool, data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	sig := binfmt.Uint32(e, data[0:4])
	if e == BigEndian && is64 && sig == 0xFFFFFFFF && len(data) >= 8 {
		sig = binfmt.Uint32(e, data[4:8])
	}
	return sig
}

// signatureRecognized reports whether sig names a metadata subheader.
func signatureRecognized(sig uint32) bool {
	switch sig {
	case sigRowSize, sigColumnSize, sigCounts, sigColumnText,
		sigColumnName, sigColumnAttrs, sigColumnFormat, sigColumnList:
		return true
	}
	return false
}

// pageHeader is the fixed prefix of every page.
type pageHeader struct {
	kind           uint16
	rowCount       int
	subheaderCount int
}

// parsePageHeader decodes the kind word, the page row count, and the
// subheader count. Their offsets trail the (layout-dependent) page header:
// kind at size-8, row count at size-6, subheader count at size-4.
func parsePageHeader(hdr *fileHeader, page []byte) pageHeader {
	s := hdr.pageHdrSize
	return pageHeader{
		kind:           binfmt.Uint16(hdr.endian, page[s-8:]),
		rowCount:       int(binfmt.Uint16(hdr.endian, page[s-6:])),
		subheaderCount: int(binfmt.Uint16(hdr.endian, page[s-4:])),
	}
}

// clampSubheaderCount bounds a declared pointer-table size to what the page
// can physically hold. Some production pages declare tables far larger than
// the page; their base kind is still honoured but the excess entries are
// ignored.
func clampSubheaderCount(hdr *fileHeader, pageLen, declared int) (count int, clamped bool) {
	maxEntries := (pageLen - hdr.pageHdrSize) / hdr.ptrSize
	if maxEntries < 0 {
		maxEntries = 0
	}
	if declared > maxEntries {
		return maxEntries, true
	}
	return declared, false
}

// mixDataStart computes the byte offset of the first data row on a MIX
// page. The row area begins after the pointer table, rounded up so that
// bitOffset + 8 + table size lands on an 8-byte boundary; a historical
// writer quirk leaves one extra 4-byte word of padding which is probed for
// and skipped.
func mixDataStart(hdr *fileHeader, page []byte, subheaderCount int, vendor Vendor) int {
	bitOffset := 16
	if hdr.is64 {
		bitOffset = 32
	}
	tableLen := subheaderCount * hdr.ptrSize
	start := hdr.pageHdrSize + tableLen
	alignBase := bitOffset + subheaderPointerOffset + tableLen
	if rem := alignBase % 8; rem != 0 {
		start += 8 - rem
	}
	if start%8 == 4 && start+4 <= len(page) {
		word := binfmt.Uint32(binfmt.Little, page[start:start+4])
		if word == 0 || word == 0x20202020 || vendor != VendorStatTransfer {
			start += 4
		}
	}
	return start
}

// dataStart computes the first-row offset for a plain DATA page.
func dataStart(hdr *fileHeader, subheaderCount int) int {
	bitOffset := 16
	if hdr.is64 {
		bitOffset = 32
	}
	tableLen := subheaderCount * hdr.ptrSize
	start := hdr.pageHdrSize + tableLen
	alignBase := bitOffset + subheaderPointerOffset + tableLen
	if rem := alignBase % 8; rem != 0 {
		start += 8 - rem
	}
	return start
}
