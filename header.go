// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"bytes"
	"io"
	"math"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sasdata/sas7bdat/internal/base"
	"github.com/sasdata/sas7bdat/internal/binfmt"
	"github.com/sasdata/sas7bdat/internal/charenc"
)

// Endianness is the byte order declared by a file's header.
type Endianness = binfmt.Endianness

// Endianness values.
const (
	LittleEndian = binfmt.Little
	BigEndian    = binfmt.Big
)

const (
	headerStartSize = 164
	headerReadSize  = 288

	headerMinSize = 1024
	pageMinSize   = 1024
	sizeLimit     = 1 << 24

	alignmentFlag = 0x33

	endianBig    = 0x00
	endianLittle = 0x01

	pageHeaderSize32 = 24
	pageHeaderSize64 = 40
	pointerSize32    = 12
	pointerSize64    = 24

	// sasEpochDays is the number of days from 1960-01-01 (the SAS epoch)
	// to 1970-01-01 (the Unix epoch).
	sasEpochDays = 3653
	// sasEpochSeconds is sasEpochDays expressed in seconds.
	sasEpochSeconds = sasEpochDays * 86400
)

// magic is the 32-byte sequence opening every SAS7BDAT file.
var magic = []byte{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xC2, 0xEA, 0x81, 0x60,
	0xB3, 0x14, 0x11, 0xCF, 0xBD, 0x92, 0x08, 0x00,
	0x09, 0xC7, 0x31, 0x8C, 0x18, 0x1F, 0x10, 0x11,
}

// catalogMagic is the companion SAS7BCAT catalog magic; it differs from the
// dataset magic in a single byte. Catalogs are recognised and rejected.
var catalogMagic = []byte{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xC2, 0xEA, 0x81, 0x63,
	0xB3, 0x14, 0x11, 0xCF, 0xBD, 0x92, 0x08, 0x00,
	0x09, 0xC7, 0x31, 0x8C, 0x18, 0x1F, 0x10, 0x11,
}

// Platform identifies the host family that wrote the file.
type Platform uint8

// Platform values.
const (
	PlatformUnknown Platform = iota
	PlatformUnix
	PlatformWindows
)

// String implements fmt.Stringer.
func (p Platform) String() string {
	switch p {
	case PlatformUnix:
		return "unix"
	case PlatformWindows:
		return "windows"
	default:
		return "unknown"
	}
}

// Vendor identifies the producer inferred from the release string.
type Vendor uint8

// Vendor values.
const (
	VendorSAS Vendor = iota
	VendorStatTransfer
)

// String implements fmt.Stringer.
func (v Vendor) String() string {
	if v == VendorStatTransfer {
		return "STAT/Transfer"
	}
	return "SAS"
}

// Version is the SAS release triple parsed from the header, e.g. 9.0401M3.
type Version struct {
	Major    uint16
	Minor    uint16
	Revision uint16
}

// fileHeader carries the decoded header fields plus the layout constants
// derived from the word-size flag.
type fileHeader struct {
	endian       Endianness
	is64         bool
	padAlign     int
	pageHdrSize  int
	ptrSize      int
	sigSize      int
	headerLength uint32
	pageSize     uint32
	pageCount    uint64

	name       string
	fileType   string
	platform   Platform
	encodingID uint8
	encoding   string
	created    time.Time
	modified   time.Time
	release    string
	version    Version
	vendor     Vendor
}

// parseHeader reads and validates the fixed-layout file header.
func parseHeader(f io.ReaderAt) (fileHeader, error) {
	var hdr fileHeader
	buf := make([]byte, headerReadSize)
	n, err := f.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return hdr, errors.Wrap(err, "sas7bdat: reading header")
	}
	if n < headerReadSize {
		return hdr, base.InvalidHeaderf("sas7bdat: file too short for header: %d bytes", errors.Safe(n))
	}

	if !bytes.Equal(buf[:32], magic) {
		if bytes.Equal(buf[:32], catalogMagic) {
			return hdr, base.InvalidHeaderf("sas7bdat: file is a SAS7BCAT catalog, not a dataset")
		}
		return hdr, base.InvalidHeaderf("sas7bdat: unrecognized magic number")
	}

	hdr.is64 = buf[32] == alignmentFlag
	hdr.padAlign = 0
	if buf[35] == alignmentFlag {
		hdr.padAlign = 4
	}
	switch buf[37] {
	case endianLittle:
		hdr.endian = binfmt.Little
	case endianBig:
		hdr.endian = binfmt.Big
	default:
		return hdr, base.InvalidHeaderf("sas7bdat: unsupported endian flag 0x%02x", errors.Safe(buf[37]))
	}
	switch buf[39] {
	case '1':
		hdr.platform = PlatformUnix
	case '2':
		hdr.platform = PlatformWindows
	default:
		hdr.platform = PlatformUnknown
	}
	hdr.encodingID = buf[70]
	hdr.encoding = charenc.Lookup(hdr.encodingID)
	hdr.fileType = trimmedString(buf[84:92])
	hdr.name = trimmedString(buf[92:156])

	pos := headerStartSize + hdr.padAlign
	created := binfmt.Float64(hdr.endian, buf[pos:])
	modified := binfmt.Float64(hdr.endian, buf[pos+8:])
	createdDiff := binfmt.Float64(hdr.endian, buf[pos+16:])
	modifiedDiff := binfmt.Float64(hdr.endian, buf[pos+24:])
	hdr.created = sasTimestamp(created, createdDiff)
	hdr.modified = sasTimestamp(modified, modifiedDiff)

	hdr.headerLength = binfmt.Uint32(hdr.endian, buf[pos+32:])
	hdr.pageSize = binfmt.Uint32(hdr.endian, buf[pos+36:])
	pos += 40
	if hdr.is64 {
		hdr.pageCount = binfmt.Uint64(hdr.endian, buf[pos:])
		pos += 8
	} else {
		hdr.pageCount = uint64(binfmt.Uint32(hdr.endian, buf[pos:]))
		pos += 4
	}
	pos += 8

	if hdr.headerLength < headerMinSize || hdr.headerLength > sizeLimit {
		return hdr, base.InvalidHeaderf("sas7bdat: header length %d outside expected range", errors.Safe(hdr.headerLength))
	}
	if hdr.pageSize < pageMinSize || hdr.pageSize > sizeLimit {
		return hdr, base.InvalidHeaderf("sas7bdat: page size %d outside expected range", errors.Safe(hdr.pageSize))
	}
	if hdr.pageCount == 0 || hdr.pageCount > sizeLimit {
		return hdr, base.InvalidHeaderf("sas7bdat: page count %d outside expected range", errors.Safe(hdr.pageCount))
	}

	hdr.release = trimmedString(buf[pos : pos+8])
	version, vendor, err := parseRelease(hdr.release)
	if err != nil {
		return hdr, err
	}
	hdr.version = version
	hdr.vendor = vendor

	if hdr.is64 {
		hdr.pageHdrSize = pageHeaderSize64
		hdr.ptrSize = pointerSize64
		hdr.sigSize = 8
	} else {
		hdr.pageHdrSize = pageHeaderSize32
		hdr.ptrSize = pointerSize32
		hdr.sigSize = 4
	}
	return hdr, nil
}

// parseRelease decodes a release string of the form "9.0401M3". STAT/Transfer
// writes major version 8 or 9 with a zero minor version and revision (such
// as "9.0000M0"); genuine SAS releases never do.
func parseRelease(release string) (Version, Vendor, error) {
	var v Version
	if len(release) < 8 || release[1] != '.' {
		return v, VendorSAS, base.InvalidHeaderf("sas7bdat: malformed release string %q", release)
	}
	switch c := release[0]; {
	case c >= '1' && c <= '9':
		v.Major = uint16(c - '0')
	case c == 'V':
		v.Major = 9
	default:
		return v, VendorSAS, base.InvalidHeaderf("sas7bdat: unsupported major version marker %q", release)
	}
	for _, c := range release[2:6] {
		if c < '0' || c > '9' {
			return v, VendorSAS, base.InvalidHeaderf("sas7bdat: malformed release string %q", release)
		}
		v.Minor = v.Minor*10 + uint16(c-'0')
	}
	if tag := release[6]; tag != 'M' && tag != 'J' {
		return v, VendorSAS, base.InvalidHeaderf("sas7bdat: unexpected revision tag in %q", release)
	}
	if c := release[7]; c >= '0' && c <= '9' {
		v.Revision = uint16(c - '0')
	} else {
		return v, VendorSAS, base.InvalidHeaderf("sas7bdat: malformed release string %q", release)
	}

	vendor := VendorSAS
	if (v.Major == 8 || v.Major == 9) && v.Minor == 0 && v.Revision == 0 {
		vendor = VendorStatTransfer
	}
	return v, vendor, nil
}

// sasTimestamp converts a SAS datetime (seconds since 1960-01-01) and its
// epoch-correction delta into wall-clock time. Non-finite inputs yield the
// zero time.
func sasTimestamp(seconds, diff float64) time.Time {
	v := seconds - diff
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec)-sasEpochSeconds, int64(frac*1e9)).UTC()
}

// trimmedString trims trailing NULs and spaces, then any leading ones.
func trimmedString(b []byte) string {
	return string(bytes.Trim(b, " \x00"))
}
