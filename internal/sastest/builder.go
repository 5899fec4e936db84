// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package sastest synthesises little-endian 32-bit SAS7BDAT files for
// tests: a header, one metadata page, and as many data pages as the added
// rows need. The emitted byte layout is written against the format
// definition independently of the decoder under test.
package sastest

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Compression tags understood by the builder.
const (
	CompressRLE = "SASYZCRL"
	CompressRDC = "SASYZCR2"
)

// Column describes one column of the synthetic file.
type Column struct {
	Name   string
	Label  string
	Format string
	Char   bool
	Width  int
}

// Missing is an AddRow cell holding a tagged missing numeric value. Tag
// '_' and 'A'..'Z' select the tagged variants; anything else the plain
// system missing.
type Missing struct {
	Tag byte
}

// Builder accumulates columns and rows and serialises them.
type Builder struct {
	// PageSize defaults to 4096.
	PageSize int
	// EncodingID is the header character-set id; defaults to 20 (UTF-8).
	EncodingID byte
	// Name is the dataset name; defaults to "TESTDATA".
	Name string
	// Label is the dataset label, stored via the row-size subheader.
	Label string
	// CompressTag, when set, marks the file compressed and encodes every
	// row through the matching scheme.
	CompressTag string
	// RowCountOverride, when >= 0, replaces the declared total row count.
	RowCountOverride int64
	// ColumnCountOverride, when >= 0, replaces the declared column count.
	ColumnCountOverride int64
	// PageRowCountOverride, when >= 0, replaces the per-page row count
	// word on every data page.
	PageRowCountOverride int
	// SubheaderOrder permutes the metadata subheaders on the meta page.
	// Indices refer to the default order; nil keeps it.
	SubheaderOrder []int

	Columns []Column
	rows    [][]byte
}

// NewBuilder returns a builder over the given columns.
func NewBuilder(columns ...Column) *Builder {
	return &Builder{
		PageSize:             4096,
		EncodingID:           20,
		Name:                 "TESTDATA",
		RowCountOverride:     -1,
		ColumnCountOverride:  -1,
		PageRowCountOverride: -1,
		Columns:              columns,
	}
}

// RowLength returns the byte length of one row.
func (b *Builder) RowLength() int {
	n := 0
	for _, c := range b.Columns {
		n += c.Width
	}
	return n
}

// NumRows returns the number of rows added so far.
func (b *Builder) NumRows() int { return len(b.rows) }

// AddRow appends one row. Cells are float64 (numeric), string (character),
// nil (missing of either type), or Missing (tagged numeric missing).
func (b *Builder) AddRow(cells ...interface{}) {
	if len(cells) != len(b.Columns) {
		panic(fmt.Sprintf("sastest: %d cells for %d columns", len(cells), len(b.Columns)))
	}
	row := make([]byte, b.RowLength())
	off := 0
	for i, c := range b.Columns {
		window := row[off : off+c.Width]
		switch v := cells[i].(type) {
		case nil:
			if c.Char {
				fill(window, ' ')
			} else {
				putPartialBits(window, missingBits(0))
			}
		case Missing:
			putPartialBits(window, missingBits(v.Tag))
		case string:
			fill(window, ' ')
			copy(window, v)
		case float64:
			putPartialBits(window, math.Float64bits(v))
		case int:
			putPartialBits(window, math.Float64bits(float64(v)))
		default:
			panic(fmt.Sprintf("sastest: unsupported cell %T", cells[i]))
		}
		off += c.Width
	}
	b.rows = append(b.rows, row)
}

// AddRawRow appends pre-encoded row bytes.
func (b *Builder) AddRawRow(row []byte) {
	if len(row) != b.RowLength() {
		panic("sastest: raw row has wrong length")
	}
	b.rows = append(b.rows, append([]byte(nil), row...))
}

func fill(b []byte, c byte) {
	for i := range b {
		b[i] = c
	}
}

// putPartialBits stores the top len(dst) bytes of a double's big-endian bit
// pattern in the file's little-endian order.
func putPartialBits(dst []byte, bits uint64) {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], bits)
	for i := 0; i < len(dst); i++ {
		dst[i] = be[len(dst)-1-i]
	}
}

// missingBits encodes a SAS missing double. The tag byte is stored
// complemented in bits 40..47 under an all-ones prefix.
func missingBits(tag byte) uint64 {
	var t byte
	switch {
	case tag == '_':
		t = 0
	case tag >= 'A' && tag <= 'Z':
		t = tag - 'A' + 2
	default:
		t = 1 // complements to 0xFE: the plain '.' encoding
	}
	return 0xFFFF<<48 | uint64(^t)<<40
}

const (
	headerLen       = 1024
	pageHeaderSize  = 24
	pointerSize     = 12
	rowSizeLen      = 480
	sasEpochSeconds = 3653 * 86400
)

var magic = []byte{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xC2, 0xEA, 0x81, 0x60,
	0xB3, 0x14, 0x11, 0xCF, 0xBD, 0x92, 0x08, 0x00,
	0x09, 0xC7, 0x31, 0x8C, 0x18, 0x1F, 0x10, 0x11,
}

// Build serialises the file.
func (b *Builder) Build() []byte {
	meta := b.buildMetaPage()
	var dataPages [][]byte
	if b.CompressTag != "" {
		dataPages = b.buildCompressedPages()
	} else {
		dataPages = b.buildDataPages()
	}

	pages := append([][]byte{meta}, dataPages...)
	out := make([]byte, headerLen+len(pages)*b.PageSize)
	b.writeHeader(out[:headerLen], len(pages))
	for i, p := range pages {
		copy(out[headerLen+i*b.PageSize:], p)
	}
	return out
}

func (b *Builder) writeHeader(h []byte, pageCount int) {
	copy(h, magic)
	h[32] = 0x22 // 32-bit layout
	h[35] = 0x22 // no alignment padding
	h[37] = 0x01 // little endian
	h[39] = '1'  // unix
	h[70] = b.EncodingID
	copy(h[84:92], "DATA    ")
	name := b.Name
	fill(h[92:156], ' ')
	copy(h[92:156], name)

	le := binary.LittleEndian
	// Creation/modification stamps: 2017-01-01 00:00:00 UTC in SAS seconds.
	stamp := float64(1483228800 + sasEpochSeconds)
	le.PutUint64(h[164:], math.Float64bits(stamp))
	le.PutUint64(h[172:], math.Float64bits(stamp))
	le.PutUint64(h[180:], math.Float64bits(0))
	le.PutUint64(h[188:], math.Float64bits(0))
	le.PutUint32(h[196:], headerLen)
	le.PutUint32(h[200:], uint32(b.PageSize))
	le.PutUint32(h[204:], uint32(pageCount))
	copy(h[216:224], "9.0401M3")
}

// subheader payloads, assembled in the default order: text, names, attrs,
// one format per column, column size, row size.
func (b *Builder) buildSubheaders() [][]byte {
	le := binary.LittleEndian

	// Text heap blob: remainder word, two pad bytes, then the strings.
	heap := []byte{0, 0, 0, 0}
	ref := func(s string) (off, length uint16) {
		if s == "" {
			return 0, 0
		}
		off = uint16(len(heap))
		heap = append(heap, s...)
		for len(heap)%4 != 0 {
			heap = append(heap, 0)
		}
		return off, uint16(len(s))
	}

	type refPair struct{ off, length uint16 }
	nameRefs := make([]refPair, len(b.Columns))
	labelRefs := make([]refPair, len(b.Columns))
	formatRefs := make([]refPair, len(b.Columns))
	for i, c := range b.Columns {
		nameRefs[i].off, nameRefs[i].length = ref(c.Name)
		labelRefs[i].off, labelRefs[i].length = ref(c.Label)
		formatRefs[i].off, formatRefs[i].length = ref(c.Format)
	}
	var compressRef, dsLabelRef refPair
	compressRef.off, compressRef.length = ref(b.CompressTag)
	dsLabelRef.off, dsLabelRef.length = ref(b.Label)

	text := make([]byte, 4+len(heap))
	le.PutUint32(text[0:], 0xFFFFFFFD)
	copy(text[4:], heap)
	le.PutUint16(text[4:], uint16(len(text)-12))

	n := len(b.Columns)
	names := make([]byte, 20+8*n)
	le.PutUint32(names[0:], 0xFFFFFFFF)
	le.PutUint16(names[4:], uint16(len(names)-12))
	for i, r := range nameRefs {
		base := 12 + i*8
		le.PutUint16(names[base:], 0) // blob index
		le.PutUint16(names[base+2:], r.off)
		le.PutUint16(names[base+4:], r.length)
	}

	attrs := make([]byte, 20+12*n)
	le.PutUint32(attrs[0:], 0xFFFFFFFC)
	le.PutUint16(attrs[4:], uint16(len(attrs)-12))
	off := 0
	for i, c := range b.Columns {
		base := 12 + i*12
		le.PutUint32(attrs[base:], uint32(off))
		le.PutUint32(attrs[base+4:], uint32(c.Width))
		if c.Char {
			attrs[base+10] = 0x02
		} else {
			attrs[base+10] = 0x01
		}
		off += c.Width
	}

	var formats [][]byte
	for i := range b.Columns {
		f := make([]byte, 46)
		le.PutUint32(f[0:], 0xFFFFFBFE)
		le.PutUint16(f[34:], 0) // blob index
		le.PutUint16(f[36:], formatRefs[i].off)
		le.PutUint16(f[38:], formatRefs[i].length)
		le.PutUint16(f[40:], 0)
		le.PutUint16(f[42:], labelRefs[i].off)
		le.PutUint16(f[44:], labelRefs[i].length)
		formats = append(formats, f)
	}

	colSize := make([]byte, 12)
	le.PutUint32(colSize[0:], 0xF6F6F6F6)
	count := int64(n)
	if b.ColumnCountOverride >= 0 {
		count = b.ColumnCountOverride
	}
	le.PutUint32(colSize[4:], uint32(count))

	rowSize := make([]byte, rowSizeLen)
	le.PutUint32(rowSize[0:], 0xF7F7F7F7)
	le.PutUint32(rowSize[20:], uint32(b.RowLength()))
	total := int64(len(b.rows))
	if b.RowCountOverride >= 0 {
		total = b.RowCountOverride
	}
	le.PutUint32(rowSize[24:], uint32(total))
	le.PutUint32(rowSize[60:], 0) // no MIX rows
	labelAt := rowSizeLen - 130
	le.PutUint16(rowSize[labelAt:], 0)
	le.PutUint16(rowSize[labelAt+2:], dsLabelRef.off)
	le.PutUint16(rowSize[labelAt+4:], dsLabelRef.length)
	compressAt := rowSizeLen - 118
	le.PutUint16(rowSize[compressAt:], 0)
	le.PutUint16(rowSize[compressAt+2:], compressRef.off)
	le.PutUint16(rowSize[compressAt+4:], compressRef.length)

	subheaders := [][]byte{text, names, attrs}
	subheaders = append(subheaders, formats...)
	subheaders = append(subheaders, colSize, rowSize)
	if b.SubheaderOrder != nil {
		reordered := make([][]byte, len(subheaders))
		for dst, src := range b.SubheaderOrder {
			reordered[dst] = subheaders[src]
		}
		subheaders = reordered
	}
	return subheaders
}

func (b *Builder) buildMetaPage() []byte {
	le := binary.LittleEndian
	page := make([]byte, b.PageSize)
	subheaders := b.buildSubheaders()

	le.PutUint16(page[16:], 0x0000) // META
	le.PutUint16(page[18:], 0)
	le.PutUint16(page[20:], uint16(len(subheaders)))

	cursor := b.PageSize
	ptr := pageHeaderSize
	for _, sh := range subheaders {
		cursor -= len(sh)
		if cursor < ptr+pointerSize {
			panic("sastest: metadata subheaders exceed page")
		}
		copy(page[cursor:], sh)
		le.PutUint32(page[ptr:], uint32(cursor))
		le.PutUint32(page[ptr+4:], uint32(len(sh)))
		page[ptr+8] = 0 // uncompressed
		page[ptr+9] = 0 // metadata
		ptr += pointerSize
	}
	return page
}

func (b *Builder) buildDataPages() [][]byte {
	le := binary.LittleEndian
	rl := b.RowLength()
	perPage := (b.PageSize - pageHeaderSize) / rl
	if perPage == 0 {
		panic("sastest: row longer than page")
	}
	var pages [][]byte
	for start := 0; start < len(b.rows); start += perPage {
		end := start + perPage
		if end > len(b.rows) {
			end = len(b.rows)
		}
		page := make([]byte, b.PageSize)
		le.PutUint16(page[16:], 0x0100) // DATA
		rowCount := end - start
		if b.PageRowCountOverride >= 0 {
			rowCount = b.PageRowCountOverride
		}
		le.PutUint16(page[18:], uint16(rowCount))
		le.PutUint16(page[20:], 0)
		for i, row := range b.rows[start:end] {
			copy(page[pageHeaderSize+i*rl:], row)
		}
		pages = append(pages, page)
	}
	return pages
}

// buildCompressedPages stores each row as a compressed pointer entry on
// META-kind pages, the layout SAS uses for RLE/RDC files.
func (b *Builder) buildCompressedPages() [][]byte {
	le := binary.LittleEndian
	var pages [][]byte

	var page []byte
	var ptr, cursor, rows int
	flush := func() {
		if page != nil && rows > 0 {
			le.PutUint16(page[18:], uint16(rows))
			le.PutUint16(page[20:], uint16(rows))
			pages = append(pages, page)
		}
		page = nil
	}
	open := func() {
		page = make([]byte, b.PageSize)
		le.PutUint16(page[16:], 0x0000)
		ptr = pageHeaderSize
		cursor = b.PageSize
		rows = 0
	}

	for _, row := range b.rows {
		var payload []byte
		switch b.CompressTag {
		case CompressRLE:
			payload = EncodeRLE(row)
		case CompressRDC:
			payload = EncodeRDC(row)
		default:
			panic("sastest: unknown compression tag " + b.CompressTag)
		}
		if page == nil || cursor-len(payload) < ptr+pointerSize {
			flush()
			open()
			if cursor-len(payload) < ptr+pointerSize {
				panic("sastest: compressed row exceeds page")
			}
		}
		cursor -= len(payload)
		copy(page[cursor:], payload)
		le.PutUint32(page[ptr:], uint32(cursor))
		le.PutUint32(page[ptr+4:], uint32(len(payload)))
		page[ptr+8] = 4 // compressed row
		page[ptr+9] = 1 // data
		ptr += pointerSize
		rows++
	}
	flush()
	return pages
}

// EncodeRLE emits a valid RLE stream of short literal copies that decodes
// back to row.
func EncodeRLE(row []byte) []byte {
	var out []byte
	for len(row) > 0 {
		n := len(row)
		if n > 16 {
			n = 16
		}
		out = append(out, 0x80|byte(n-1))
		out = append(out, row[:n]...)
		row = row[n:]
	}
	return out
}

// EncodeRDC emits a valid RDC stream of literal runs that decodes back to
// row: an all-zero control prefix passes sixteen bytes through verbatim.
func EncodeRDC(row []byte) []byte {
	var out []byte
	for len(row) > 0 {
		n := len(row)
		if n > 16 {
			n = 16
		}
		out = append(out, 0x00, 0x00)
		out = append(out, row[:n]...)
		row = row[n:]
	}
	return out
}
