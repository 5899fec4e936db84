// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"io"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/sasdata/sas7bdat/internal/base"
	"github.com/sasdata/sas7bdat/internal/binfmt"
	"github.com/sasdata/sas7bdat/internal/charenc"
)

// Compression tags stored in the row-size subheader's text heap.
const (
	compressTagRLE = "SASYZCRL"
	compressTagRDC = "SASYZCR2"
)

// columnBuilder accumulates the per-column records as the subheaders are
// joined by position: the k-th name entry, attribute entry, and format
// subheader all describe column k.
type columnBuilder struct {
	nameRef        textRef
	labelRef       textRef
	formatRef      textRef
	offset         int64
	width          int
	typ            ColumnType
	hasAttrs       bool
	measure        Measure
	align          Alignment
	formatWidth    uint16
	formatDecimals uint16
}

// metaWalker consumes metadata subheaders across the leading pages of a
// file and freezes them into a Metadata.
type metaWalker struct {
	hdr  *fileHeader
	heap textHeap
	cols []columnBuilder

	namesSeen   int
	attrsSeen   int
	formatsSeen int

	columnCount     int64
	haveColumnCount bool

	rowLength   uint64
	totalRows   uint64
	mixRows     uint64
	haveRowInfo bool

	// Text references out of the row-size subheader; resolved at freeze
	// time since the text heap may not be populated when it is parsed.
	labelRef    textRef
	compressRef textRef

	columnList []int16

	// clampLogged keeps the subheader-count clamp to one log line per file.
	clampLogged bool
}

// walkMetadata loads pages in file order and feeds every metadata
// subheader to the walker, stopping at the first pure DATA page. MIX pages
// contribute their subheaders before the walk ends.
func walkMetadata(f io.ReaderAt, hdr *fileHeader, logger base.Logger) (*metaWalker, error) {
	w := &metaWalker{hdr: hdr}
	page := make([]byte, hdr.pageSize)
	for idx := uint64(0); idx < hdr.pageCount; idx++ {
		if err := readPage(f, hdr, idx, page); err != nil {
			return nil, err
		}
		ph := parsePageHeader(hdr, page)
		if isCompPage(ph.kind) {
			continue
		}
		if isMetaPage(ph.kind) {
			if err := w.consumePage(page, ph, logger); err != nil {
				return nil, err
			}
		}
		if ph.kind&pageKindMask == pageKindData {
			break
		}
	}
	return w, nil
}

// readPage reads exactly one page into buf. A short read past the declared
// page count's worth of bytes is an unexpected EOF.
func readPage(f io.ReaderAt, hdr *fileHeader, idx uint64, buf []byte) error {
	off := int64(hdr.headerLength) + int64(idx)*int64(hdr.pageSize)
	n, err := f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "sas7bdat: reading page %d", errors.Safe(idx))
	}
	if n < len(buf) {
		return errors.Wrapf(io.ErrUnexpectedEOF, "sas7bdat: page %d truncated at %d of %d bytes",
			errors.Safe(idx), errors.Safe(n), errors.Safe(len(buf)))
	}
	return nil
}

// consumePage walks one page's pointer table and dispatches each metadata
// subheader on its signature.
func (w *metaWalker) consumePage(page []byte, ph pageHeader, logger base.Logger) error {
	hdr := w.hdr
	count, clamped := clampSubheaderCount(hdr, len(page), ph.subheaderCount)
	if clamped && !w.clampLogged {
		w.clampLogged = true
		logger.Infof("sas7bdat: clamping subheader count from %d to %d on a %s page",
			ph.subheaderCount, count, pageKindName(ph.kind))
	}
	cursor := hdr.pageHdrSize
	for i := 0; i < count; i++ {
		ptr, err := parsePointer(hdr.endian, hdr.is64, page[cursor:cursor+hdr.ptrSize])
		if err != nil {
			return err
		}
		cursor += hdr.ptrSize
		if ptr.length == 0 || ptr.compression != ptrCompressionNone {
			continue
		}
		if ptr.offset+ptr.length > len(page) {
			if ptr.compressedData {
				continue
			}
			return base.SchemaMismatchf(
				"sas7bdat: subheader pointer %d..%d exceeds page of %d bytes",
				errors.Safe(ptr.offset), errors.Safe(ptr.offset+ptr.length), errors.Safe(len(page)))
		}
		data := page[ptr.offset : ptr.offset+ptr.length]
		if len(data) < hdr.sigSize {
			continue
		}
		if err := w.consumeSubheader(data); err != nil {
			return err
		}
	}
	return nil
}

func (w *metaWalker) consumeSubheader(data []byte) error {
	switch readSignature(w.hdr.endian, w.hdr.is64, data) {
	case sigColumnText:
		return w.parseColumnText(data)
	case sigColumnName:
		return w.parseColumnNames(data)
	case sigColumnAttrs:
		return w.parseColumnAttrs(data)
	case sigColumnFormat:
		return w.parseColumnFormat(data)
	case sigColumnList:
		return w.parseColumnList(data)
	case sigColumnSize:
		return w.parseColumnSize(data)
	case sigRowSize:
		return w.parseRowSize(data)
	default:
		// Counts subheaders and unknown signatures carry only hints.
		return nil
	}
}

func (w *metaWalker) ensureColumn(idx int) *columnBuilder {
	for len(w.cols) <= idx {
		w.cols = append(w.cols, columnBuilder{typ: TypeNumeric})
	}
	return &w.cols[idx]
}

// subheaderEntries derives the entry count of a repeating subheader from
// its length: a fixed preamble (signature, length word, padding) followed
// by fixed-width entries.
func (w *metaWalker) subheaderEntries(length, entryWidth int) int {
	preamble := 20
	if w.hdr.is64 {
		preamble = 28
	}
	if length < preamble {
		return 0
	}
	return (length - preamble) / entryWidth
}

// checkRemainder validates the length word every column subheader carries
// at its signature boundary: the subheader length minus four bytes and two
// signature widths (len-12 in 32-bit files, len-20 in 64-bit files).
func (w *metaWalker) checkRemainder(data []byte, what string) error {
	sigSize := w.hdr.sigSize
	if len(data) < sigSize+2 {
		return base.SchemaMismatchf("sas7bdat: %s subheader too short: %d bytes", what, errors.Safe(len(data)))
	}
	expected := len(data) - (4 + 2*sigSize)
	if expected < 0 || expected > 0xFFFF {
		return base.SchemaMismatchf("sas7bdat: %s subheader length invalid: %d bytes", what, errors.Safe(len(data)))
	}
	if got := binfmt.Uint16(w.hdr.endian, data[sigSize:]); int(got) != expected {
		return base.SchemaMismatchf("sas7bdat: %s subheader remainder %d does not match length %d",
			what, errors.Safe(got), errors.Safe(len(data)))
	}
	return nil
}

// parseColumnText appends a text blob to the heap. References index the
// blob from its length word onwards, so the signature is stripped but the
// length word kept.
func (w *metaWalker) parseColumnText(data []byte) error {
	if err := w.checkRemainder(data, "column text"); err != nil {
		return err
	}
	w.heap.push(data[w.hdr.sigSize:])
	return nil
}

func (w *metaWalker) parseColumnNames(data []byte) error {
	if err := w.checkRemainder(data, "column name"); err != nil {
		return err
	}
	const entryWidth = 8
	entries := w.subheaderEntries(len(data), entryWidth)
	if entries == 0 {
		return nil
	}
	cursor := w.hdr.sigSize + 8
	if cursor+entries*entryWidth > len(data) {
		return base.SchemaMismatchf("sas7bdat: column name subheader truncated")
	}
	for i := 0; i < entries; i++ {
		col := w.ensureColumn(w.namesSeen + i)
		col.nameRef = parseTextRef(w.hdr.endian, data[cursor:cursor+6])
		cursor += entryWidth
	}
	w.namesSeen += entries
	return nil
}

func (w *metaWalker) parseColumnAttrs(data []byte) error {
	if err := w.checkRemainder(data, "column attributes"); err != nil {
		return err
	}
	entryWidth := 12
	if w.hdr.is64 {
		entryWidth = 16
	}
	entries := w.subheaderEntries(len(data), entryWidth)
	if entries == 0 {
		return nil
	}
	cursor := w.hdr.sigSize + 8
	if cursor+entries*entryWidth > len(data) {
		return base.SchemaMismatchf("sas7bdat: column attributes subheader truncated")
	}
	for i := 0; i < entries; i++ {
		col := w.ensureColumn(w.attrsSeen + i)
		var width uint32
		var typePos, measurePos int
		if w.hdr.is64 {
			col.offset = int64(binfmt.Uint64(w.hdr.endian, data[cursor:cursor+8]))
			width = binfmt.Uint32(w.hdr.endian, data[cursor+8:cursor+12])
			typePos = cursor + 14
			measurePos = cursor + 13
		} else {
			col.offset = int64(binfmt.Uint32(w.hdr.endian, data[cursor:cursor+4]))
			width = binfmt.Uint32(w.hdr.endian, data[cursor+4:cursor+8])
			typePos = cursor + 10
			measurePos = cursor + 9
		}
		col.width = int(width)
		switch data[typePos] {
		case 0x01:
			col.typ = TypeNumeric
		case 0x02:
			col.typ = TypeCharacter
		default:
			return base.SchemaMismatchf("sas7bdat: column %d has unknown type code 0x%02x",
				errors.Safe(w.attrsSeen+i), errors.Safe(data[typePos]))
		}
		measureAlign := data[measurePos]
		switch measureAlign & 0x0F {
		case 1:
			col.measure = MeasureNominal
		case 2:
			col.measure = MeasureOrdinal
		case 3:
			col.measure = MeasureScale
		}
		switch (measureAlign >> 4) & 0x0F {
		case 1:
			col.align = AlignLeft
		case 2:
			col.align = AlignCenter
		case 3:
			col.align = AlignRight
		}
		col.hasAttrs = true
		cursor += entryWidth
	}
	w.attrsSeen += entries
	return nil
}

// parseColumnFormat handles the per-column format/label subheader. Each
// describes a single column, in column order.
func (w *metaWalker) parseColumnFormat(data []byte) error {
	minLen := 46
	if w.hdr.is64 {
		minLen = 58
	}
	if len(data) < minLen {
		return base.SchemaMismatchf("sas7bdat: column format subheader too short: %d bytes", errors.Safe(len(data)))
	}
	col := w.ensureColumn(w.formatsSeen)
	if w.hdr.is64 {
		col.formatWidth = binfmt.Uint16(w.hdr.endian, data[24:26])
		col.formatDecimals = binfmt.Uint16(w.hdr.endian, data[26:28])
		col.formatRef = parseTextRef(w.hdr.endian, data[46:52])
		col.labelRef = parseTextRef(w.hdr.endian, data[52:58])
	} else {
		col.formatRef = parseTextRef(w.hdr.endian, data[34:40])
		col.labelRef = parseTextRef(w.hdr.endian, data[40:46])
	}
	w.formatsSeen++
	return nil
}

// parseColumnList captures the optional display-ordering override. Only the
// 32-bit layout is decoded; the list is advisory and 64-bit files carry it
// in a layout that has not been mapped.
func (w *metaWalker) parseColumnList(data []byte) error {
	const headerLen = 30
	if w.hdr.is64 || w.hdr.sigSize != 4 {
		return nil
	}
	if len(data) < headerLen {
		return base.SchemaMismatchf("sas7bdat: column list subheader too short: %d bytes", errors.Safe(len(data)))
	}
	listLen := int(binfmt.Uint16(w.hdr.endian, data[18:20]))
	if listLen == 0 {
		return nil
	}
	if headerLen+listLen*2 > len(data) {
		return base.SchemaMismatchf("sas7bdat: column list subheader truncated")
	}
	values := make([]int16, 0, listLen)
	for i := 0; i < listLen; i++ {
		values = append(values, binfmt.Int16(w.hdr.endian, data[headerLen+i*2:]))
	}
	// A list split across pages arrives as fragments; keep the first and
	// extend with any longer continuation.
	if len(w.columnList) == 0 {
		w.columnList = values
	} else if len(w.columnList) < len(values) {
		w.columnList = append(w.columnList, values[len(w.columnList):]...)
	}
	return nil
}

func (w *metaWalker) parseColumnSize(data []byte) error {
	minLen := 8
	if w.hdr.is64 {
		minLen = 16
	}
	if len(data) < minLen {
		return base.SchemaMismatchf("sas7bdat: column size subheader too short: %d bytes", errors.Safe(len(data)))
	}
	var raw uint64
	if w.hdr.is64 {
		raw = binfmt.Uint64(w.hdr.endian, data[8:16])
	} else {
		raw = uint64(binfmt.Uint32(w.hdr.endian, data[4:8]))
	}
	w.columnCount = int64(raw)
	w.haveColumnCount = true
	return nil
}

func (w *metaWalker) parseRowSize(data []byte) error {
	minLen := 190
	if w.hdr.is64 {
		minLen = 250
	}
	if len(data) < minLen {
		return base.SchemaMismatchf("sas7bdat: row size subheader too short: %d bytes", errors.Safe(len(data)))
	}
	if w.hdr.is64 {
		w.rowLength = binfmt.Uint64(w.hdr.endian, data[40:48])
		w.totalRows = binfmt.Uint64(w.hdr.endian, data[48:56])
		w.mixRows = binfmt.Uint64(w.hdr.endian, data[120:128])
	} else {
		w.rowLength = uint64(binfmt.Uint32(w.hdr.endian, data[20:24]))
		w.totalRows = uint64(binfmt.Uint32(w.hdr.endian, data[24:28]))
		w.mixRows = uint64(binfmt.Uint32(w.hdr.endian, data[60:64]))
	}
	w.labelRef = parseTextRef(w.hdr.endian, data[len(data)-130:])
	w.compressRef = parseTextRef(w.hdr.endian, data[len(data)-118:])
	w.haveRowInfo = true
	return nil
}

// freeze joins the collected records into an immutable Metadata, validating
// every cross-record invariant.
func (w *metaWalker) freeze(dec charenc.Decoder) (*Metadata, error) {
	hdr := w.hdr
	if !w.haveRowInfo {
		return nil, base.SchemaMismatchf("sas7bdat: row size subheader missing from metadata")
	}
	if !w.haveColumnCount {
		return nil, base.SchemaMismatchf("sas7bdat: column count not found in metadata")
	}
	if w.columnCount <= 0 {
		return nil, base.SchemaMismatchf("sas7bdat: declared column count %d is not positive", errors.Safe(w.columnCount))
	}
	if w.rowLength == 0 || w.rowLength > uint64(hdr.pageSize) {
		return nil, base.SchemaMismatchf("sas7bdat: row length %d does not fit page size %d",
			errors.Safe(w.rowLength), errors.Safe(hdr.pageSize))
	}
	count := int(w.columnCount)
	if len(w.cols) < count || w.attrsSeen < count {
		return nil, base.SchemaMismatchf("sas7bdat: %d columns declared but only %d attribute records present",
			errors.Safe(count), errors.Safe(w.attrsSeen))
	}

	m := &Metadata{
		Name:            hdr.name,
		FileType:        hdr.fileType,
		Created:         hdr.created,
		Modified:        hdr.modified,
		Release:         hdr.release,
		Version:         hdr.version,
		Vendor:          hdr.vendor,
		Platform:        hdr.platform,
		Encoding:        hdr.encoding,
		Endianness:      hdr.endian,
		Is64Bit:         hdr.is64,
		PageSize:        int(hdr.pageSize),
		PageCount:       int64(hdr.pageCount),
		RowLength:       int(w.rowLength),
		RowCount:        int64(w.totalRows),
		MixPageRowCount: int64(w.mixRows),
		ColumnList:      w.columnList,
		Columns:         make([]Column, 0, count),
	}

	label, err := w.heap.resolve(w.labelRef, dec)
	if err != nil {
		return nil, err
	}
	m.Label = strings.TrimRight(label, " ")

	compressTag, err := w.heap.resolve(w.compressRef, dec)
	if err != nil {
		return nil, err
	}
	switch strings.TrimSpace(compressTag) {
	case compressTagRLE:
		m.Compression = CompressionRLE
	case compressTagRDC:
		m.Compression = CompressionRDC
	default:
		m.Compression = CompressionNone
	}

	var widthSum int64
	for i := 0; i < count; i++ {
		cb := &w.cols[i]
		if !cb.hasAttrs {
			return nil, base.SchemaMismatchf("sas7bdat: column %d has no attribute record", errors.Safe(i))
		}
		if cb.width <= 0 {
			return nil, base.SchemaMismatchf("sas7bdat: column %d has width %d", errors.Safe(i), errors.Safe(cb.width))
		}
		if cb.offset < 0 || cb.offset+int64(cb.width) > int64(w.rowLength) {
			return nil, base.SchemaMismatchf("sas7bdat: column %d occupies %d..%d outside row of %d bytes",
				errors.Safe(i), errors.Safe(cb.offset), errors.Safe(cb.offset+int64(cb.width)), errors.Safe(w.rowLength))
		}
		if cb.typ == TypeNumeric && (cb.width < 3 || cb.width > 8) {
			return nil, base.SchemaMismatchf("sas7bdat: numeric column %d has impossible width %d",
				errors.Safe(i), errors.Safe(cb.width))
		}
		widthSum += int64(cb.width)

		name, err := w.heap.resolve(cb.nameRef, dec)
		if err != nil {
			return nil, err
		}
		colLabel, err := w.heap.resolve(cb.labelRef, dec)
		if err != nil {
			return nil, err
		}
		format, err := w.heap.resolve(cb.formatRef, dec)
		if err != nil {
			return nil, err
		}

		col := Column{
			decoder:        dec,
			Index:          i,
			Name:           name,
			Label:          colLabel,
			Format:         format,
			FormatWidth:    cb.formatWidth,
			FormatDecimals: cb.formatDecimals,
			Type:           cb.typ,
			Offset:         int(cb.offset),
			Width:          cb.width,
			Measure:        cb.measure,
			Alignment:      cb.align,
		}
		if cb.typ == TypeCharacter {
			col.Kind = KindString
		} else {
			col.Kind = classifyFormat(format)
		}
		m.Columns = append(m.Columns, col)
	}
	if widthSum > int64(w.rowLength) {
		return nil, base.SchemaMismatchf("sas7bdat: declared column widths total %d, exceeding row length %d",
			errors.Safe(widthSum), errors.Safe(w.rowLength))
	}
	return m, nil
}
