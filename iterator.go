// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/sasdata/sas7bdat/internal/base"
	"github.com/sasdata/sas7bdat/internal/rowcompr"
)

// rowRef locates one row of the current page: either a window into the page
// buffer (plain rows) or into the decompression arena (RLE/RDC rows).
type rowRef struct {
	off   int
	arena bool
}

// pager walks pages in file order and hands out row slices. Compressed rows
// are decompressed into an arena that is reset per page; plain rows are
// borrowed from the page buffer. Either way a row slice is valid only until
// the next call.
type pager struct {
	r        *Reader
	page     []byte
	arena    []byte
	rows     []rowRef
	rowIdx   int
	nextPage uint64
	emitted  int64
}

func (p *pager) init(r *Reader) {
	p.r = r
	p.page = r.pageBuf
	p.reset()
}

func (p *pager) reset() {
	p.rows = p.rows[:0]
	p.arena = p.arena[:0]
	p.rowIdx = 0
	p.nextPage = 0
	p.emitted = 0
}

// nextRow returns the next row slice in file order, or (nil, nil) once the
// declared row count is exhausted.
func (p *pager) nextRow() ([]byte, error) {
	rl := p.r.meta.RowLength
	for {
		if p.rowIdx < len(p.rows) {
			ref := p.rows[p.rowIdx]
			p.rowIdx++
			p.emitted++
			p.r.metrics.RowsEmitted++
			if ref.arena {
				return p.arena[ref.off : ref.off+rl], nil
			}
			return p.page[ref.off : ref.off+rl], nil
		}
		ok, err := p.loadNextPage()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}
}

// loadNextPage advances to the next page that yields at least one row.
func (p *pager) loadNextPage() (bool, error) {
	hdr := &p.r.hdr
	meta := p.r.meta
	for p.nextPage < hdr.pageCount {
		if p.emitted >= meta.RowCount {
			return false, nil
		}
		idx := p.nextPage
		p.nextPage++
		if err := readPage(p.r.file, hdr, idx, p.page); err != nil {
			return false, err
		}
		p.r.metrics.PagesRead++

		ph := parsePageHeader(hdr, p.page)
		if isCompPage(ph.kind) {
			continue
		}
		if !isKnownPage(ph.kind) {
			p.r.metrics.UnknownPages++
			p.r.warnOncef(fmt.Sprintf("page-kind-%04x", ph.kind),
				"sas7bdat: skipping pages of unknown kind 0x%04x", ph.kind)
			continue
		}

		p.rows = p.rows[:0]
		p.arena = p.arena[:0]
		p.rowIdx = 0

		count, clamped := clampSubheaderCount(hdr, len(p.page), ph.subheaderCount)
		if clamped {
			p.r.warnOncef("clamp", "sas7bdat: clamping oversized subheader table (%d entries) on %s pages",
				ph.subheaderCount, pageKindName(ph.kind))
		}
		if err := p.collectPointerRows(ph, count); err != nil {
			return false, err
		}
		if len(p.rows) == 0 && hasRowData(ph.kind) {
			p.collectDataAreaRows(ph, count)
		}

		if remaining := meta.RowCount - p.emitted; int64(len(p.rows)) > remaining {
			p.rows = p.rows[:remaining]
		}
		if len(p.rows) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// collectPointerRows walks the pointer table, decompressing row entries and
// carving uncompressed row blocks. Metadata subheaders and truncated-row
// continuations are passed over.
func (p *pager) collectPointerRows(ph pageHeader, count int) error {
	hdr := &p.r.hdr
	meta := p.r.meta
	rl := meta.RowLength
	minDataOffset := hdr.pageHdrSize + count*hdr.ptrSize
	cursor := hdr.pageHdrSize
	for i := 0; i < count; i++ {
		if ph.rowCount > 0 && len(p.rows) >= ph.rowCount {
			break
		}
		ptr, err := parsePointer(hdr.endian, hdr.is64, p.page[cursor:cursor+hdr.ptrSize])
		if err != nil {
			return err
		}
		cursor += hdr.ptrSize
		if ptr.length == 0 {
			continue
		}
		if ptr.offset < minDataOffset || ptr.offset+ptr.length > len(p.page) {
			p.r.metrics.SkippedPointerEntries++
			p.r.warnOncef("ptr-bounds", "sas7bdat: skipping subheader pointers outside page bounds")
			continue
		}

		switch ptr.compression {
		case ptrCompressionNone:
			if ptr.length < hdr.sigSize {
				continue
			}
			data := p.page[ptr.offset : ptr.offset+ptr.length]
			sig := readSignature(hdr.endian, hdr.is64, data)
			if !ptr.compressedData || signatureRecognized(sig) {
				continue
			}
			// An unrecognised signature under the compressed-data flag is a
			// block of plain rows stored back to back.
			for off, remaining := ptr.offset, ptr.length; remaining >= rl; off, remaining = off+rl, remaining-rl {
				p.rows = append(p.rows, rowRef{off: off})
				if ph.rowCount > 0 && len(p.rows) >= ph.rowCount {
					break
				}
			}
		case ptrCompressionTruncated:
			// A truncated row reappears whole on the next page.
			p.r.metrics.SkippedPointerEntries++
			p.r.warnOncef("truncated-rows", "sas7bdat: skipping truncated-row pointer entries")
		case ptrCompressionRow:
			if err := p.decompressRow(ptr); err != nil {
				return err
			}
		default:
			return base.InvalidCompressedf("sas7bdat: unsupported subheader compression mode %d",
				errors.Safe(ptr.compression))
		}
	}
	return nil
}

// decompressRow expands one compressed row entry into the arena.
func (p *pager) decompressRow(ptr pointerInfo) error {
	rl := p.r.meta.RowLength
	start := len(p.arena)
	if cap(p.arena) < start+rl {
		grown := make([]byte, start, start+rl+len(p.page))
		copy(grown, p.arena)
		p.arena = grown
	}
	p.arena = p.arena[: start+rl : cap(p.arena)]
	dst := p.arena[start : start+rl]
	for i := range dst {
		dst[i] = ' '
	}
	src := p.page[ptr.offset : ptr.offset+ptr.length]

	var err error
	switch p.r.meta.Compression {
	case CompressionRLE:
		err = rowcompr.DecodeRLE(src, dst)
	case CompressionRDC:
		err = rowcompr.DecodeRDC(src, dst)
	default:
		err = base.InvalidCompressedf("sas7bdat: compressed row pointer in a dataset with no compression tag")
	}
	if err != nil {
		return err
	}
	p.rows = append(p.rows, rowRef{off: start, arena: true})
	return nil
}

// collectDataAreaRows carves the plain rows of a DATA or MIX page.
func (p *pager) collectDataAreaRows(ph pageHeader, subheaderCount int) {
	hdr := &p.r.hdr
	meta := p.r.meta
	rl := meta.RowLength

	var start int
	if ph.kind&pageKindMask == pageKindMix {
		start = mixDataStart(hdr, p.page, subheaderCount, meta.Vendor)
	} else {
		start = dataStart(hdr, subheaderCount)
	}
	if start >= len(p.page) {
		return
	}
	possible := (len(p.page) - start) / rl
	if possible == 0 {
		return
	}

	limit := possible
	if ph.kind&pageKindMask == pageKindMix {
		if meta.MixPageRowCount > 0 && meta.MixPageRowCount < int64(limit) {
			limit = int(meta.MixPageRowCount)
		}
	} else if ph.rowCount > 0 && ph.rowCount < limit {
		limit = ph.rowCount
	}
	for i := 0; i < limit; i++ {
		p.rows = append(p.rows, rowRef{off: start + i*rl})
	}
}

// RowIter is a pull iterator over the rows of a file. Use it in the
// pebble-iterator style:
//
//	it := r.NewRowIter()
//	defer it.Close()
//	for rv := it.First(); rv != nil; rv = it.Next() {
//		...
//	}
//	if err := it.Error(); err != nil { ... }
//
// An error during iteration is terminal: Next returns nil and Error
// reports the cause. At most one iterator may be active per Reader at a
// time; they share the reader's page buffer.
type RowIter struct {
	r      *Reader
	p      pager
	rv     RowView
	err    error
	closed bool
}

// NewRowIter returns an iterator positioned before the first row.
func (r *Reader) NewRowIter() *RowIter {
	it := &RowIter{r: r, rv: newRowView(r.meta)}
	it.p.init(r)
	return it
}

// First rewinds the iterator and returns the first row, or nil if the file
// has none.
func (it *RowIter) First() *RowView {
	if it.closed {
		return nil
	}
	it.p.reset()
	it.err = nil
	return it.Next()
}

// Next returns the next row, or nil at the end of data or on error.
func (it *RowIter) Next() *RowView {
	if it.closed || it.err != nil {
		return nil
	}
	row, err := it.p.nextRow()
	if err != nil {
		it.err = err
		return nil
	}
	if row == nil {
		return nil
	}
	it.rv.decode(row, it.p.emitted-1)
	return &it.rv
}

// Error returns the error that terminated iteration, if any.
func (it *RowIter) Error() error { return it.err }

// Close releases the iterator. No further I/O is performed.
func (it *RowIter) Close() error {
	it.closed = true
	return it.err
}

// ForEachRow streams every row through fn without per-row allocation. The
// view passed to fn is invalidated when fn returns. fn returning an error
// stops the scan and propagates the error.
func (r *Reader) ForEachRow(fn func(*RowView) error) error {
	it := r.NewRowIter()
	defer func() { _ = it.Close() }()
	for rv := it.First(); rv != nil; rv = it.Next() {
		if err := fn(rv); err != nil {
			return err
		}
	}
	return it.Error()
}
