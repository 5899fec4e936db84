// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"math"

	"github.com/sasdata/sas7bdat/internal/binfmt"
)

// RowView is a decoded view over one row. The view and every string cell in
// it borrow from the reader's row buffer and remain valid only until the
// iterator advances; callers that need the values longer must copy them.
type RowView struct {
	meta  *Metadata
	cells []Cell
	index int64
}

func newRowView(meta *Metadata) RowView {
	return RowView{
		meta:  meta,
		cells: make([]Cell, len(meta.Columns)),
	}
}

// Index returns the zero-based position of the row in file order.
func (rv *RowView) Index() int64 { return rv.index }

// NumCells returns the number of cells, equal to the column count.
func (rv *RowView) NumCells() int { return len(rv.cells) }

// Cell returns the decoded cell for column i.
func (rv *RowView) Cell(i int) *Cell { return &rv.cells[i] }

// Cells returns all cells in schema order.
func (rv *RowView) Cells() []Cell { return rv.cells }

// decode refreshes the view in place from a row slice. The cells slice is
// reused; nothing is heap-allocated per row.
func (rv *RowView) decode(row []byte, index int64) {
	rv.index = index
	endian := rv.meta.Endianness
	for i := range rv.meta.Columns {
		col := &rv.meta.Columns[i]
		cell := &rv.cells[i]
		cell.col = col
		cell.tag = TagNone
		cell.raw = nil
		cell.num = 0

		window := row[col.Offset : col.Offset+col.Width]
		if col.Type == TypeCharacter {
			trimmed := binfmt.TrimPadding(window)
			if len(trimmed) == 0 {
				cell.state = CellMissing
			} else {
				cell.state = CellPresent
				cell.raw = trimmed
			}
			continue
		}

		bits := binfmt.NumericBits(endian, window)
		if tag, missing := missingTag(bits); missing {
			cell.state = CellMissing
			cell.tag = tag
			continue
		}
		v := math.Float64frombits(bits)
		if col.Kind != KindNumber && (math.IsNaN(v) || math.IsInf(v, 0)) {
			cell.state = CellMissing
			cell.tag = TagSystem
			continue
		}
		cell.state = CellPresent
		cell.num = v
	}
}
