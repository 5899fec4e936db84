// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"math"

	"github.com/sasdata/sas7bdat/internal/binfmt"
)

// StagedColumn holds one column of a staged batch, already converted to
// sink-facing representations: Unix-epoch days and microseconds for
// temporal columns, doubles for numbers, and an arena plus offsets for
// strings. Exactly the vector matching the column kind is populated.
type StagedColumn struct {
	// Column is the schema column being staged.
	Column *Column
	// Valid flags each row as present; missing rows are false.
	Valid []bool
	// HasMissing is true when any row of the batch is missing.
	HasMissing bool

	// Nums holds KindNumber values.
	Nums []float64
	// Days holds KindDate values as days since 1970-01-01.
	Days []int32
	// Micros holds KindDateTime values as microseconds since 1970-01-01
	// and KindTime values as microseconds since midnight.
	Micros []int64

	// Arena and Offsets hold KindString values: row i occupies
	// Arena[Offsets[i]:Offsets[i+1]].
	Arena   []byte
	Offsets []uint32
	// Dict interns the batch's distinct string values; DictIDs maps each
	// row to an entry. Both are unset for non-string columns. When a batch's
	// distinct count exceeds the dictionary bound, Dict reports Disabled and
	// every DictIDs entry of the batch is -1.
	Dict    *Dictionary
	DictIDs []int32
}

// StringAt returns the staged bytes of row i of a string column.
func (c *StagedColumn) StringAt(i int) []byte {
	return c.Arena[c.Offsets[i]:c.Offsets[i+1]]
}

// StagedBatch is a row group staged column-wise. It owns its arenas,
// dictionaries, and vectors; unlike a RowView it does not borrow from the
// reader's buffers, but it is reused by the iterator that produced it and
// must be consumed before the next call.
type StagedBatch struct {
	meta *Metadata
	// StartRow is the file-order index of the batch's first row.
	StartRow int64
	// NumRows is the number of staged rows.
	NumRows int
	// Columns holds one staged column per schema column, in schema order.
	Columns []StagedColumn
}

// Metadata returns the schema the batch was staged under.
func (b *StagedBatch) Metadata() *Metadata { return b.meta }

// BatchIter stages rows into columnar batches of a fixed row-group size.
// Page bytes are copied into a contiguous staging buffer once per batch;
// the per-column vectors are then filled in a single pass per column.
type BatchIter struct {
	r         *Reader
	p         pager
	batchRows int
	stage     []byte
	batch     StagedBatch
	err       error
	closed    bool
}

// NewBatchIter returns an iterator producing batches of up to batchRows
// rows. Zero selects DefaultBatchRows. Batches cover contiguous,
// non-overlapping row ranges in file order.
func (r *Reader) NewBatchIter(batchRows int) *BatchIter {
	if batchRows <= 0 {
		batchRows = DefaultBatchRows
	}
	it := &BatchIter{r: r, batchRows: batchRows}
	it.p.init(r)
	it.batch.meta = r.meta
	it.batch.Columns = make([]StagedColumn, len(r.meta.Columns))
	for i := range it.batch.Columns {
		col := &it.batch.Columns[i]
		col.Column = &r.meta.Columns[i]
		if col.Column.Kind == KindString {
			col.Dict = newDictionary()
		}
	}
	return it
}

// Next stages and returns the next batch, or nil at end of data or on
// error. The returned batch is reused by the following call.
func (it *BatchIter) Next() *StagedBatch {
	if it.closed || it.err != nil {
		return nil
	}
	rl := it.r.meta.RowLength
	start := it.p.emitted

	it.stage = it.stage[:0]
	n := 0
	for n < it.batchRows {
		row, err := it.p.nextRow()
		if err != nil {
			it.err = err
			return nil
		}
		if row == nil {
			break
		}
		it.stage = append(it.stage, row...)
		n++
	}
	if n == 0 {
		return nil
	}

	it.batch.StartRow = start
	it.batch.NumRows = n
	for i := range it.batch.Columns {
		it.stageColumn(&it.batch.Columns[i], n, rl)
	}
	it.r.metrics.BatchesStaged++
	return &it.batch
}

// stageColumn materialises one column over the staged row bytes.
func (it *BatchIter) stageColumn(col *StagedColumn, rows, rowLength int) {
	schema := col.Column
	endian := it.r.meta.Endianness

	col.Valid = grow(col.Valid, rows)
	col.HasMissing = false
	switch schema.Kind {
	case KindNumber:
		col.Nums = grow(col.Nums, rows)
	case KindDate:
		col.Days = grow(col.Days, rows)
	case KindDateTime, KindTime:
		col.Micros = grow(col.Micros, rows)
	case KindString:
		col.Arena = col.Arena[:0]
		col.Offsets = grow(col.Offsets, rows+1)
		col.Offsets[0] = 0
		col.DictIDs = grow(col.DictIDs, rows)
		col.Dict.reset()
	}

	for i := 0; i < rows; i++ {
		row := it.stage[i*rowLength : (i+1)*rowLength]
		window := row[schema.Offset : schema.Offset+schema.Width]

		if schema.Kind == KindString {
			trimmed := binfmt.TrimPadding(window)
			col.Arena = append(col.Arena, trimmed...)
			col.Offsets[i+1] = uint32(len(col.Arena))
			valid := len(trimmed) > 0
			col.Valid[i] = valid
			if !valid {
				col.HasMissing = true
			}
			if id, ok := col.Dict.add(trimmed); ok {
				col.DictIDs[i] = id
			} else {
				col.DictIDs[i] = -1
			}
			continue
		}

		bits := binfmt.NumericBits(endian, window)
		_, missing := missingTag(bits)
		v := math.Float64frombits(bits)
		if !missing && schema.Kind != KindNumber && (math.IsNaN(v) || math.IsInf(v, 0)) {
			missing = true
		}
		col.Valid[i] = !missing
		if missing {
			col.HasMissing = true
			v = 0
		}
		switch schema.Kind {
		case KindNumber:
			col.Nums[i] = v
		case KindDate:
			col.Days[i] = sasDaysToUnixDays(v)
		case KindDateTime:
			col.Micros[i] = sasSecondsToUnixMicros(v)
		case KindTime:
			col.Micros[i] = sasSecondsToDayMicros(v)
		}
	}

	// A dictionary that died mid-batch leaves earlier rows with stale ids.
	if schema.Kind == KindString && col.Dict.Disabled() {
		for i := range col.DictIDs[:rows] {
			col.DictIDs[i] = -1
		}
	}
}

// Error returns the error that terminated iteration, if any.
func (it *BatchIter) Error() error { return it.err }

// Close releases the iterator. No further I/O is performed.
func (it *BatchIter) Close() error {
	it.closed = true
	return it.err
}

// grow returns s resized to n elements, reusing capacity.
func grow[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}
