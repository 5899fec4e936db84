// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sink

import (
	"fmt"
	"io"
	"sort"

	"github.com/cockroachdb/errors"
	parquet "github.com/segmentio/parquet-go"

	"github.com/sasdata/sas7bdat"
	"github.com/sasdata/sas7bdat/internal/base"
)

// Parquet row-group sizing defaults, applied when the options leave the
// fields zero.
const (
	DefaultRowGroupRows = 65536
	DefaultTargetBytes  = 512 << 20
)

// ParquetCompression selects the page compression codec.
type ParquetCompression string

// The supported codecs.
const (
	ParquetSnappy       ParquetCompression = "snappy"
	ParquetGzip         ParquetCompression = "gzip"
	ParquetUncompressed ParquetCompression = "none"
)

// ParquetOptions configures a Parquet sink.
type ParquetOptions struct {
	// RowGroupRows caps the rows per row group. Zero means
	// DefaultRowGroupRows.
	RowGroupRows int
	// TargetBytes caps the (pre-compression, row-length-estimated) bytes
	// per row group. Zero means DefaultTargetBytes.
	TargetBytes int64
	// Compression selects the page codec; empty means snappy.
	Compression ParquetCompression
}

func (o *ParquetOptions) ensureDefaults() {
	if o.RowGroupRows <= 0 {
		o.RowGroupRows = DefaultRowGroupRows
	}
	if o.TargetBytes <= 0 {
		o.TargetBytes = DefaultTargetBytes
	}
	if o.Compression == "" {
		o.Compression = ParquetSnappy
	}
}

// Parquet writes a dataset to a Parquet file. String columns are
// dictionary-encoded BYTE_ARRAY, numbers are DOUBLE, and the temporal
// kinds map to DATE, TIMESTAMP(micros), and TIME(micros). Every column is
// optional; definition levels mark missing cells per row.
type Parquet struct {
	out  io.Writer
	opts ParquetOptions

	md      *sas7bdat.Metadata
	cols    []int
	writer  *parquet.Writer
	buffer  *parquet.Buffer
	schema  *parquet.Schema
	rowLen  int64
	// leafForCol maps a position in cols to the schema leaf index, and
	// colForLeaf the reverse. Parquet groups order their fields by name,
	// so the two orders differ whenever the column names are not sorted.
	leafForCol []int
	colForLeaf []int

	rowsBuffered int
	values       []parquet.Value
	rowScratch   parquet.Row
}

// NewParquet returns a Parquet sink writing to w.
func NewParquet(w io.Writer, opts ParquetOptions) *Parquet {
	opts.ensureDefaults()
	return &Parquet{out: w, opts: opts}
}

var _ Sink = (*Parquet)(nil)

func (p *Parquet) codec() parquet.WriterOption {
	switch p.opts.Compression {
	case ParquetGzip:
		return parquet.Compression(&parquet.Gzip)
	case ParquetUncompressed:
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

// Begin freezes the output schema and opens the writer.
func (p *Parquet) Begin(md *sas7bdat.Metadata, columns []int) error {
	if p.writer != nil {
		return errors.New("sink: parquet sink cannot be reused")
	}
	p.md = md
	p.cols = columns

	group := parquet.Group{}
	names := make([]string, len(columns))
	for i, ci := range columns {
		col := &md.Columns[ci]
		name := col.Name
		if name == "" || group[name] != nil {
			name = fmt.Sprintf("%s_%d", name, ci)
		}
		names[i] = name
		group[name] = parquetNode(col.Kind)
		p.rowLen += int64(col.Width)
	}

	// Group fields are ordered by name; recover the leaf index of each
	// selected column from that ordering.
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	leafByName := make(map[string]int, len(sorted))
	for leaf, name := range sorted {
		leafByName[name] = leaf
	}
	p.leafForCol = make([]int, len(columns))
	p.colForLeaf = make([]int, len(columns))
	for i, name := range names {
		leaf := leafByName[name]
		p.leafForCol[i] = leaf
		p.colForLeaf[leaf] = i
	}

	name := md.Name
	if name == "" {
		name = "dataset"
	}
	p.schema = parquet.NewSchema(name, group)
	p.writer = parquet.NewWriter(p.out, p.schema, p.codec())
	p.buffer = parquet.NewBuffer(p.schema)
	if p.rowLen == 0 {
		p.rowLen = 1
	}
	return nil
}

func parquetNode(kind sas7bdat.ColumnKind) parquet.Node {
	switch kind {
	case sas7bdat.KindString:
		return parquet.Optional(parquet.Encoded(parquet.String(), &parquet.RLEDictionary))
	case sas7bdat.KindDate:
		return parquet.Optional(parquet.Date())
	case sas7bdat.KindDateTime:
		return parquet.Optional(parquet.Timestamp(parquet.Microsecond))
	case sas7bdat.KindTime:
		return parquet.Optional(parquet.Time(parquet.Microsecond))
	default:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	}
}

// WriteBatch streams one staged batch into the open row group buffer,
// feeding every column buffer exactly once, and commits it as a row group
// when a sizing threshold is crossed.
func (p *Parquet) WriteBatch(b *sas7bdat.StagedBatch) error {
	if p.writer == nil {
		return errors.New("sink: batch written before Begin")
	}
	colBufs := p.buffer.ColumnBuffers()
	fed := 0
	for i, ci := range p.cols {
		leaf := p.leafForCol[i]
		staged := &b.Columns[ci]
		if err := p.writeColumn(colBufs[leaf], leaf, staged, b.NumRows); err != nil {
			// The row group now holds unevenly fed columns and cannot be
			// completed; surface the lifecycle break alongside the cause.
			return base.MarkWriterNotClosed(errors.Wrapf(err,
				"sink: abandoning row group after feeding %d of %d columns", fed, len(p.cols)))
		}
		fed++
	}
	p.rowsBuffered += b.NumRows
	if p.rowsBuffered >= p.opts.RowGroupRows || int64(p.rowsBuffered)*p.rowLen >= p.opts.TargetBytes {
		return p.flush()
	}
	return nil
}

// writeColumn appends one staged column's rows to its column buffer.
func (p *Parquet) writeColumn(cb parquet.ColumnBuffer, leaf int, staged *sas7bdat.StagedColumn, rows int) error {
	if cap(p.values) < rows {
		p.values = make([]parquet.Value, rows)
	}
	values := p.values[:rows]
	for i := 0; i < rows; i++ {
		values[i] = p.cellValue(staged, i, leaf)
	}
	n, err := cb.WriteValues(values)
	if err != nil {
		return err
	}
	if n != rows {
		return errors.Newf("sink: column buffer accepted %d of %d values", n, rows)
	}
	return nil
}

func (p *Parquet) cellValue(staged *sas7bdat.StagedColumn, row, leaf int) parquet.Value {
	if !staged.Valid[row] {
		return parquet.Value{}.Level(0, 0, leaf)
	}
	var v parquet.Value
	switch staged.Column.Kind {
	case sas7bdat.KindString:
		v = parquet.ValueOf(staged.StringAt(row))
	case sas7bdat.KindDate:
		v = parquet.ValueOf(staged.Days[row])
	case sas7bdat.KindDateTime, sas7bdat.KindTime:
		v = parquet.ValueOf(staged.Micros[row])
	default:
		v = parquet.ValueOf(staged.Nums[row])
	}
	return v.Level(0, 1, leaf)
}

// WriteRow appends a single decoded row, for drivers that bypass columnar
// staging.
func (p *Parquet) WriteRow(rv *sas7bdat.RowView) error {
	if p.writer == nil {
		return errors.New("sink: row written before Begin")
	}
	if cap(p.rowScratch) < len(p.cols) {
		p.rowScratch = make(parquet.Row, len(p.cols))
	}
	row := p.rowScratch[:len(p.cols)]
	for leaf := range p.cols {
		ci := p.cols[p.colForLeaf[leaf]]
		cell := rv.Cell(ci)
		if cell.Missing() {
			row[leaf] = parquet.Value{}.Level(0, 0, leaf)
			continue
		}
		var v parquet.Value
		switch cell.Column().Kind {
		case sas7bdat.KindString:
			s, err := cell.StringValue()
			if err != nil {
				return err
			}
			v = parquet.ValueOf(s)
		case sas7bdat.KindDate:
			v = parquet.ValueOf(cell.Days())
		case sas7bdat.KindDateTime, sas7bdat.KindTime:
			v = parquet.ValueOf(cell.Micros())
		default:
			v = parquet.ValueOf(cell.Float64())
		}
		row[leaf] = v.Level(0, 1, leaf)
	}
	if _, err := p.buffer.WriteRows([]parquet.Row{row}); err != nil {
		return err
	}
	p.rowsBuffered++
	if p.rowsBuffered >= p.opts.RowGroupRows || int64(p.rowsBuffered)*p.rowLen >= p.opts.TargetBytes {
		return p.flush()
	}
	return nil
}

// flush commits the buffered rows as one row group.
func (p *Parquet) flush() error {
	if p.rowsBuffered == 0 {
		return nil
	}
	if got := p.buffer.NumRows(); got != int64(p.rowsBuffered) {
		// A column buffer holds a different row count than its peers: some
		// column writer was fed short and never completed.
		return base.MarkWriterNotClosed(errors.Newf(
			"sink: row group holds %d rows but %d were staged", got, p.rowsBuffered))
	}
	if _, err := p.writer.WriteRowGroup(p.buffer); err != nil {
		return err
	}
	p.buffer.Reset()
	p.rowsBuffered = 0
	return nil
}

// Finish flushes the pending row group and closes the file footer.
func (p *Parquet) Finish() error {
	if p.writer == nil {
		return nil
	}
	flushErr := p.flush()
	closeErr := p.writer.Close()
	p.writer = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
