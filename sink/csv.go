// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sasdata/sas7bdat"
)

// CSV writes a dataset as delimited text: one header record of column
// names, then one record per row. Missing cells render as empty fields.
type CSV struct {
	w      *csv.Writer
	md     *sas7bdat.Metadata
	cols   []int
	record []string
	began  bool
}

// NewCSV returns a comma-delimited sink writing to w.
func NewCSV(w io.Writer) *CSV {
	return &CSV{w: csv.NewWriter(w)}
}

// NewTSV returns a tab-delimited sink writing to w.
func NewTSV(w io.Writer) *CSV {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return &CSV{w: cw}
}

var _ Sink = (*CSV)(nil)

// Begin writes the header record.
func (c *CSV) Begin(md *sas7bdat.Metadata, columns []int) error {
	if c.began {
		return errors.New("sink: csv sink cannot be reused")
	}
	c.began = true
	c.md = md
	c.cols = columns
	c.record = make([]string, len(columns))
	for i, ci := range columns {
		c.record[i] = md.Columns[ci].Name
	}
	return c.w.Write(c.record)
}

// WriteRow renders one row.
func (c *CSV) WriteRow(rv *sas7bdat.RowView) error {
	for i, ci := range c.cols {
		s, err := formatCell(rv.Cell(ci))
		if err != nil {
			return err
		}
		c.record[i] = s
	}
	return c.w.Write(c.record)
}

// WriteBatch renders a staged batch row-wise. The CSV form has no columnar
// fast path; batches exist for parity with the Sink interface.
func (c *CSV) WriteBatch(b *sas7bdat.StagedBatch) error {
	for row := 0; row < b.NumRows; row++ {
		for i, ci := range c.cols {
			staged := &b.Columns[ci]
			c.record[i] = formatStagedCell(staged, row)
		}
		if err := c.w.Write(c.record); err != nil {
			return err
		}
	}
	return nil
}

// Finish flushes the output.
func (c *CSV) Finish() error {
	c.w.Flush()
	return c.w.Error()
}

// formatCell renders a decoded cell. Numbers use the shortest
// round-trippable representation; temporal kinds use ISO forms.
func formatCell(cell *sas7bdat.Cell) (string, error) {
	if cell.Missing() {
		return "", nil
	}
	switch cell.Column().Kind {
	case sas7bdat.KindString:
		return cell.StringValue()
	case sas7bdat.KindDate:
		return cell.Date().Format("2006-01-02"), nil
	case sas7bdat.KindDateTime:
		return cell.DateTime().Format("2006-01-02T15:04:05.999999"), nil
	case sas7bdat.KindTime:
		return formatDayMicros(cell.Micros()), nil
	default:
		return strconv.FormatFloat(cell.Float64(), 'g', -1, 64), nil
	}
}

func formatStagedCell(staged *sas7bdat.StagedColumn, row int) string {
	if !staged.Valid[row] {
		return ""
	}
	switch staged.Column.Kind {
	case sas7bdat.KindString:
		return string(staged.StringAt(row))
	case sas7bdat.KindDate:
		return unixDaysString(staged.Days[row])
	case sas7bdat.KindDateTime:
		return unixMicrosString(staged.Micros[row])
	case sas7bdat.KindTime:
		return formatDayMicros(staged.Micros[row])
	default:
		return strconv.FormatFloat(staged.Nums[row], 'g', -1, 64)
	}
}

func dayTime(days int32) time.Time {
	return time.Unix(int64(days)*86400, 0).UTC()
}

func microTime(us int64) time.Time {
	return time.Unix(us/1e6, us%1e6*1e3).UTC()
}

func unixDaysString(days int32) string {
	return dayTime(days).Format("2006-01-02")
}

func unixMicrosString(us int64) string {
	return microTime(us).Format("2006-01-02T15:04:05.999999")
}

// formatDayMicros renders a time-of-day with microsecond precision,
// dropping trailing zero fractions.
func formatDayMicros(us int64) string {
	neg := ""
	if us < 0 {
		neg = "-"
		us = -us
	}
	sec := us / 1e6
	frac := us % 1e6
	h, m, s := sec/3600, sec/60%60, sec%60
	if frac == 0 {
		return fmt.Sprintf("%s%02d:%02d:%02d", neg, h, m, s)
	}
	return fmt.Sprintf("%s%02d:%02d:%02d.%06d", neg, h, m, s, frac)
}
