// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"io"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/sasdata/sas7bdat/internal/sastest"
)

// An airline-shaped file: two numeric columns, no missing values.
func TestRowIterNumeric(t *testing.T) {
	b := sastest.NewBuilder(
		sastest.Column{Name: "YEAR", Width: 8},
		sastest.Column{Name: "AIR", Width: 8},
	)
	for i := 0; i < 32; i++ {
		b.AddRow(float64(1949+i), 112.0+float64(i))
	}
	r := openBytes(t, b.Build())
	defer func() { _ = r.Close() }()

	require.Equal(t, int64(32), r.Metadata().RowCount)
	require.Len(t, r.Metadata().Columns, 2)

	it := r.NewRowIter()
	defer func() { _ = it.Close() }()
	var rows int
	for rv := it.First(); rv != nil; rv = it.Next() {
		require.Equal(t, 2, rv.NumCells())
		year := rv.Cell(0)
		air := rv.Cell(1)
		require.False(t, year.Missing())
		require.False(t, air.Missing())
		require.Equal(t, float64(1949+rows), year.Float64())
		require.Equal(t, 112.0+float64(rows), air.Float64())
		rows++
	}
	require.NoError(t, it.Error())
	require.Equal(t, 32, rows)

	// First rewinds.
	rv := it.First()
	require.NotNil(t, rv)
	require.Equal(t, 1949.0, rv.Cell(0).Float64())
}

func TestRowIterStringsAndTemporal(t *testing.T) {
	b := productBuilder()
	b.AddRow("CANADA    ", "EAST", 12054.0, 1337.5)
	b.AddRow(nil, "WEST", nil, sastest.Missing{Tag: 'A'})
	r := openBytes(t, b.Build())
	defer func() { _ = r.Close() }()

	it := r.NewRowIter()
	defer func() { _ = it.Close() }()

	rv := it.First()
	require.NotNil(t, rv)
	country, err := rv.Cell(0).StringValue()
	require.NoError(t, err)
	require.Equal(t, "CANADA", country) // trailing spaces trimmed
	require.LessOrEqual(t, len(rv.Cell(0).Bytes()), 10)

	date := rv.Cell(2)
	require.Equal(t, KindDate, date.Column().Kind)
	require.Equal(t, int32(8401), date.Days()) // 12054 SAS days
	require.Equal(t, time.Date(1993, time.January, 1, 0, 0, 0, 0, time.UTC), date.Date())

	require.Equal(t, 1337.5, rv.Cell(3).Float64())

	rv = it.Next()
	require.NotNil(t, rv)
	require.True(t, rv.Cell(0).Missing())
	require.Equal(t, CellMissing, rv.Cell(0).State())
	require.True(t, rv.Cell(2).Missing())
	require.Equal(t, TagSystem, rv.Cell(2).MissingTag())
	require.True(t, rv.Cell(3).Missing())
	require.Equal(t, byte('A'), rv.Cell(3).MissingTag())

	require.Nil(t, it.Next())
	require.NoError(t, it.Error())
}

func TestRowIterDateTimeAndTime(t *testing.T) {
	b := sastest.NewBuilder(
		sastest.Column{Name: "TS", Format: "DATETIME", Width: 8},
		sastest.Column{Name: "TOD", Format: "TIME", Width: 8},
	)
	// 1993-01-01 12:30:45.5 = 12054 days + 45045.5 seconds after the SAS
	// epoch; time-of-day carries microsecond resolution.
	b.AddRow(12054.0*86400+45045.5, 45045.5)
	r := openBytes(t, b.Build())
	defer func() { _ = r.Close() }()

	it := r.NewRowIter()
	defer func() { _ = it.Close() }()
	rv := it.First()
	require.NotNil(t, rv)

	ts := rv.Cell(0)
	require.Equal(t, KindDateTime, ts.Column().Kind)
	want := time.Date(1993, time.January, 1, 12, 30, 45, 500000000, time.UTC)
	require.Equal(t, want, ts.DateTime())
	require.Equal(t, want.UnixMicro(), ts.Micros())

	tod := rv.Cell(1)
	require.Equal(t, KindTime, tod.Column().Kind)
	require.Equal(t, int64(45045500000), tod.Micros())
	require.Equal(t, 12*time.Hour+30*time.Minute+45*time.Second+500*time.Millisecond, tod.Duration())
}

// Emitted rows never exceed the declared row count, whatever the pages
// claim.
func TestRowIterCapsAtDeclaredRowCount(t *testing.T) {
	b := sastest.NewBuilder(sastest.Column{Name: "N", Width: 8})
	for i := 0; i < 10; i++ {
		b.AddRow(float64(i))
	}
	b.RowCountOverride = 7
	r := openBytes(t, b.Build())
	defer func() { _ = r.Close() }()

	var rows int
	require.NoError(t, r.ForEachRow(func(rv *RowView) error {
		rows++
		return nil
	}))
	require.Equal(t, 7, rows)
	require.Equal(t, int64(7), r.Metrics().RowsEmitted)
}

// Pages may declare more rows than their bytes can hold; the page's claim is
// bounded by its capacity and then by the declared file total.
func TestRowIterPageRowCountOverdeclared(t *testing.T) {
	b := sastest.NewBuilder(sastest.Column{Name: "N", Width: 8})
	for i := 0; i < 4; i++ {
		b.AddRow(float64(i))
	}
	b.PageRowCountOverride = 5000
	r := openBytes(t, b.Build())
	defer func() { _ = r.Close() }()

	var rows int
	require.NoError(t, r.ForEachRow(func(rv *RowView) error { rows++; return nil }))
	require.Equal(t, 4, rows)
}

func TestRowIterMultiPage(t *testing.T) {
	b := sastest.NewBuilder(sastest.Column{Name: "N", Width: 8})
	// 4096-byte pages hold (4096-24)/8 = 509 rows; force several pages.
	const total = 1600
	for i := 0; i < total; i++ {
		b.AddRow(float64(i))
	}
	r := openBytes(t, b.Build())
	defer func() { _ = r.Close() }()

	var rows int
	require.NoError(t, r.ForEachRow(func(rv *RowView) error {
		require.Equal(t, float64(rows), rv.Cell(0).Float64())
		rows++
		return nil
	}))
	require.Equal(t, total, rows)
	require.Greater(t, r.Metrics().PagesRead, int64(3))
}

func TestRowIterCompressed(t *testing.T) {
	for _, tag := range []string{sastest.CompressRLE, sastest.CompressRDC} {
		t.Run(tag, func(t *testing.T) {
			b := sastest.NewBuilder(
				sastest.Column{Name: "NAME", Char: true, Width: 12},
				sastest.Column{Name: "VALUE", Width: 8},
			)
			b.CompressTag = tag
			const total = 300
			for i := 0; i < total; i++ {
				b.AddRow("row", float64(i)/4)
			}
			r := openBytes(t, b.Build())
			defer func() { _ = r.Close() }()

			var rows int
			require.NoError(t, r.ForEachRow(func(rv *RowView) error {
				s, err := rv.Cell(0).StringValue()
				require.NoError(t, err)
				require.Equal(t, "row", s)
				require.Equal(t, float64(rows)/4, rv.Cell(1).Float64())
				rows++
				return nil
			}))
			require.Equal(t, total, rows)
		})
	}
}

// Truncating a compressed payload surfaces as a typed error, terminal on
// the iterator, never a panic.
func TestRowIterCorruptCompressed(t *testing.T) {
	b := sastest.NewBuilder(sastest.Column{Name: "NAME", Char: true, Width: 64})
	b.CompressTag = sastest.CompressRLE
	b.AddRow("abcdefghijklmnopqrstuvwxyz0123456789abcdefghijklmnopqrstuvwxyz01")
	data := b.Build()

	// Corrupt the compressed payload on page 1: an 0x0-command literal far
	// longer than the remaining input.
	page := data[1024+4096:]
	off := int(le32(page[24:]))
	page[off] = 0x0F
	page[off+1] = 0xFF

	r := openBytes(t, data)
	defer func() { _ = r.Close() }()
	it := r.NewRowIter()
	defer func() { _ = it.Close() }()
	require.Nil(t, it.First())
	require.True(t, errors.Is(it.Error(), ErrInvalidCompressed))

	// The error is terminal.
	require.Nil(t, it.Next())
}

func TestForEachRowCallbackError(t *testing.T) {
	b := sastest.NewBuilder(sastest.Column{Name: "N", Width: 8})
	b.AddRow(1.0)
	b.AddRow(2.0)
	r := openBytes(t, b.Build())
	defer func() { _ = r.Close() }()

	sentinel := errors.New("stop")
	err := r.ForEachRow(func(rv *RowView) error { return sentinel })
	require.ErrorIs(t, err, sentinel)
}

func TestReaderTruncatedPagePayload(t *testing.T) {
	b := sastest.NewBuilder(sastest.Column{Name: "N", Width: 8})
	b.AddRow(1.0)
	data := b.Build()

	// Drop half of the data page. The metadata walk reads page headers up
	// to the first DATA page, so the truncation already surfaces at open,
	// as an I/O error rather than a header error.
	_, err := NewReader(newMemFile(data[:len(data)-2048]), nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	require.False(t, errors.Is(err, ErrInvalidHeader))
}
