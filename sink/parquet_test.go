// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sink

import (
	"bytes"
	"fmt"
	"testing"

	parquet "github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/require"

	"github.com/sasdata/sas7bdat"
	"github.com/sasdata/sas7bdat/internal/sastest"
)

// readBack decodes a written parquet file into one map per row, keyed by
// column name; missing cells map to nil.
func readBack(t *testing.T, data []byte) []map[string]interface{} {
	t.Helper()
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	fields := f.Schema().Fields()
	var out []map[string]interface{}
	for _, rg := range f.RowGroups() {
		rows := rg.Rows()
		buf := make([]parquet.Row, 64)
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				m := make(map[string]interface{}, len(fields))
				for _, v := range row {
					name := fields[v.Column()].Name()
					if v.IsNull() {
						m[name] = nil
						continue
					}
					switch v.Kind() {
					case parquet.ByteArray:
						m[name] = string(v.ByteArray())
					case parquet.Double:
						m[name] = v.Double()
					case parquet.Int32:
						m[name] = v.Int32()
					case parquet.Int64:
						m[name] = v.Int64()
					default:
						t.Fatalf("unexpected kind %v", v.Kind())
					}
				}
				out = append(out, m)
			}
			if err != nil {
				break
			}
			if n == 0 {
				break
			}
		}
		require.NoError(t, rows.Close())
	}
	return out
}

func countRowGroups(t *testing.T, data []byte) int {
	t.Helper()
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return len(f.RowGroups())
}

func writeParquetBatches(t *testing.T, r *sas7bdat.Reader, opts ParquetOptions, batchRows int) []byte {
	t.Helper()
	var out bytes.Buffer
	s := NewParquet(&out, opts)
	require.NoError(t, s.Begin(r.Metadata(), AllColumns(r.Metadata())))
	it := r.NewBatchIter(batchRows)
	defer func() { _ = it.Close() }()
	for batch := it.Next(); batch != nil; batch = it.Next() {
		require.NoError(t, s.WriteBatch(batch))
	}
	require.NoError(t, it.Error())
	require.NoError(t, s.Finish())
	return out.Bytes()
}

func TestParquetRoundTrip(t *testing.T) {
	b := salesBuilder()
	addSalesRows(b)
	r := openBytes(t, b.Build())
	defer func() { _ = r.Close() }()

	data := writeParquetBatches(t, r, ParquetOptions{}, 16)
	rows := readBack(t, data)
	require.Len(t, rows, 3)

	require.Equal(t, "CANADA", rows[0]["COUNTRY"])
	require.Equal(t, 1337.5, rows[0]["SALES"])
	require.Equal(t, int32(8401), rows[0]["DATE"])
	require.Equal(t, int64(725_891_445_500_000), rows[0]["TS"])
	require.Equal(t, int64(45_045_500_000), rows[0]["TOD"])

	for _, name := range []string{"COUNTRY", "SALES", "DATE", "TS", "TOD"} {
		require.Nil(t, rows[1][name], name)
	}

	require.Equal(t, "GERMANY", rows[2]["COUNTRY"])
	require.Equal(t, 64.0, rows[2]["SALES"])
	require.Equal(t, int32(-3653), rows[2]["DATE"])
	require.Equal(t, int64(0), rows[2]["TS"])
}

// The row path and the columnar path must produce equal contents; both write
// through the same dictionary-encoded schema, the columnar path from staged
// column vectors and the row path from decoded cells.
func TestParquetRowPathMatchesBatchPath(t *testing.T) {
	build := func() *sas7bdat.Reader {
		b := salesBuilder()
		for i := 0; i < 50; i++ {
			b.AddRow(fmt.Sprintf("C%d", i%3), float64(i), 12054.0, 12054.0*86400, float64(i))
		}
		b.AddRow(nil, nil, nil, nil, nil)
		return openBytes(t, b.Build())
	}

	r1 := build()
	defer func() { _ = r1.Close() }()
	batchData := writeParquetBatches(t, r1, ParquetOptions{}, 32)

	r2 := build()
	defer func() { _ = r2.Close() }()
	var out bytes.Buffer
	s := NewParquet(&out, ParquetOptions{})
	require.NoError(t, s.Begin(r2.Metadata(), AllColumns(r2.Metadata())))
	require.NoError(t, r2.ForEachRow(s.WriteRow))
	require.NoError(t, s.Finish())

	require.Equal(t, readBack(t, batchData), readBack(t, out.Bytes()))
}

// With the row-group size at least the row count, everything lands in a
// single row group.
func TestParquetSingleRowGroup(t *testing.T) {
	b := sastest.NewBuilder(
		sastest.Column{Name: "K", Char: true, Width: 8},
		sastest.Column{Name: "V", Width: 8},
	)
	const total = 2000
	for i := 0; i < total; i++ {
		b.AddRow(fmt.Sprintf("k%d", i%10), float64(i))
	}
	r := openBytes(t, b.Build())
	defer func() { _ = r.Close() }()

	data := writeParquetBatches(t, r, ParquetOptions{RowGroupRows: 65536}, 512)
	require.Equal(t, 1, countRowGroups(t, data))
	rows := readBack(t, data)
	require.Len(t, rows, total)
	require.Equal(t, "k7", rows[7]["K"])
	require.Equal(t, float64(total-1), rows[total-1]["V"])
}

func TestParquetRowGroupRowThreshold(t *testing.T) {
	b := sastest.NewBuilder(sastest.Column{Name: "V", Width: 8})
	for i := 0; i < 1000; i++ {
		b.AddRow(float64(i))
	}
	r := openBytes(t, b.Build())
	defer func() { _ = r.Close() }()

	data := writeParquetBatches(t, r, ParquetOptions{RowGroupRows: 250}, 250)
	require.Equal(t, 4, countRowGroups(t, data))
	require.Len(t, readBack(t, data), 1000)
}

func TestParquetCompressionCodecs(t *testing.T) {
	for _, codec := range []ParquetCompression{ParquetSnappy, ParquetGzip, ParquetUncompressed} {
		t.Run(string(codec), func(t *testing.T) {
			b := salesBuilder()
			addSalesRows(b)
			r := openBytes(t, b.Build())
			defer func() { _ = r.Close() }()

			data := writeParquetBatches(t, r, ParquetOptions{Compression: codec}, 16)
			rows := readBack(t, data)
			require.Len(t, rows, 3)
			require.Equal(t, "CANADA", rows[0]["COUNTRY"])
		})
	}
}

func TestParquetCompressedInput(t *testing.T) {
	b := sastest.NewBuilder(
		sastest.Column{Name: "NAME", Char: true, Width: 12},
		sastest.Column{Name: "VALUE", Width: 8},
	)
	b.CompressTag = sastest.CompressRDC
	for i := 0; i < 100; i++ {
		b.AddRow("n", float64(i))
	}
	r := openBytes(t, b.Build())
	defer func() { _ = r.Close() }()

	data := writeParquetBatches(t, r, ParquetOptions{}, 64)
	rows := readBack(t, data)
	require.Len(t, rows, 100)
	require.Equal(t, 99.0, rows[99]["VALUE"])
}
