// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"strings"
	"time"

	"github.com/sasdata/sas7bdat/internal/charenc"
)

// Compression identifies the row-payload compression scheme of a file.
type Compression uint8

// The available compression schemes.
const (
	CompressionNone Compression = iota
	// CompressionRLE is the run-length scheme tagged SASYZCRL.
	CompressionRLE
	// CompressionRDC is the Ross Data Compression variant tagged SASYZCR2.
	CompressionRDC
)

// String implements fmt.Stringer.
func (c Compression) String() string {
	switch c {
	case CompressionRLE:
		return "RLE"
	case CompressionRDC:
		return "RDC"
	default:
		return "None"
	}
}

// ColumnType is the physical storage type of a column.
type ColumnType uint8

// The physical column types. Numeric columns store partial-width IEEE-754
// doubles of 3 to 8 bytes; character columns store fixed-width padded text.
const (
	TypeNumeric   ColumnType = 1
	TypeCharacter ColumnType = 2
)

// String implements fmt.Stringer.
func (t ColumnType) String() string {
	if t == TypeCharacter {
		return "character"
	}
	return "numeric"
}

// ColumnKind is the logical kind of a column, derived from its physical
// type and its SAS format token.
type ColumnKind uint8

// The logical column kinds.
const (
	KindNumber ColumnKind = iota
	KindString
	KindDate
	KindDateTime
	KindTime
)

// String implements fmt.Stringer.
func (k ColumnKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindTime:
		return "time"
	default:
		return "number"
	}
}

// Measure is the measurement-level hint stored in the column attributes.
type Measure uint8

// Measure values.
const (
	MeasureUnknown Measure = iota
	MeasureNominal
	MeasureOrdinal
	MeasureScale
)

// Alignment is the display-alignment hint stored in the column attributes.
type Alignment uint8

// Alignment values.
const (
	AlignUnknown Alignment = iota
	AlignLeft
	AlignCenter
	AlignRight
)

// Column describes one column of the dataset. Columns are ordered by their
// stable zero-based Index; Offset and Width locate the column's bytes
// within a row.
type Column struct {
	Index          int
	Name           string
	Label          string
	Format         string
	FormatWidth    uint16
	FormatDecimals uint16
	Type           ColumnType
	Kind           ColumnKind
	Offset         int
	Width          int
	Measure        Measure
	Alignment      Alignment

	decoder charenc.Decoder
}

// Metadata is the decoded file header and column schema. It is immutable
// once the reader has been opened.
type Metadata struct {
	// Name is the dataset name recorded in the header.
	Name string
	// Label is the dataset label from the row-size subheader, if any.
	Label string
	// FileType is the 8-byte file type field, normally "DATA".
	FileType string
	Created  time.Time
	Modified time.Time
	// Release is the raw SAS release string, e.g. "9.0401M3".
	Release  string
	Version  Version
	Vendor   Vendor
	Platform Platform
	// Encoding is the resolved name of the file's character encoding.
	Encoding   string
	Endianness Endianness
	// Is64Bit reports whether the file uses the 64-bit page layout.
	Is64Bit     bool
	Compression Compression

	PageSize  int
	PageCount int64
	// RowLength is the byte length of one row, constant across the file.
	RowLength int
	// RowCount is the declared total row count. Iteration never emits more
	// rows than this, whatever the pages claim.
	RowCount int64
	// MixPageRowCount is the declared row capacity of a MIX page.
	MixPageRowCount int64

	Columns []Column
	// ColumnList is the optional display-ordering override; empty when the
	// file carries none.
	ColumnList []int16
}

// Column returns the column with the given zero-based index.
func (m *Metadata) Column(i int) *Column { return &m.Columns[i] }

// ColumnByName returns the first column with the given name, or nil.
func (m *Metadata) ColumnByName(name string) *Column {
	for i := range m.Columns {
		if m.Columns[i].Name == name {
			return &m.Columns[i]
		}
	}
	return nil
}

// formatKinds is the closed catalogue of SAS format tokens that promote a
// numeric column to a temporal kind. Tokens are matched case-insensitively
// after stripping the trailing width/decimal suffix; anything not listed
// stays a plain number.
var formatKinds = map[string]ColumnKind{
	"DATE":     KindDate,
	"DAY":      KindDate,
	"DDMMYY":   KindDate,
	"DDMMYYB":  KindDate,
	"DDMMYYC":  KindDate,
	"DDMMYYD":  KindDate,
	"DDMMYYN":  KindDate,
	"DDMMYYP":  KindDate,
	"DDMMYYS":  KindDate,
	"MMDDYY":   KindDate,
	"MMDDYYB":  KindDate,
	"MMDDYYC":  KindDate,
	"MMDDYYD":  KindDate,
	"MMDDYYN":  KindDate,
	"MMDDYYP":  KindDate,
	"MMDDYYS":  KindDate,
	"YYMMDD":   KindDate,
	"YYMMDDB":  KindDate,
	"YYMMDDC":  KindDate,
	"YYMMDDD":  KindDate,
	"YYMMDDN":  KindDate,
	"YYMMDDP":  KindDate,
	"YYMMDDS":  KindDate,
	"MMYY":     KindDate,
	"YYMM":     KindDate,
	"YYQ":      KindDate,
	"YYQR":     KindDate,
	"MONYY":    KindDate,
	"MONNAME":  KindDate,
	"MONTH":    KindDate,
	"WEEKDATE": KindDate,
	"WEEKDATX": KindDate,
	"WEEKDAY":  KindDate,
	"DOWNAME":  KindDate,
	"WORDDATE": KindDate,
	"WORDDATX": KindDate,
	"JULDAY":   KindDate,
	"JULIAN":   KindDate,
	"QTR":      KindDate,
	"QTRR":     KindDate,
	"YEAR":     KindDate,
	"E8601DA":  KindDate,
	"B8601DA":  KindDate,
	"MINGUO":   KindDate,

	"DATETIME": KindDateTime,
	"DATEAMPM": KindDateTime,
	"DTDATE":   KindDateTime,
	"DTMONYY":  KindDateTime,
	"DTWKDATX": KindDateTime,
	"DTYEAR":   KindDateTime,
	"DTYYQC":   KindDateTime,
	"MDYAMPM":  KindDateTime,
	"E8601DT":  KindDateTime,
	"B8601DT":  KindDateTime,

	"TIME":     KindTime,
	"TIMEAMPM": KindTime,
	"TOD":      KindTime,
	"HHMM":     KindTime,
	"HOUR":     KindTime,
	"MMSS":     KindTime,
	"E8601TM":  KindTime,
	"B8601TM":  KindTime,
}

// classifyFormat maps a format token onto the logical kind of a numeric
// column. The token may carry a width/decimal suffix ("DATETIME22.3") or a
// trailing period; both are stripped before the lookup.
func classifyFormat(format string) ColumnKind {
	token := strings.ToUpper(strings.TrimSpace(format))
	token = strings.TrimRight(token, "0123456789.")
	if token == "" {
		return KindNumber
	}
	if kind, ok := formatKinds[token]; ok {
		return kind
	}
	return KindNumber
}
