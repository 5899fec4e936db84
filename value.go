// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"math"
	"time"

	"github.com/sasdata/sas7bdat/internal/base"
)

// CellState is the three-valued presence discriminator of a cell. The core
// never produces CellNotCollected; it exists for longitudinal tooling that
// distinguishes absent observations from uncollected ones.
type CellState uint8

// CellState values.
const (
	CellPresent CellState = iota
	CellMissing
	CellNotCollected
)

// Missing-value tags. A missing numeric cell carries the tag SAS stored in
// the NaN payload: '.' for plain system missing, '_' and 'A'..'Z' for the
// tagged variants. String cells and not-collected cells carry TagNone.
const (
	TagNone       byte = 0
	TagSystem     byte = '.'
	TagUnderscore byte = '_'
)

const (
	nanExpMask  = 0x7FF0000000000000
	nanFracMask = 0x000FFFFFFFFFFFFF
)

// missingTag classifies a numeric bit pattern. ok is true when the pattern
// is one of the SAS special NaN encodings; tag is then '.', '_', or a
// letter. The tag byte is stored complemented in bits 40..47.
func missingTag(bits uint64) (tag byte, ok bool) {
	if bits&nanExpMask != nanExpMask || bits&nanFracMask == 0 {
		return TagNone, false
	}
	switch t := ^byte(bits >> 40); {
	case t == 0:
		return TagUnderscore, true
	case t >= 2 && t <= 27:
		return 'A' + t - 2, true
	default:
		return TagSystem, true
	}
}

// Temporal conversions. SAS counts from 1960-01-01; the staging layer and
// the accessors below present the Unix epoch instead, which is a constant
// 3653-day shift. Leap seconds are not adjusted for.

// sasDaysToUnixDays converts a SAS date (days since 1960) to days since
// 1970, discarding any fractional day.
func sasDaysToUnixDays(v float64) int32 {
	return int32(int64(v) - sasEpochDays)
}

// sasSecondsToUnixMicros converts a SAS datetime (seconds since 1960) to
// microseconds since 1970.
func sasSecondsToUnixMicros(v float64) int64 {
	return int64(math.Round(v*1e6)) - sasEpochSeconds*1e6
}

// sasSecondsToDayMicros converts a SAS time (seconds since midnight) to
// microseconds, keeping microsecond resolution.
func sasSecondsToDayMicros(v float64) int64 {
	return int64(math.Round(v * 1e6))
}

// unixDaysToDate expands days since 1970 into a calendar date under the
// proleptic Gregorian calendar.
func unixDaysToDate(days int32) (year int, month time.Month, day int) {
	return time.Unix(int64(days)*86400, 0).UTC().Date()
}

// dateToUnixDays is the inverse of unixDaysToDate.
func dateToUnixDays(year int, month time.Month, day int) int32 {
	return int32(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// Cell is one decoded cell of a row. String cells borrow their bytes from
// the reader's row buffer: the view is valid only until the iterator
// advances. Scalar cells are self-contained.
type Cell struct {
	col   *Column
	state CellState
	tag   byte
	num   float64
	raw   []byte
}

// Column returns the schema column this cell belongs to.
func (c *Cell) Column() *Column { return c.col }

// State returns the cell's presence discriminator.
func (c *Cell) State() CellState { return c.state }

// Missing reports whether the cell holds no value.
func (c *Cell) Missing() bool { return c.state != CellPresent }

// MissingTag returns the SAS missing tag ('.', '_', 'A'..'Z') for a missing
// numeric cell, and TagNone otherwise.
func (c *Cell) MissingTag() byte { return c.tag }

// Bytes returns the trimmed bytes of a string cell, borrowed from the row
// buffer. It returns nil for numeric cells.
func (c *Cell) Bytes() []byte { return c.raw }

// StringValue decodes a string cell to UTF-8, falling back to the file's
// declared legacy encoding when the bytes are not valid UTF-8. Missing
// cells decode to "".
func (c *Cell) StringValue() (string, error) {
	if c.state != CellPresent || len(c.raw) == 0 {
		return "", nil
	}
	s, ok := c.col.decoder.Decode(c.raw)
	if !ok {
		return "", base.UnsupportedEncodingf(
			"sas7bdat: column %s holds bytes that are neither UTF-8 nor decodable as %s",
			c.col.Name, c.col.decoder.Name())
	}
	return s, nil
}

// Float64 returns the numeric value of the cell. Missing cells return 0;
// check Missing first.
func (c *Cell) Float64() float64 { return c.num }

// Days returns a date cell as days since 1970-01-01.
func (c *Cell) Days() int32 { return sasDaysToUnixDays(c.num) }

// Date returns a date cell as a UTC midnight time.
func (c *Cell) Date() time.Time {
	y, m, d := unixDaysToDate(c.Days())
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Micros returns a datetime cell as microseconds since 1970-01-01 UTC, or
// a time cell as microseconds since midnight.
func (c *Cell) Micros() int64 {
	if c.col.Kind == KindTime {
		return sasSecondsToDayMicros(c.num)
	}
	return sasSecondsToUnixMicros(c.num)
}

// DateTime returns a datetime cell as a UTC time with microsecond
// precision.
func (c *Cell) DateTime() time.Time {
	us := sasSecondsToUnixMicros(c.num)
	return time.Unix(us/1e6, (us%1e6)*1e3).UTC()
}

// Duration returns a time cell as a duration since midnight.
func (c *Cell) Duration() time.Duration {
	return time.Duration(sasSecondsToDayMicros(c.num)) * time.Microsecond
}
