// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMissingTag(t *testing.T) {
	// Plain system missing: the canonical FF FF FE 00... pattern.
	tag, ok := missingTag(0xFFFFFE0000000000)
	require.True(t, ok)
	require.Equal(t, TagSystem, tag)

	// Underscore: complemented tag byte 0x00 means payload 0xFF.
	tag, ok = missingTag(0xFFFFFF0000000000)
	require.True(t, ok)
	require.Equal(t, TagUnderscore, tag)

	// Letters A..Z are complemented 2..27.
	tag, ok = missingTag(0xFFFF<<48 | uint64(^byte(2))<<40)
	require.True(t, ok)
	require.Equal(t, byte('A'), tag)
	tag, ok = missingTag(0xFFFF<<48 | uint64(^byte(27))<<40)
	require.True(t, ok)
	require.Equal(t, byte('Z'), tag)

	// Ordinary numbers are not missing.
	_, ok = missingTag(0x4000000000000000)
	require.False(t, ok)
	// Infinity has a zero fraction: not missing.
	_, ok = missingTag(0x7FF0000000000000)
	require.False(t, ok)
	// Zero is a value, not a missing marker.
	_, ok = missingTag(0)
	require.False(t, ok)
}

func TestEpochConversions(t *testing.T) {
	// 12054 days after 1960-01-01 is 1993-01-01; 8401 days after 1970.
	require.Equal(t, int32(8401), sasDaysToUnixDays(12054))
	require.Equal(t, int32(-3653), sasDaysToUnixDays(0))
	// Fractional days are discarded.
	require.Equal(t, int32(8401), sasDaysToUnixDays(12054.9))

	require.Equal(t, int64(0), sasSecondsToUnixMicros(3653*86400))
	require.Equal(t, int64(1_500_000), sasSecondsToUnixMicros(3653*86400+1.5))

	require.Equal(t, int64(45_045_500_000), sasSecondsToDayMicros(45045.5))
	require.Equal(t, int64(0), sasSecondsToDayMicros(0))
}

// Date round trip over the full supported range, 1582-10-15 through
// 9999-12-31.
func TestDateRoundTrip(t *testing.T) {
	start := dateToUnixDays(1582, time.October, 15)
	end := dateToUnixDays(9999, time.December, 31)
	require.Less(t, start, end)

	check := func(days int32) {
		y, m, d := unixDaysToDate(days)
		require.Equal(t, days, dateToUnixDays(y, m, d), "days=%d (%04d-%02d-%02d)", days, y, m, d)
	}
	check(start)
	check(end)
	check(0)     // 1970-01-01
	check(-3653) // 1960-01-01
	check(8401)  // 1993-01-01
	for days := start; days <= end; days += 997 {
		check(days)
	}
}

func TestDateRoundTripKnownDates(t *testing.T) {
	y, m, d := unixDaysToDate(8401)
	require.Equal(t, 1993, y)
	require.Equal(t, time.January, m)
	require.Equal(t, 1, d)

	// Leap-year boundary.
	require.Equal(t, dateToUnixDays(2000, time.February, 29)+1, dateToUnixDays(2000, time.March, 1))
	require.Equal(t, dateToUnixDays(1900, time.February, 28)+1, dateToUnixDays(1900, time.March, 1))
}

func TestDateTimeRoundTripMicros(t *testing.T) {
	for _, us := range []int64{0, 1, 999_999, 725_891_445_500_000, -315_619_200_000_000} {
		ts := time.Unix(us/1e6, us%1e6*1e3).UTC()
		require.Equal(t, us, ts.UnixMicro(), "us=%d", us)
	}
}
