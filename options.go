// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"github.com/cockroachdb/redact"

	"github.com/sasdata/sas7bdat/internal/base"
)

// DefaultBatchRows is the row-group size used by NewBatchIter when the
// caller passes zero.
const DefaultBatchRows = 65536

// Options holds the parameters for opening a Reader.
type Options struct {
	// Logger is used for the once-per-file diagnostics emitted when pages
	// or pointer entries are skipped. Defaults to base.DefaultLogger.
	Logger base.Logger
}

// EnsureDefaults ensures that the default values for all options are set if
// a valid value was not already specified, returning the updated options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	return o
}

// Metrics accumulates counters over the lifetime of a Reader. The counts
// cover every iterator created from the reader.
type Metrics struct {
	// PagesRead is the number of pages loaded from the file.
	PagesRead int64
	// RowsEmitted is the number of rows produced by row or batch iteration.
	RowsEmitted int64
	// BatchesStaged is the number of columnar batches materialised.
	BatchesStaged int64
	// SkippedPointerEntries counts truncated-row and malformed pointer
	// entries that were skipped.
	SkippedPointerEntries int64
	// UnknownPages counts pages whose kind was not recognised.
	UnknownPages int64
}

// SafeFormat implements redact.SafeFormatter.
func (m Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("pages=%d rows=%d batches=%d skipped-pointers=%d unknown-pages=%d",
		m.PagesRead, m.RowsEmitted, m.BatchesStaged, m.SkippedPointerEntries, m.UnknownPages)
}

// String implements fmt.Stringer.
func (m Metrics) String() string {
	return redact.StringWithoutMarkers(m)
}
