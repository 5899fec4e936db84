// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package sink writes decoded SAS7BDAT rows to tabular outputs. The
// Parquet sink consumes staged columnar batches; the CSV/TSV sink consumes
// streaming row views. Both follow the begin/push/finish capability set so
// conversion drivers can treat them uniformly.
package sink

import (
	"github.com/sasdata/sas7bdat"
)

// A Sink receives the contents of one dataset. Begin is called once with
// the frozen metadata and the selected column indices (in output order),
// then rows arrive through WriteRow or WriteBatch, and Finish flushes and
// closes the output. Mixing WriteRow and WriteBatch on one sink is not
// supported.
type Sink interface {
	Begin(md *sas7bdat.Metadata, columns []int) error
	WriteRow(rv *sas7bdat.RowView) error
	WriteBatch(b *sas7bdat.StagedBatch) error
	Finish() error
}

// AllColumns returns the identity selection for md.
func AllColumns(md *sas7bdat.Metadata) []int {
	cols := make([]int, len(md.Columns))
	for i := range cols {
		cols[i] = i
	}
	return cols
}
