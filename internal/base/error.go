// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import (
	"github.com/cockroachdb/errors"
)

// ErrInvalidHeader is a marker indicating the file header is not a valid
// SAS7BDAT header: bad magic, impossible page geometry, missing required
// fields.
var ErrInvalidHeader = errors.New("sas7bdat: invalid header")

// ErrInvalidCompressed is a marker indicating an RLE or RDC row payload
// could not be reconstructed: the stream ended early, overran the row
// buffer, or referenced bytes outside the decoded prefix.
var ErrInvalidCompressed = errors.New("sas7bdat: invalid compressed data")

// ErrSchemaMismatch is a marker indicating the metadata subheaders do not
// agree with each other: column counts disagree, an offset or width falls
// outside the row, or a text-heap reference is truncated.
var ErrSchemaMismatch = errors.New("sas7bdat: schema mismatch")

// ErrUnsupportedEncoding is a marker indicating the file declares a
// character encoding outside the supported table and the bytes are not
// valid UTF-8.
var ErrUnsupportedEncoding = errors.New("sas7bdat: unsupported encoding")

// ErrWriterNotClosed is a marker indicating a Parquet row group was left
// with an open column writer. It reports a bug in the sink, not a problem
// with the input data.
var ErrWriterNotClosed = errors.New("sas7bdat: column writer not closed")

// InvalidHeaderf formats according to a format specifier and returns the
// string as an error value marked as an invalid-header error.
func InvalidHeaderf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidHeader)
}

// InvalidCompressedf formats according to a format specifier and returns
// the string as an error value marked as an invalid-compressed error.
func InvalidCompressedf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidCompressed)
}

// SchemaMismatchf formats according to a format specifier and returns the
// string as an error value marked as a schema-mismatch error.
func SchemaMismatchf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrSchemaMismatch)
}

// UnsupportedEncodingf formats according to a format specifier and returns
// the string as an error value marked as an unsupported-encoding error.
func UnsupportedEncodingf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnsupportedEncoding)
}

// MarkWriterNotClosed marks err as a writer-not-closed invariant failure.
func MarkWriterNotClosed(err error) error {
	return errors.Mark(err, ErrWriterNotClosed)
}
