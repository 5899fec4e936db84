// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"github.com/sasdata/sas7bdat/internal/base"
)

// The error taxonomy of the package. Every error returned from a public
// entry point is marked with exactly one of these; match with errors.Is.
// I/O failures are returned unmarked, wrapping the underlying error from
// the file handle.
var (
	// ErrInvalidHeader indicates the file is not a SAS7BDAT file or its
	// header declares impossible geometry.
	ErrInvalidHeader = base.ErrInvalidHeader
	// ErrInvalidCompressed indicates an RLE or RDC row payload could not
	// be reconstructed.
	ErrInvalidCompressed = base.ErrInvalidCompressed
	// ErrSchemaMismatch indicates the metadata subheaders are internally
	// inconsistent.
	ErrSchemaMismatch = base.ErrSchemaMismatch
	// ErrUnsupportedEncoding indicates character data that is neither
	// valid UTF-8 nor decodable under the file's declared encoding.
	ErrUnsupportedEncoding = base.ErrUnsupportedEncoding
	// ErrWriterNotClosed indicates a sink bug: a Parquet column writer
	// was left open on an exit path.
	ErrWriterNotClosed = base.ErrWriterNotClosed
)
