// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package sas7bdat decodes SAS7BDAT dataset files: the paged, optionally
// RLE- or RDC-compressed binary format produced by SAS. A Reader exposes
// the dataset metadata, a streaming row iterator, and a columnar batch
// iterator suited to feeding a Parquet writer (see the sink package).
package sas7bdat

import (
	"io"
	"os"

	"github.com/sasdata/sas7bdat/internal/charenc"
)

// ReadableFile is the handle a Reader reads pages from. *os.File satisfies
// it.
type ReadableFile interface {
	io.ReaderAt
	io.Closer
}

// Reader decodes one SAS7BDAT file. It exclusively owns the file handle,
// the page buffer, and the decompression scratch; the metadata is frozen at
// open time and shared read-only with iterators and the staging layer.
//
// A Reader is not safe for concurrent use. Parallel conversion jobs should
// run one Reader per file.
type Reader struct {
	file ReadableFile
	opts *Options
	hdr  fileHeader
	meta *Metadata
	dec  charenc.Decoder

	pageBuf []byte
	warned  map[string]struct{}
	metrics Metrics
}

// Open opens the named file and decodes its header and metadata. opts may
// be nil.
func Open(path string, opts *Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// NewReader decodes the header and metadata from f and returns a Reader
// that owns it. On error f is not closed.
func NewReader(f ReadableFile, opts *Options) (*Reader, error) {
	opts = opts.EnsureDefaults()
	hdr, err := parseHeader(f)
	if err != nil {
		return nil, err
	}
	dec, _ := charenc.ForName(hdr.encoding)

	walker, err := walkMetadata(f, &hdr, opts.Logger)
	if err != nil {
		return nil, err
	}
	meta, err := walker.freeze(dec)
	if err != nil {
		return nil, err
	}

	return &Reader{
		file:    f,
		opts:    opts,
		hdr:     hdr,
		meta:    meta,
		dec:     dec,
		pageBuf: make([]byte, hdr.pageSize),
		warned:  make(map[string]struct{}),
	}, nil
}

// Metadata returns the decoded header and column schema. The returned
// value is immutable and remains valid after Close.
func (r *Reader) Metadata() *Metadata { return r.meta }

// Metrics returns a snapshot of the reader's counters.
func (r *Reader) Metrics() Metrics { return r.metrics }

// Close closes the underlying file. Outstanding row views and staged
// batches become invalid.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// warnOncef logs a diagnostic at most once per key per file. Skipped pages
// and pointer entries are diagnostics, never errors.
func (r *Reader) warnOncef(key, format string, args ...interface{}) {
	if _, ok := r.warned[key]; ok {
		return
	}
	r.warned[key] = struct{}{}
	r.opts.Logger.Infof(format, args...)
}
