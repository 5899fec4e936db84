// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package sas7bdat

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/swiss"
)

// maxDictEntries bounds the distinct values a staged string column may
// dictionary-encode. Past the bound the dictionary is disabled for the
// batch and the column falls back to plain offsets.
const maxDictEntries = 4096

// Dictionary interns the distinct values of one string column within one
// staged batch. Values are keyed by their xxhash digest; the stored bytes
// are kept in a private arena so ids stay valid while the batch lives.
type Dictionary struct {
	m       swiss.Map[uint64, int32]
	entries []byte
	offs    []uint32
	dead    bool
}

func newDictionary() *Dictionary {
	d := &Dictionary{offs: make([]uint32, 1, maxDictEntries+1)}
	d.m.Init(512)
	return d
}

// reset clears the dictionary for the next batch. The hash map is rebuilt
// from scratch; its backing groups are cheap next to the batch arenas.
func (d *Dictionary) reset() {
	d.m = swiss.Map[uint64, int32]{}
	d.m.Init(512)
	d.entries = d.entries[:0]
	d.offs = d.offs[:1]
	d.dead = false
}

// add interns b and returns its id. The second result is false once the
// dictionary has been disabled, either by exceeding the entry bound or by
// an xxhash collision between distinct values.
func (d *Dictionary) add(b []byte) (int32, bool) {
	if d.dead {
		return -1, false
	}
	h := xxhash.Sum64(b)
	if id, ok := d.m.Get(h); ok {
		if bytes.Equal(d.Value(id), b) {
			return id, true
		}
		d.dead = true
		return -1, false
	}
	if d.Len() >= maxDictEntries {
		d.dead = true
		return -1, false
	}
	id := int32(d.Len())
	d.entries = append(d.entries, b...)
	d.offs = append(d.offs, uint32(len(d.entries)))
	d.m.Put(h, id)
	return id, true
}

// Len returns the number of interned values.
func (d *Dictionary) Len() int { return len(d.offs) - 1 }

// Disabled reports whether the dictionary was abandoned for the batch.
func (d *Dictionary) Disabled() bool { return d.dead }

// Value returns the bytes of the interned value with the given id.
func (d *Dictionary) Value(id int32) []byte {
	return d.entries[d.offs[id]:d.offs[id+1]]
}
