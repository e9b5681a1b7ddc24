// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package batch buckets homogeneous rows into bounded-size batches under
// dual row-count and byte-size limits.
package batch

import (
	"fmt"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/model"
)

// Builder accumulates rows of one Kind into Batch values bounded by
// MaxRows and MaxBytes. Not safe for concurrent use; the pipeline runs
// one Builder per kind inside the single producer goroutine.
type Builder struct {
	kind     model.Kind
	maxRows  int
	maxBytes int

	rows      []model.Row
	byteEst   int
}

func New(kind model.Kind, maxRows, maxBytes int) *Builder {
	return &Builder{kind: kind, maxRows: maxRows, maxBytes: maxBytes}
}

// rowEstimate approximates the on-wire encoded size of row: one byte for
// the trailing record terminator, (arity-1) bytes for field separators,
// 2 bytes per absent field (the \N marker), and len(fmt.Sprint(v)) bytes
// per present field. Need not be exact, only cheap and monotone.
func rowEstimate(row model.Row) int {
	n := 1 // record terminator
	if len(row) > 1 {
		n += len(row) - 1 // separators
	}
	for _, v := range row {
		if v == nil {
			n += 2
		} else {
			n += len(fmt.Sprint(v))
		}
	}
	return n
}

// Add appends one row, possibly emitting one or two batches as a side
// effect: the previously accumulated batch (if this row would have
// overflowed it) and/or the batch now containing row itself (if row
// alone reaches or exceeds a limit, e.g. maxRows==1 or a single
// oversized row). A single row whose own estimated size exceeds maxBytes
// is always emitted as a one-row batch, never dropped.
func (b *Builder) Add(row model.Row) []*model.Batch {
	est := rowEstimate(row)

	var out []*model.Batch
	if len(b.rows) > 0 && (len(b.rows)+1 > b.maxRows || b.byteEst+est > b.maxBytes) {
		if prior := b.drain(); prior != nil {
			out = append(out, prior)
		}
	}

	b.rows = append(b.rows, row)
	b.byteEst += est

	if len(b.rows) >= b.maxRows || b.byteEst >= b.maxBytes {
		if cur := b.drain(); cur != nil {
			out = append(out, cur)
		}
	}

	return out
}

// Flush emits the currently accumulated batch, or nil if empty.
func (b *Builder) Flush() *model.Batch {
	return b.drain()
}

func (b *Builder) drain() *model.Batch {
	if len(b.rows) == 0 {
		return nil
	}
	batch := &model.Batch{Kind: b.kind, Rows: b.rows}
	b.rows = nil
	b.byteEst = 0
	return batch
}
