// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package model holds the record and batch types that cross the
// producer/consumer boundary.
package model

// GroupRecord is one validated group-event row.
type GroupRecord struct {
	ID   int64
	Name string // empty means absent
}

// EventRecord is one validated event row, tied to its enclosing group.
type EventRecord struct {
	ID      int64
	GroupID int64
	Name    string // empty means absent
}

// Kind tags a Batch with the staging table it targets.
type Kind int

const (
	KindGroup Kind = iota
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Row is one encodable tuple: a group row has 2 fields (id, name), an
// event row has 3 (id, group_id, name). A nil element means the field is
// absent and must be encoded as the wire NULL marker.
type Row []any

// GroupRow builds the wire-row for a GroupRecord. An empty Name encodes
// as an absent field.
func GroupRow(g GroupRecord) Row {
	row := make(Row, 2)
	row[0] = g.ID
	if g.Name == "" {
		row[1] = nil
	} else {
		row[1] = g.Name
	}
	return row
}

// EventRow builds the wire-row for an EventRecord.
func EventRow(e EventRecord) Row {
	row := make(Row, 3)
	row[0] = e.ID
	row[1] = e.GroupID
	if e.Name == "" {
		row[2] = nil
	} else {
		row[2] = e.Name
	}
	return row
}

// Batch is an immutable, typed chunk of rows crossing the
// producer->consumer boundary. Once handed to the queue, neither the
// producer nor any consumer mutates it.
type Batch struct {
	Kind Kind
	Rows []Row
}

// CopySpec is the static per-kind configuration the Loader needs to issue
// a bulk-copy command: the target table and its ordered column list.
type CopySpec struct {
	Table   string
	Columns []string
}

// ReaderStats are the per-producer counters accumulated while streaming.
type ReaderStats struct {
	GroupsSeen     int64
	GroupsEmitted  int64
	EventsEmitted  int64
	SkippedRecords int64
}
