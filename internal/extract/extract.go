// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package extract converts one raw XML group subtree into a validated
// GroupRecord and its child EventRecords, applying the strict id
// validation and skip policies.
package extract

import (
	"strconv"
	"strings"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/model"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/xmlstream"
)

// Result is the output of extracting one group subtree: at most one
// group record, its surviving event records, and a count of records
// dropped by id validation.
type Result struct {
	Group   *model.GroupRecord
	Events  []model.EventRecord
	Skipped int
}

// Extract applies the exhaustive skip policies of the extractor: a group
// (and its entire subtree) is dropped if its id does not parse as a
// signed 64-bit integer; an event is dropped on its own if its id does
// not parse, leaving the rest of the subtree unaffected.
func Extract(sub *xmlstream.GroupSubtree) Result {
	groupID, ok := parseID(sub.IDAttr)
	if !ok {
		return Result{Skipped: 1}
	}

	group := &model.GroupRecord{ID: groupID, Name: trim(sub.NameAttr)}

	var events []model.EventRecord
	skipped := 0
	for _, e := range sub.Events {
		eventID, ok := parseID(e.IDAttr)
		if !ok {
			skipped++
			continue
		}
		events = append(events, model.EventRecord{
			ID:      eventID,
			GroupID: groupID,
			Name:    trim(e.Text),
		})
	}

	return Result{Group: group, Events: events, Skipped: skipped}
}

func parseID(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func trim(s string) string {
	return strings.TrimSpace(s)
}
