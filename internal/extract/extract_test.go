// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package extract

import (
	"testing"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/xmlstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractValidGroupWithTwoEvents(t *testing.T) {
	sub := &xmlstream.GroupSubtree{
		IDAttr:   "1",
		NameAttr: "G",
		Events: []xmlstream.EventSubtree{
			{IDAttr: "10", Text: "Ten"},
			{IDAttr: "11", Text: "Eleven"},
		},
	}

	r := Extract(sub)
	require.NotNil(t, r.Group)
	assert.Equal(t, int64(1), r.Group.ID)
	assert.Equal(t, "G", r.Group.Name)
	require.Len(t, r.Events, 2)
	assert.Equal(t, int64(10), r.Events[0].ID)
	assert.Equal(t, int64(1), r.Events[0].GroupID)
	assert.Equal(t, "Ten", r.Events[0].Name)
	assert.Equal(t, 0, r.Skipped)
}

func TestExtractGroupWithoutIDDropsWholeSubtree(t *testing.T) {
	sub := &xmlstream.GroupSubtree{
		IDAttr: "",
		Events: []xmlstream.EventSubtree{{IDAttr: "10", Text: "x"}},
	}

	r := Extract(sub)
	assert.Nil(t, r.Group)
	assert.Empty(t, r.Events)
	assert.Equal(t, 1, r.Skipped)
}

func TestExtractEventWithoutIDIsSkippedOnly(t *testing.T) {
	sub := &xmlstream.GroupSubtree{
		IDAttr: "1",
		Events: []xmlstream.EventSubtree{
			{IDAttr: "", Text: "no-id"},
			{IDAttr: "10", Text: "ok"},
		},
	}

	r := Extract(sub)
	require.NotNil(t, r.Group)
	assert.Equal(t, "", r.Group.Name)
	require.Len(t, r.Events, 1)
	assert.Equal(t, int64(10), r.Events[0].ID)
	assert.Equal(t, "ok", r.Events[0].Name)
	assert.Equal(t, 1, r.Skipped)
}

func TestExtractUnparseableIDIsTreatedAsMissing(t *testing.T) {
	sub := &xmlstream.GroupSubtree{IDAttr: "not-a-number"}
	r := Extract(sub)
	assert.Nil(t, r.Group)
	assert.Equal(t, 1, r.Skipped)
}

func TestExtractNameIsTrimmedAndEmptyBecomesAbsent(t *testing.T) {
	sub := &xmlstream.GroupSubtree{
		IDAttr:   "1",
		NameAttr: "   ",
		Events: []xmlstream.EventSubtree{
			{IDAttr: "10", Text: "  padded  "},
		},
	}

	r := Extract(sub)
	assert.Equal(t, "", r.Group.Name)
	assert.Equal(t, "padded", r.Events[0].Name)
}
