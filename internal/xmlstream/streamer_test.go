// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xmlstream

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeXML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStreamerSingleGroupWithTwoEvents(t *testing.T) {
	path := writeXML(t, `<xml><group_event id="1" name="G"><event id="10">Ten</event><event id="11">Eleven</event></group_event></xml>`)

	s, err := Open(path, "group_event", "event", true, true)
	require.NoError(t, err)
	defer s.Close()

	sub, err, ok := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", sub.IDAttr)
	assert.Equal(t, "G", sub.NameAttr)
	require.Len(t, sub.Events, 2)
	assert.Equal(t, "10", sub.Events[0].IDAttr)
	assert.Equal(t, "Ten", sub.Events[0].Text)
	assert.Equal(t, "11", sub.Events[1].IDAttr)
	assert.Equal(t, "Eleven", sub.Events[1].Text)

	_, err, ok = s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, s.Stats.GroupsSeen)
}

func TestStreamerMultipleGroupsInDocumentOrder(t *testing.T) {
	path := writeXML(t, `<xml>
		<group_event id="1"><event id="10">a</event></group_event>
		<group_event id="2"><event id="20">b</event></group_event>
	</xml>`)

	s, err := Open(path, "group_event", "event", true, true)
	require.NoError(t, err)
	defer s.Close()

	var ids []string
	for {
		sub, err, ok := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		ids = append(ids, sub.IDAttr)
	}
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.EqualValues(t, 2, s.Stats.GroupsSeen)
}

func TestStreamerGroupWithoutIDStillYielded(t *testing.T) {
	// The streamer does not validate ids; a missing id attribute is the
	// Extractor's skip policy to enforce, not the streamer's.
	path := writeXML(t, `<xml><group_event><event id="10">x</event></group_event><group_event id="1"></group_event></xml>`)

	s, err := Open(path, "group_event", "event", true, true)
	require.NoError(t, err)
	defer s.Close()

	sub, err, ok := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "", sub.IDAttr)

	sub, err, ok = s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", sub.IDAttr)
}

func TestStreamerEmptyDocumentYieldsNothing(t *testing.T) {
	path := writeXML(t, `<xml></xml>`)

	s, err := Open(path, "group_event", "event", true, true)
	require.NoError(t, err)
	defer s.Close()

	_, err, ok := s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 0, s.Stats.GroupsSeen)
}

func TestStreamerIgnoresDescendantEventsBelowDirectChildren(t *testing.T) {
	path := writeXML(t, `<xml><group_event id="1">
		<event id="10">direct</event>
		<nested><event id="99">not-a-direct-child</event></nested>
	</group_event></xml>`)

	s, err := Open(path, "group_event", "event", true, true)
	require.NoError(t, err)
	defer s.Close()

	sub, err, ok := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, sub.Events, 1)
	assert.Equal(t, "10", sub.Events[0].IDAttr)
}

func TestStreamerMissingFileIsXMLFatal(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.xml"), "group_event", "event", true, true)
	require.Error(t, err)
}

func TestStreamerWellFormednessErrorWithoutRecoverIsFatal(t *testing.T) {
	path := writeXML(t, `<xml><group_event id="1"><event id="10">Ok</event><event id="11">Broken</group_event></xml>`)

	s, err := Open(path, "group_event", "event", false, true)
	require.NoError(t, err)
	defer s.Close()

	_, err, ok := s.Next()
	require.Error(t, err)
	assert.False(t, ok)
}

func TestStreamerRecoverKeepsPartialContentOfMalformedSubtree(t *testing.T) {
	// The second event's closing tag is mismatched. encoding/xml latches
	// a well-formedness error for the rest of the document, so nothing
	// after this subtree can be recovered, but the group itself and the
	// event already decoded before the mismatch (id=10) survive.
	path := writeXML(t, `<xml><group_event id="1"><event id="10">Ok</event><event id="11">Broken</group_event></xml>`)

	s, err := Open(path, "group_event", "event", true, true)
	require.NoError(t, err)
	defer s.Close()

	sub, err, ok := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", sub.IDAttr)
	require.Len(t, sub.Events, 1)
	assert.Equal(t, "10", sub.Events[0].IDAttr)

	_, err, ok = s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}
