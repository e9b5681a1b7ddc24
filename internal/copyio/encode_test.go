// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package copyio

import (
	"strings"
	"testing"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRoundTrip(t *testing.T, row model.Row) []any {
	t.Helper()
	encoded := EncodeRow(nil, row)
	require.True(t, strings.HasSuffix(string(encoded), "\n"))
	line := strings.TrimSuffix(string(encoded), "\n")
	return DecodeLine(line)
}

func TestRoundTripPlainRow(t *testing.T) {
	row := model.Row{int64(1), "hello"}
	got := decodeRoundTrip(t, row)
	assert.Equal(t, "1", got[0])
	assert.Equal(t, "hello", got[1])
}

func TestRoundTripAbsentField(t *testing.T) {
	row := model.Row{int64(1), nil}
	got := decodeRoundTrip(t, row)
	assert.Nil(t, got[1])
}

func TestRoundTripSpecialCharacters(t *testing.T) {
	row := model.Row{int64(1), "tab\there\nline\\slash"}
	got := decodeRoundTrip(t, row)
	assert.Equal(t, "tab\there\nline\\slash", got[1])
}

func TestRoundTripLiteralNullMarkerTextIsNotNull(t *testing.T) {
	row := model.Row{int64(1), `\N`}
	encoded := string(EncodeRow(nil, row))
	// On the wire, a literal backslash-N must be escaped so it never
	// collides with the real NULL marker.
	assert.Contains(t, encoded, `\\N`)

	got := decodeRoundTrip(t, row)
	assert.Equal(t, `\N`, got[1])
}

func TestEncodeBatchConcatenatesRows(t *testing.T) {
	rows := []model.Row{
		{int64(1), "a"},
		{int64(2), nil},
	}
	out := string(EncodeBatch(rows))
	assert.Equal(t, "1\ta\n2\t\\N\n", out)
}
