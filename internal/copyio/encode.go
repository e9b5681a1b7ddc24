// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package copyio adapts the pipeline's typed rows onto the store's
// native bulk-copy-from-stream wire protocol: text format, tab-delimited
// fields, line-feed-terminated rows, backslash-escaped special
// characters, and the two-character \N marker for absent fields.
package copyio

import (
	"strconv"
	"strings"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/model"
)

const nullMarker = `\N`

// escapeField replaces backslash, tab, line feed, carriage return,
// backspace, form feed, and vertical tab with their backslash-escape
// sequences, per the COPY text format.
func escapeField(s string) string {
	if !strings.ContainsAny(s, "\\\t\n\r\b\f\v") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\v':
			b.WriteString(`\v`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// fieldText renders one row value as its on-wire field text, before
// escaping. nil renders as the NULL marker itself (escaping does not
// apply to the marker).
func fieldText(v any) (text string, isNull bool) {
	if v == nil {
		return nullMarker, true
	}
	switch t := v.(type) {
	case string:
		return t, false
	case int64:
		return strconv.FormatInt(t, 10), false
	case int:
		return strconv.Itoa(t), false
	default:
		return "", false
	}
}

// EncodeRow appends the tab-delimited, newline-terminated encoding of
// row to dst and returns the result.
func EncodeRow(dst []byte, row model.Row) []byte {
	for i, v := range row {
		if i > 0 {
			dst = append(dst, '\t')
		}
		text, isNull := fieldText(v)
		if isNull {
			dst = append(dst, text...)
		} else {
			dst = append(dst, escapeField(text)...)
		}
	}
	dst = append(dst, '\n')
	return dst
}

// EncodeBatch renders every row of rows in order, concatenated.
func EncodeBatch(rows []model.Row) []byte {
	var buf []byte
	for _, r := range rows {
		buf = EncodeRow(buf, r)
	}
	return buf
}

// DecodeLine is the inverse of EncodeRow for a single line (without its
// trailing newline): tab-split, unescape, and \N maps to an absent
// field (nil). Used by round-trip tests.
func DecodeLine(line string) []any {
	fields := strings.Split(line, "\t")
	out := make([]any, len(fields))
	for i, f := range fields {
		if f == nullMarker {
			out[i] = nil
			continue
		}
		out[i] = unescapeField(f)
	}
	return out
}

func unescapeField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
