// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package copyio

import (
	"context"
	"io"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/model"
)

// RowReader is the "file-like reader" shape: a hand-rolled io.Reader
// that encodes one row at a time as pgx pulls bytes from it directly,
// with no intermediate chunk buffer. It deliberately does not compute a
// row count (always returns -1, the "unknown" sentinel) to mirror the
// file-like driver path's contract, even though this particular
// implementation could tally rows as it encodes them.
type RowReader struct {
	Conn conn
}

func (c *RowReader) CopyBatch(ctx context.Context, spec model.CopySpec, rows []model.Row) (int64, error) {
	r := &rowSource{rows: rows}
	_, err := c.Conn.PgConn().CopyFrom(ctx, r, copySQL(spec))
	if err != nil {
		return 0, err
	}
	return -1, nil
}

// rowSource implements io.Reader, encoding rows on demand as the caller
// pulls from it. It never buffers more than the tail of the
// currently-encoding row.
type rowSource struct {
	rows []model.Row
	next int
	buf  []byte
}

func (r *rowSource) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.next >= len(r.rows) {
			return 0, io.EOF
		}
		r.buf = EncodeRow(r.buf[:0], r.rows[r.next])
		r.next++
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
