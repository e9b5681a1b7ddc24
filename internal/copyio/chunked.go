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

// ChunkedWriter is the "chunked write" shape: encoded rows are buffered
// into byte chunks of at most MaxChunkBytes and pushed through an
// io.Pipe, one write per chunk, to amortize per-call overhead. pgx's
// CopyFrom is itself pull-based, so the pipe's read side is what the
// driver actually reads from in a background goroutine; this shape
// reports the real server row count.
type ChunkedWriter struct {
	Conn          conn
	MaxChunkBytes int
}

func (c *ChunkedWriter) CopyBatch(ctx context.Context, spec model.CopySpec, rows []model.Row) (int64, error) {
	maxChunk := c.MaxChunkBytes
	if maxChunk <= 0 {
		maxChunk = 8 << 20
	}

	pr, pw := io.Pipe()

	type result struct {
		n   int64
		err error
	}
	done := make(chan result, 1)
	go func() {
		tag, err := c.Conn.PgConn().CopyFrom(ctx, pr, copySQL(spec))
		pr.CloseWithError(err)
		done <- result{n: tag.RowsAffected(), err: err}
	}()

	var chunk []byte
	var writeErr error
writeLoop:
	for _, row := range rows {
		chunk = EncodeRow(chunk, row)
		for len(chunk) >= maxChunk {
			if _, err := pw.Write(chunk[:maxChunk]); err != nil {
				writeErr = err
				break writeLoop
			}
			chunk = append(chunk[:0], chunk[maxChunk:]...)
		}
	}
	if writeErr == nil && len(chunk) > 0 {
		if _, err := pw.Write(chunk); err != nil {
			writeErr = err
		}
	}

	if writeErr != nil {
		pw.CloseWithError(writeErr)
	} else {
		pw.Close()
	}

	res := <-done
	if res.err != nil {
		return 0, res.err
	}
	if writeErr != nil {
		return 0, writeErr
	}
	return res.n, nil
}
