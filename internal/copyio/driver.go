// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package copyio

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Driver is the narrow capability interface the Bulk Loader programs
// against. The two on-wire shapes (chunked writer, file-like reader) sit
// behind it so callers never need to type-probe which one they hold;
// the shape is chosen once, at construction time.
type Driver interface {
	// CopyBatch writes every row of rows to spec's staging table and
	// returns the row count the driver reports, or -1 when the shape
	// cannot compute one (the caller then falls back to len(rows)).
	CopyBatch(ctx context.Context, spec model.CopySpec, rows []model.Row) (int64, error)
}

func copySQL(spec model.CopySpec) string {
	ident := pgx.Identifier{spec.Table}.Sanitize()
	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
	}
	return fmt.Sprintf(
		"COPY %s(%s) FROM STDIN WITH (FORMAT text, DELIMITER E'\\t', NULL '\\N')",
		ident, strings.Join(cols, ", "),
	)
}

// conn is the subset of *pgx.Conn the two shapes need; narrowed so tests
// can substitute a fake.
type conn interface {
	PgConn() *pgconn.PgConn
}
