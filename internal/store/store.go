// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store owns the two distinct database handles the pipeline
// needs: a raw *pgx.Conn per consumer worker (opened inside the worker
// after it starts, never shared or inherited) and one instrumented
// *sqlx.DB for the Finalizer's DDL-heavy protocol.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/qustavo/sqlhooks/v2"
)

// Connect opens a dedicated connection for one consumer worker. Workers
// never share a connection: the source relied on a spawn-style process
// start specifically so database state would never be inherited, and a
// goroutine-per-worker implementation preserves that by opening the
// connection only after the worker has started running.
func Connect(ctx context.Context, databaseURL string) (*pgx.Conn, error) {
	return pgx.Connect(ctx, databaseURL)
}

var (
	driverOnce sync.Once
	driverErr  error
)

const hookedDriverName = "pgx-hooked"

func registerHookedDriver() {
	driverOnce.Do(func() {
		db := stdlib.GetDefaultDriver()
		sql.Register(hookedDriverName, sqlhooks.Wrap(db, &Hooks{}))
	})
}

// OpenFinalizer opens the instrumented *sqlx.DB handle used by the
// Finalizer for its DDL/DML protocol, wrapping the pgx stdlib driver with
// query-timing hooks.
func OpenFinalizer(databaseURL string) (*sqlx.DB, error) {
	registerHookedDriver()
	db, err := sqlx.Open(hookedDriverName, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: opening finalizer handle: %w", err)
	}
	return db, nil
}
