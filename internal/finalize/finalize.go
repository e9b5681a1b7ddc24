// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package finalize implements the constraint-drop/rebuild protocol that
// turns the unlogged, constraint-free staging tables into the
// deduplicated, constraint-bearing final tables. Every drop is phrased
// with IF EXISTS, and every constraint and index the protocol creates is
// dropped earlier in the same run, so the whole protocol is safe to run
// twice over the same staging contents.
package finalize

import (
	"context"
	"fmt"

	"github.com/ClusterCockpit/xml2pg-ingest/pkg/log"
	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
)

// Finalizer holds the configurable table names consumed (not owned) by
// the pipeline's store-side schema contract.
type Finalizer struct {
	GroupsTable        string
	EventsTable        string
	StagingGroupsTable string
	StagingEventsTable string
}

const (
	fkName     = "fk_events_group_event_id"
	groupsPK   = "pk_groups"
	eventsPK   = "pk_events"
	eventsIdx  = "idx_events_group_event_id"
)

func (f Finalizer) id(name string) string { return pgx.Identifier{name}.Sanitize() }

// steps renders the ordered SQL statements of the finalization protocol.
// Split out from Run so the exact ordering can be asserted without a
// live database connection.
func (f Finalizer) steps() []string {
	groups, events := f.id(f.GroupsTable), f.id(f.EventsTable)
	stgGroups, stgEvents := f.id(f.StagingGroupsTable), f.id(f.StagingEventsTable)

	return []string{
		fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s`, events, fkName),
		fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s`, groups, groupsPK),
		fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s`, events, eventsPK),
		fmt.Sprintf(`DROP INDEX IF EXISTS %s`, f.id(eventsIdx)),
		fmt.Sprintf(`TRUNCATE %s`, groups),
		fmt.Sprintf(`TRUNCATE %s`, events),
		fmt.Sprintf(`INSERT INTO %s(id, name) SELECT DISTINCT ON (id) id, name FROM %s ORDER BY id`, groups, stgGroups),
		fmt.Sprintf(`INSERT INTO %s(id, group_event_id, name)
			SELECT DISTINCT ON (se.id) se.id, se.group_event_id, se.name
			FROM %s se JOIN %s ge ON ge.id = se.group_event_id
			ORDER BY se.id`, events, stgEvents, groups),
		fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY (id)`, groups, groupsPK),
		fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY (id)`, events, eventsPK),
		fmt.Sprintf(`CREATE INDEX %s ON %s (group_event_id)`, f.id(eventsIdx), events),
		fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (group_event_id) REFERENCES %s(id)`, events, fkName, groups),
		fmt.Sprintf(`ANALYZE %s`, groups),
		fmt.Sprintf(`ANALYZE %s`, events),
	}
}

// Run executes the six-step protocol in one database transaction: drop
// FK, drop PKs, drop the secondary index, truncate both final tables,
// dedup-insert from staging (groups first, then events joined against
// the freshly populated groups), recreate PK/index/FK, and ANALYZE.
func (f Finalizer) Run(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("finalize: begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range f.steps() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("finalize: %q: %w", stmt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("finalize: commit: %w", err)
	}
	log.Info("finalize: staging promoted to final tables")
	return nil
}
