// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the structural/tunable configuration surface of
// §6 from a JSON file, validated against the embedded schema, and
// assembles it into the immutable pipeline.Config the coordinator is
// run with. Secret/connection-ish values may instead be supplied
// through the environment; see Keys.DatabaseURL.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/finalize"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/ingesterr"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/model"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/pipeline"
	"github.com/ClusterCockpit/xml2pg-ingest/pkg/log"
	"github.com/ClusterCockpit/xml2pg-ingest/pkg/schema"
)

// FileConfig mirrors the JSON config file, one field per key of §6's
// configuration surface. Fields left zero after decoding fall back to
// the spec's defaults in pipeline.withDefaults.
type FileConfig struct {
	XMLPath string `json:"xml_path"`

	DatabaseURL        string `json:"database_url"`
	GroupsTable        string `json:"groups_table"`
	EventsTable        string `json:"events_table"`
	StagingGroupsTable string `json:"staging_groups_table"`
	StagingEventsTable string `json:"staging_events_table"`

	GroupTagName string `json:"group_tag_name"`
	EventTagName string `json:"event_tag_name"`
	Recover      *bool  `json:"recover"`
	HugeTree     *bool  `json:"huge_tree"`

	Workers      int `json:"workers"`
	QueueMaxSize int `json:"queue_maxsize"`

	BatchMaxRows  int `json:"batch_max_rows"`
	BatchMaxBytes int `json:"batch_max_bytes"`

	CopyRetries        int     `json:"copy_retries"`
	RetryBaseSleepSec  float64 `json:"retry_base_sleep_sec"`
	QueueGetTimeoutSec float64 `json:"queue_get_timeout_sec"`
	MaxChunkBytes      int     `json:"max_chunk_bytes"`

	LogIntervalSec float64 `json:"log_interval_sec"`
}

// Keys holds the process-wide decoded configuration, in the same
// package-level-variable idiom the teacher uses for its own Keys. Unlike
// the teacher, nothing else in this codebase reads Keys directly: Init
// returns a pointer to it, and callers build the pipeline.Config they run
// with through its PipelineConfig method, so the pipeline package itself
// stays free of global state (see pipeline.Config's doc comment).
var Keys FileConfig

// defaultStagingTable names a staging table from its final-table name
// when the config file does not override it, following the `stg_<name>`
// convention of §6.
func defaultStagingTable(final string) string {
	return "stg_" + final
}

// Init reads path, validates it against the embedded JSON Schema, and
// decodes it into Keys with unknown fields rejected. A `database_url`
// value of the form "env:NAME" is resolved against the environment
// instead, mirroring the teacher's "env:" convention for its own DSN
// field so operators are not forced to put credentials in the JSON
// config file.
func Init(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ingesterr.ConfigError{Msg: "reading config file " + path, Err: err}
	}

	if err := schema.Validate(schema.Config, bytes.NewReader(raw)); err != nil {
		return nil, &ingesterr.ConfigError{Msg: "validating config file " + path, Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return nil, &ingesterr.ConfigError{Msg: "decoding config file " + path, Err: err}
	}

	if strings.HasPrefix(Keys.DatabaseURL, "env:") {
		envvar := strings.TrimPrefix(Keys.DatabaseURL, "env:")
		Keys.DatabaseURL = os.Getenv(envvar)
		if Keys.DatabaseURL == "" {
			return nil, &ingesterr.ConfigError{Msg: "database_url references empty environment variable " + envvar}
		}
	}
	if Keys.DatabaseURL == "" {
		return nil, &ingesterr.ConfigError{Msg: "database_url is required"}
	}

	if Keys.StagingGroupsTable == "" {
		Keys.StagingGroupsTable = defaultStagingTable(Keys.GroupsTable)
	}
	if Keys.StagingEventsTable == "" {
		Keys.StagingEventsTable = defaultStagingTable(Keys.EventsTable)
	}

	log.Infof("config: loaded %s (groups=%s/%s events=%s/%s)", path,
		Keys.StagingGroupsTable, Keys.GroupsTable, Keys.StagingEventsTable, Keys.EventsTable)

	return &Keys, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// PipelineConfig assembles the immutable pipeline.Config the coordinator
// is run with; zero-valued tunables are left for pipeline.withDefaults
// to fill with the spec's defaults.
func (c *FileConfig) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		XMLPath:  c.XMLPath,
		GroupTag: c.GroupTagName,
		EventTag: c.EventTagName,
		Recover:  boolOr(c.Recover, true),
		HugeTree: boolOr(c.HugeTree, true),

		Workers:      c.Workers,
		QueueMaxSize: c.QueueMaxSize,

		BatchMaxRows:  c.BatchMaxRows,
		BatchMaxBytes: c.BatchMaxBytes,

		CopyRetries:       c.CopyRetries,
		RetryBaseSleepSec: c.RetryBaseSleepSec,
		QueueGetTimeout:   time.Duration(c.QueueGetTimeoutSec * float64(time.Second)),
		MaxChunkBytes:     c.MaxChunkBytes,

		LogIntervalSec: c.LogIntervalSec,

		DatabaseURL: c.DatabaseURL,
		CopySpecs: map[model.Kind]model.CopySpec{
			model.KindGroup: {Table: c.StagingGroupsTable, Columns: []string{"id", "name"}},
			model.KindEvent: {Table: c.StagingEventsTable, Columns: []string{"id", "group_event_id", "name"}},
		},
	}
}

// FinalizerConfig assembles the table-name contract the Finalizer needs
// to run the constraint-drop/rebuild protocol of §6 after a clean run.
func (c *FileConfig) FinalizerConfig() finalize.Finalizer {
	return finalize.Finalizer{
		GroupsTable:        c.GroupsTable,
		EventsTable:        c.EventsTable,
		StagingGroupsTable: c.StagingGroupsTable,
		StagingEventsTable: c.StagingEventsTable,
	}
}
