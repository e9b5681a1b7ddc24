// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pipeline owns the producer, the N consumers, the bounded
// queue, the shared metrics, and the stop signal: the Pipeline
// Coordinator of the ingestion system.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/copyio"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/loader"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/metrics"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/model"
)

// Config is the immutable configuration value passed into Run. There is
// no process-wide mutable settings object; every worker receives
// whatever it needs as an explicit argument at spawn.
type Config struct {
	XMLPath  string
	GroupTag string
	EventTag string
	Recover  bool
	HugeTree bool

	Workers      int
	QueueMaxSize int

	BatchMaxRows  int
	BatchMaxBytes int

	CopyRetries       int
	RetryBaseSleepSec float64
	QueueGetTimeout   time.Duration
	MaxChunkBytes     int

	LogIntervalSec float64

	DatabaseURL string
	CopySpecs   map[model.Kind]model.CopySpec

	// NewDriver opens one Driver per consumer worker; it is called after
	// the worker goroutine has started, never before, so that no
	// database connection is ever shared or implicitly inherited between
	// workers. Defaults to a pgx ChunkedWriter-backed driver when nil
	// (set by Run; tests may override it to inject a fake).
	NewDriver func(ctx context.Context) (copyio.Driver, func(), error)
}

func withDefaults(c Config) Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueMaxSize <= 0 {
		c.QueueMaxSize = 32
	}
	if c.BatchMaxRows <= 0 {
		c.BatchMaxRows = 50000
	}
	if c.BatchMaxBytes <= 0 {
		c.BatchMaxBytes = 8 << 20
	}
	if c.CopyRetries <= 0 {
		c.CopyRetries = 5
	}
	if c.RetryBaseSleepSec <= 0 {
		c.RetryBaseSleepSec = 0.5
	}
	if c.QueueGetTimeout <= 0 {
		c.QueueGetTimeout = time.Second
	}
	if c.MaxChunkBytes <= 0 {
		c.MaxChunkBytes = 8 << 20
	}
	if c.LogIntervalSec <= 0 {
		c.LogIntervalSec = 5.0
	}
	if c.GroupTag == "" {
		c.GroupTag = "group_event"
	}
	if c.EventTag == "" {
		c.EventTag = "event"
	}
	return c
}

// stopFlag is the single shared boolean any component may set and none
// may clear.
type stopFlag struct{ v atomic.Bool }

func (s *stopFlag) set()          { s.v.Store(true) }
func (s *stopFlag) isSet() bool   { return s.v.Load() }

// newLoader builds the loader.Loader for one consumer, wiring its retry
// budget and its shared copy_errors counter.
func newLoader(drv copyio.Driver, cfg Config, m *metrics.Shared) *loader.Loader {
	l := loader.New(drv, cfg.CopySpecs, loader.Config{
		Retries:   cfg.CopyRetries,
		BaseSleep: time.Duration(cfg.RetryBaseSleepSec * float64(time.Second)),
	})
	l.ErrInc = func() { m.Inc(metrics.CopyErrors, 1) }
	return l
}
