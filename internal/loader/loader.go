// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package loader drives the store's bulk-copy-from-stream protocol for
// one batch at a time, with exponential-backoff retries.
package loader

import (
	"context"
	"math"
	"time"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/copyio"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/ingesterr"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/model"
	"github.com/ClusterCockpit/xml2pg-ingest/pkg/log"
)

// Config bounds the retry protocol. Zero values are replaced by the
// spec's defaults in New.
type Config struct {
	Retries       int
	BaseSleep     time.Duration
	sleep         func(time.Duration) // overridden in tests
}

func defaultConfig(c Config) Config {
	if c.Retries <= 0 {
		c.Retries = 5
	}
	if c.BaseSleep <= 0 {
		c.BaseSleep = 500 * time.Millisecond
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
	return c
}

// Loader writes one Batch to its staging table via a Driver, retrying
// transient failures with exponential backoff.
type Loader struct {
	driver copyio.Driver
	specs  map[model.Kind]model.CopySpec
	cfg    Config

	// ErrInc, when set, is called once per failed attempt so the caller
	// can fold the attempt into shared copy_errors metrics.
	ErrInc func()
}

func New(driver copyio.Driver, specs map[model.Kind]model.CopySpec, cfg Config) *Loader {
	return &Loader{driver: driver, specs: specs, cfg: defaultConfig(cfg)}
}

// Load writes batch, retrying on failure up to cfg.Retries times with
// base*2^attempt backoff. On success it returns the row count, adapting
// a -1 "unknown" driver sentinel into len(batch.Rows). Exhausting the
// retry budget returns a *ingesterr.CopyFatal.
func (l *Loader) Load(ctx context.Context, batch *model.Batch) (int64, error) {
	spec, ok := l.specs[batch.Kind]
	if !ok {
		return 0, &ingesterr.CopyFatal{Kind: batch.Kind.String(), RowCount: len(batch.Rows), Err: errUnknownKind(batch.Kind)}
	}

	var lastErr error
	for attempt := 0; attempt <= l.cfg.Retries; attempt++ {
		n, err := l.driver.CopyBatch(ctx, spec, batch.Rows)
		if err == nil {
			if n < 0 {
				n = int64(len(batch.Rows))
			}
			return n, nil
		}

		lastErr = err
		if l.ErrInc != nil {
			l.ErrInc()
		}
		log.Warnf("loader: copy attempt %d/%d for kind=%s failed: %v", attempt+1, l.cfg.Retries+1, batch.Kind, err)

		if attempt == l.cfg.Retries {
			break
		}
		backoff := time.Duration(float64(l.cfg.BaseSleep) * math.Pow(2, float64(attempt)))
		l.cfg.sleep(backoff)
	}

	return 0, &ingesterr.CopyFatal{
		Kind:     batch.Kind.String(),
		RowCount: len(batch.Rows),
		Attempts: l.cfg.Retries + 1,
		Err:      lastErr,
	}
}

type errUnknownKind model.Kind

func (e errUnknownKind) Error() string {
	return "loader: no copy spec configured for kind " + model.Kind(e).String()
}
