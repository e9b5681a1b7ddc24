// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/copyio"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/ingesterr"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/metrics"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/model"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/store"
	"github.com/ClusterCockpit/xml2pg-ingest/pkg/log"
)

const (
	producerJoinTimeout = 10 * time.Second
	consumerJoinTimeout = 30 * time.Second
	progressTick        = 200 * time.Millisecond
)

// defaultNewDriver opens a dedicated pgx connection for a consumer and
// wraps it in a ChunkedWriter, the shape chosen by this pipeline for its
// production driver (RowReader remains available for callers that want
// the pull-only shape; see copyio.RowReader).
func defaultNewDriver(cfg Config) func(ctx context.Context) (copyio.Driver, func(), error) {
	return func(ctx context.Context) (copyio.Driver, func(), error) {
		conn, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("pipeline: opening consumer connection: %w", err)
		}
		drv := &copyio.ChunkedWriter{Conn: conn, MaxChunkBytes: cfg.MaxChunkBytes}
		return drv, func() { conn.Close(context.Background()) }, nil
	}
}

// Run drives one complete ingestion pass: it spawns N consumers, then one
// producer, watches progress, and on return performs the shutdown
// sequence before handing back the final metrics snapshot. Run never
// invokes Finalize; the caller does that only once this snapshot
// indicates a clean run.
func Run(ctx context.Context, cfg Config) (metrics.Snapshot, error) {
	cfg = withDefaults(cfg)
	if cfg.NewDriver == nil {
		cfg.NewDriver = defaultNewDriver(cfg)
	}

	m := &metrics.Shared{}
	stop := &stopFlag{}
	queue := make(chan *model.Batch, cfg.QueueMaxSize)

	// producerDone/consumerDone are closed (not sent on) when their
	// worker returns, so every interested select (the progress loop and
	// the join below) can observe completion without racing to consume
	// a single buffered value.
	consumers := make([]*consumer, cfg.Workers)
	consumerDone := make([]chan struct{}, cfg.Workers)
	consumerErr := make([]error, cfg.Workers)
	for i := range consumers {
		consumers[i] = newConsumer(i, cfg, queue, stop, m)
		consumerDone[i] = make(chan struct{})
		i := i
		go func() {
			consumerErr[i] = consumers[i].run(ctx)
			close(consumerDone[i])
		}()
	}

	prod := newProducer(cfg, queue, stop, m)
	producerDone := make(chan struct{})
	var producerErr error
	go func() {
		producerErr = prod.run()
		close(producerDone)
	}()

	runProgressLoop(ctx, producerDone, stop, m, cfg)

	if err := waitProducer(producerDone, &producerErr, stop); err != nil {
		log.Errorf("pipeline: producer exited abnormally: %v", err)
	}

	enqueueSentinels(queue, len(consumers))

	waitConsumers(consumerDone, consumerErr, stop)

	return m.Snapshot(), nil
}

// runProgressLoop sleeps at ~200ms granularity, checking the stop flag
// and the producer's liveness, and logs a throughput delta every
// log_interval_sec while the producer is still alive.
func runProgressLoop(ctx context.Context, producerDone <-chan struct{}, stop *stopFlag, m *metrics.Shared, cfg Config) {
	ticker := time.NewTicker(progressTick)
	defer ticker.Stop()

	interval := time.Duration(cfg.LogIntervalSec * float64(time.Second))
	last := m.Snapshot()
	var sinceLog time.Duration

	for {
		select {
		case <-producerDone:
			return
		case <-ctx.Done():
			stop.set()
			return
		case <-ticker.C:
			if stop.isSet() {
				return
			}
			sinceLog += progressTick
			if sinceLog < interval {
				continue
			}
			sinceLog = 0
			cur := m.Snapshot()
			gps, eps := metrics.Delta(last, cur)
			log.Infof(
				"progress: groups=%d events=%d enqueued_batches=%d copied_batches=%d skipped=%d copy_errors=%d groups/s=%.1f events/s=%.1f",
				cur.GroupsParsed, cur.EventsParsed, cur.BatchesEnqueued, cur.BatchesCopied,
				cur.SkippedRecords, cur.CopyErrors, gps, eps,
			)
			last = cur
		}
	}
}

// enqueueSentinels pushes one end-of-stream sentinel per consumer. The
// send blocks so a sentinel queued behind a full backlog still reaches
// its consumer once the backlog drains; it is bounded by
// consumerJoinTimeout so a consumer that already crashed and will never
// drain the queue cannot wedge shutdown forever — per spec, an enqueue
// that cannot land is simply ignored.
func enqueueSentinels(queue chan<- *model.Batch, n int) {
	deadline := time.After(consumerJoinTimeout)
	for i := 0; i < n; i++ {
		select {
		case queue <- nil:
		case <-deadline:
			log.Warnf("pipeline: timed out enqueuing shutdown sentinels, %d of %d sent", i, n)
			return
		}
	}
}

func waitProducer(done <-chan struct{}, errOut *error, stop *stopFlag) error {
	select {
	case <-done:
		if *errOut != nil {
			stop.set()
		}
		return *errOut
	case <-time.After(producerJoinTimeout):
		stop.set()
		return &ingesterr.WorkerCrash{Worker: "producer", Err: fmt.Errorf("join timeout exceeded")}
	}
}

// waitConsumers joins every consumer bounded by consumerJoinTimeout. Each
// per-consumer done channel is fanned into one joined channel so the
// coordinator blocks on a single receive per consumer instead of
// busy-polling every channel in turn.
func waitConsumers(done []chan struct{}, errs []error, stop *stopFlag) {
	type result struct {
		worker int
	}
	joined := make(chan result, len(done))
	for i, ch := range done {
		i, ch := i, ch
		go func() { <-ch; joined <- result{worker: i} }()
	}

	deadline := time.After(consumerJoinTimeout)
	failed := []int{}
	for n := 0; n < len(done); n++ {
		select {
		case r := <-joined:
			if errs[r.worker] != nil {
				failed = append(failed, r.worker)
			}
		case <-deadline:
			log.Errorf("pipeline: consumer join timeout exceeded with %d/%d still outstanding", len(done)-n, len(done))
			stop.set()
			return
		}
	}

	if len(failed) > 0 {
		stop.set()
		log.Errorf("pipeline: consumers exited abnormally: %v", failed)
	}
}
