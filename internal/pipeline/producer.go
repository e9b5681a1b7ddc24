// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/batch"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/extract"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/metrics"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/model"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/xmlstream"
	"github.com/ClusterCockpit/xml2pg-ingest/pkg/log"
)

type ProducerState int32

const (
	ProducerIdle ProducerState = iota
	ProducerStreaming
	ProducerDraining
	ProducerDone
)

// producer is the single streamer->extractor->batcher->enqueuer worker.
// It suspends on file I/O during XML streaming and on full-queue
// enqueues; the stop flag is checked between subtrees and before each
// enqueue.
type producer struct {
	cfg   Config
	queue chan<- *model.Batch
	stop  *stopFlag
	m     *metrics.Shared

	state atomic.Int32
}

func newProducer(cfg Config, queue chan<- *model.Batch, stop *stopFlag, m *metrics.Shared) *producer {
	return &producer{cfg: cfg, queue: queue, stop: stop, m: m}
}

func (p *producer) State() ProducerState { return ProducerState(p.state.Load()) }

// run streams the whole document, batches validated records, and
// enqueues the resulting batches. Every return path passes through DONE.
// A non-nil return is the *ingesterr.XMLFatal from opening or streaming
// the document, returned as is; the coordinator treats it as this worker
// having exited abnormally.
func (p *producer) run() error {
	p.state.Store(int32(ProducerStreaming))

	streamer, err := xmlstream.Open(p.cfg.XMLPath, p.cfg.GroupTag, p.cfg.EventTag, p.cfg.Recover, p.cfg.HugeTree)
	if err != nil {
		p.state.Store(int32(ProducerDone))
		return err
	}
	defer streamer.Close()

	groupBuilder := batch.New(model.KindGroup, p.cfg.BatchMaxRows, p.cfg.BatchMaxBytes)
	eventBuilder := batch.New(model.KindEvent, p.cfg.BatchMaxRows, p.cfg.BatchMaxBytes)

	var streamErr error
streamLoop:
	for {
		if p.stop.isSet() {
			break
		}

		sub, err, ok := streamer.Next()
		if err != nil {
			streamErr = err
			break streamLoop
		}
		if !ok {
			break streamLoop
		}

		result := extract.Extract(sub)
		p.m.Inc(metrics.SkippedRecords, int64(result.Skipped))

		if result.Group != nil {
			p.m.Inc(metrics.GroupsParsed, 1)
			for _, emitted := range groupBuilder.Add(model.GroupRow(*result.Group)) {
				if !p.enqueue(emitted) {
					break streamLoop
				}
			}
		}
		for _, ev := range result.Events {
			p.m.Inc(metrics.EventsParsed, 1)
			for _, emitted := range eventBuilder.Add(model.EventRow(ev)) {
				if !p.enqueue(emitted) {
					break streamLoop
				}
			}
		}
	}

	p.state.Store(int32(ProducerDraining))
	if tail := groupBuilder.Flush(); tail != nil {
		p.enqueue(tail)
	}
	if tail := eventBuilder.Flush(); tail != nil {
		p.enqueue(tail)
	}

	p.state.Store(int32(ProducerDone))
	return streamErr
}

// enqueue blocks until the batch is accepted or the stop flag is
// observed, in which case it reports false and the caller abandons
// further streaming. A full queue is the backpressure path: the send
// polls at the configured queue timeout so a stop set while blocked
// (e.g. a consumer hit CopyFatal and every consumer is now draining
// toward exit) is still noticed instead of wedging the producer
// indefinitely against a queue nobody will ever drain again.
//
// groups_enqueued/events_enqueued are only incremented here, once a
// batch has actually landed on the queue, not when its rows are handed
// to the batch builder: a row sitting unflushed inside a builder is not
// yet "enqueued", and collapsing that distinction would make
// groups_enqueued trivially track groups_parsed regardless of how far
// behind the queue actually is.
func (p *producer) enqueue(b *model.Batch) bool {
	if p.stop.isSet() {
		return false
	}

	select {
	case p.queue <- b:
		p.recordEnqueued(b)
		return true
	default:
	}

	log.Debugf("producer: queue full, blocking (backpressure)")
	timer := time.NewTimer(p.cfg.QueueGetTimeout)
	defer timer.Stop()
	for {
		select {
		case p.queue <- b:
			p.recordEnqueued(b)
			return true
		case <-timer.C:
			if p.stop.isSet() {
				return false
			}
			timer.Reset(p.cfg.QueueGetTimeout)
		}
	}
}

func (p *producer) recordEnqueued(b *model.Batch) {
	p.m.Inc(metrics.BatchesEnqueued, 1)
	switch b.Kind {
	case model.KindGroup:
		p.m.Inc(metrics.GroupsEnqueued, int64(len(b.Rows)))
	case model.KindEvent:
		p.m.Inc(metrics.EventsEnqueued, int64(len(b.Rows)))
	}
}
