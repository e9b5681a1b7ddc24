// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/metrics"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/model"
	"github.com/ClusterCockpit/xml2pg-ingest/pkg/log"
)

type ConsumerState int32

const (
	ConsumerIdle ConsumerState = iota
	ConsumerWaiting
	ConsumerProcessing
	ConsumerTerminating
	ConsumerDone
)

// consumer dequeues batches and drives the Bulk Loader. Each consumer
// owns its own driver connection, opened only after the goroutine has
// started running.
type consumer struct {
	id    int
	cfg   Config
	queue <-chan *model.Batch
	stop  *stopFlag
	m     *metrics.Shared

	state atomic.Int32
}

func newConsumer(id int, cfg Config, queue <-chan *model.Batch, stop *stopFlag, m *metrics.Shared) *consumer {
	return &consumer{id: id, cfg: cfg, queue: queue, stop: stop, m: m}
}

func (c *consumer) State() ConsumerState { return ConsumerState(c.state.Load()) }

func (c *consumer) run(ctx context.Context) error {
	c.state.Store(int32(ConsumerIdle))

	drv, closeDrv, err := c.cfg.NewDriver(ctx)
	if err != nil {
		c.state.Store(int32(ConsumerDone))
		return err
	}
	defer closeDrv()

	ld := newLoader(drv, c.cfg, c.m)

	for {
		c.state.Store(int32(ConsumerWaiting))

		if c.stop.isSet() {
			c.state.Store(int32(ConsumerTerminating))
			break
		}

		batch, ok := c.receive()
		if !ok {
			// Timed out waiting; loop back to re-check stop promptly.
			continue
		}
		if batch == nil {
			// Sentinel: end of stream for this consumer.
			c.state.Store(int32(ConsumerTerminating))
			break
		}

		c.state.Store(int32(ConsumerProcessing))
		n, err := ld.Load(ctx, batch)
		if err != nil {
			log.Errorf("consumer %d: batch kind=%s rows=%d: %v", c.id, batch.Kind, len(batch.Rows), err)
			c.stop.set()
			c.state.Store(int32(ConsumerDone))
			return err
		}

		c.m.Inc(metrics.BatchesCopied, 1)
		switch batch.Kind {
		case model.KindGroup:
			c.m.Inc(metrics.GroupsCopied, n)
		case model.KindEvent:
			c.m.Inc(metrics.EventsCopied, n)
		}
	}

	c.state.Store(int32(ConsumerDone))
	return nil
}

// receive polls the queue with the configured bounded timeout so stop is
// observed within one timeout period. ok is false only on timeout; a
// true ok with a nil batch means the sentinel was received.
func (c *consumer) receive() (batch *model.Batch, ok bool) {
	timer := time.NewTimer(c.cfg.QueueGetTimeout)
	defer timer.Stop()

	select {
	case b := <-c.queue:
		return b, true
	case <-timer.C:
		return nil, false
	}
}
