// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package loader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ClusterCockpit/xml2pg-ingest/internal/ingesterr"
	"github.com/ClusterCockpit/xml2pg-ingest/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	failures int
	calls    int
	retN     int64
}

func (f *fakeDriver) CopyBatch(ctx context.Context, spec model.CopySpec, rows []model.Row) (int64, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, errors.New("transient copy failure")
	}
	return f.retN, nil
}

func testSpecs() map[model.Kind]model.CopySpec {
	return map[model.Kind]model.CopySpec{
		model.KindGroup: {Table: "stg_groups", Columns: []string{"id", "name"}},
		model.KindEvent: {Table: "stg_events", Columns: []string{"id", "group_event_id", "name"}},
	}
}

func noSleep(d time.Duration) {}

func TestLoadSucceedsFirstTry(t *testing.T) {
	drv := &fakeDriver{retN: 3}
	l := New(drv, testSpecs(), Config{sleep: noSleep})

	n, err := l.Load(context.Background(), &model.Batch{Kind: model.KindGroup, Rows: []model.Row{{int64(1), "a"}}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 1, drv.calls)
}

func TestLoadAdaptsUnknownSentinelToRowCount(t *testing.T) {
	drv := &fakeDriver{retN: -1}
	l := New(drv, testSpecs(), Config{sleep: noSleep})

	rows := []model.Row{{int64(1), "a"}, {int64(2), "b"}}
	n, err := l.Load(context.Background(), &model.Batch{Kind: model.KindGroup, Rows: rows})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestLoadRetriesThenSucceeds(t *testing.T) {
	drv := &fakeDriver{failures: 2, retN: 1}
	errCount := 0
	l := New(drv, testSpecs(), Config{Retries: 5, sleep: noSleep})
	l.ErrInc = func() { errCount++ }

	n, err := l.Load(context.Background(), &model.Batch{Kind: model.KindEvent, Rows: []model.Row{{int64(1), int64(1), "a"}}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 3, drv.calls)
	assert.Equal(t, 2, errCount)
}

func TestLoadExhaustsRetriesAsCopyFatal(t *testing.T) {
	drv := &fakeDriver{failures: 100}
	l := New(drv, testSpecs(), Config{Retries: 2, sleep: noSleep})

	_, err := l.Load(context.Background(), &model.Batch{Kind: model.KindGroup, Rows: []model.Row{{int64(1), "a"}}})
	require.Error(t, err)

	var fatal *ingesterr.CopyFatal
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 3, fatal.Attempts)
	assert.Equal(t, 3, drv.calls)
}

func TestLoadBackoffIsExponential(t *testing.T) {
	var slept []time.Duration
	drv := &fakeDriver{failures: 3, retN: 1}
	l := New(drv, testSpecs(), Config{
		Retries:   3,
		BaseSleep: 10 * time.Millisecond,
		sleep:     func(d time.Duration) { slept = append(slept, d) },
	})

	_, err := l.Load(context.Background(), &model.Batch{Kind: model.KindGroup, Rows: []model.Row{{int64(1), "a"}}})
	require.NoError(t, err)
	require.Len(t, slept, 3)
	assert.Equal(t, 10*time.Millisecond, slept[0])
	assert.Equal(t, 20*time.Millisecond, slept[1])
	assert.Equal(t, 40*time.Millisecond, slept[2])
}
