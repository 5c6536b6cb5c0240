package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu       sync.Mutex
	name     string
	failures int
	written  []Record
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.written = append(s.written, rec)
	return nil
}

func (s *fakeSink) records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record{}, s.written...)
}

type fakeDLQ struct {
	mu     sync.Mutex
	parked []Record
}

func (d *fakeDLQ) Push(_ context.Context, rec Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parked = append(d.parked, rec)
	return nil
}

func (d *fakeDLQ) records() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Record{}, d.parked...)
}

func runWorker(t *testing.T, queue chan Record, sink Sink, dlq DeadLetter) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(queue, []Sink{sink}, dlq, 3, time.Millisecond, slog.Default())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func mustSeal(t *testing.T, i int) Record {
	t.Helper()
	rec, err := seal(sampleEntry(i), GenesisHash)
	require.NoError(t, err)
	return rec
}

func TestWorkerDeliversToSink(t *testing.T) {
	queue := make(chan Record, 4)
	sink := &fakeSink{name: "postgres"}
	runWorker(t, queue, sink, &fakeDLQ{})

	rec := mustSeal(t, 0)
	queue <- rec

	require.Eventually(t, func() bool {
		return len(sink.records()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, rec, sink.records()[0])
}

func TestWorkerRetriesTransientFailures(t *testing.T) {
	queue := make(chan Record, 4)
	sink := &fakeSink{name: "postgres", failures: 2}
	dlq := &fakeDLQ{}
	runWorker(t, queue, sink, dlq)

	queue <- mustSeal(t, 0)

	require.Eventually(t, func() bool {
		return len(sink.records()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, dlq.records())
}

func TestWorkerParksExhaustedRecords(t *testing.T) {
	queue := make(chan Record, 4)
	sink := &fakeSink{name: "postgres", failures: 10}
	dlq := &fakeDLQ{}
	runWorker(t, queue, sink, dlq)

	rec := mustSeal(t, 0)
	queue <- rec

	require.Eventually(t, func() bool {
		return len(dlq.records()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, rec, dlq.records()[0])
	assert.Empty(t, sink.records())
}

func TestWorkerStopsOnCancel(t *testing.T) {
	queue := make(chan Record, 4)
	w := NewWorker(queue, nil, nil, 3, time.Millisecond, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
