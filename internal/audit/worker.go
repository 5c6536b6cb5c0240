package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_audit_sink_failures_total",
		Help: "Failed write attempts per audit sink",
	}, []string{"sink"})
	deadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aegis_audit_dead_lettered_total",
		Help: "Audit records parked in the dead-letter queue after retry exhaustion",
	})
)

// Sink persists sealed records. Implementations must be safe for use from a
// single worker goroutine.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec Record) error
}

// DeadLetter parks records that exhausted their retries.
type DeadLetter interface {
	Push(ctx context.Context, rec Record) error
}

// Worker drains the log queue into the configured sinks with exponential
// backoff. It shares no per-request state with producers.
type Worker struct {
	records     <-chan Record
	sinks       []Sink
	dlq         DeadLetter
	maxAttempts int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// NewWorker wires the consumer side of the audit queue.
func NewWorker(records <-chan Record, sinks []Sink, dlq DeadLetter, maxAttempts int, baseBackoff time.Duration, logger *slog.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if baseBackoff <= 0 {
		baseBackoff = 50 * time.Millisecond
	}
	return &Worker{
		records:     records,
		sinks:       sinks,
		dlq:         dlq,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		logger:      logger,
	}
}

// Run consumes until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-w.records:
			w.deliver(ctx, rec)
			queueDepth.Set(float64(len(w.records)))
		}
	}
}

func (w *Worker) deliver(ctx context.Context, rec Record) {
	for _, sink := range w.sinks {
		if err := w.writeWithRetry(ctx, sink, rec); err != nil {
			w.parkDead(ctx, sink, rec, err)
		}
	}
}

func (w *Worker) writeWithRetry(ctx context.Context, sink Sink, rec Record) error {
	backoff := w.baseBackoff
	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err = sink.Write(ctx, rec); err == nil {
			return nil
		}
		sinkFailures.WithLabelValues(sink.Name()).Inc()
		w.logger.WarnContext(ctx, "audit sink write failed",
			"sink", sink.Name(),
			"record_id", rec.ID,
			"attempt", attempt,
			"error", err,
		)
		if attempt == w.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func (w *Worker) parkDead(ctx context.Context, sink Sink, rec Record, cause error) {
	deadLettered.Inc()
	if w.dlq == nil {
		w.logger.ErrorContext(ctx, "audit record lost, no dead-letter queue",
			"sink", sink.Name(), "record_id", rec.ID, "error", cause)
		return
	}
	if err := w.dlq.Push(ctx, rec); err != nil {
		// Allowed to drop past the DLQ, but it must be counted and visible.
		w.logger.ErrorContext(ctx, "audit dead-letter push failed, record lost",
			"sink", sink.Name(), "record_id", rec.ID, "error", err)
	}
}
