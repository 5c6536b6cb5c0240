package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsSealed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aegis_audit_records_sealed_total",
		Help: "Audit records sealed into the hash chain",
	})
	recordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aegis_audit_records_dropped_total",
		Help: "Audit records dropped because the queue stayed full past the enqueue budget",
	})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aegis_audit_queue_depth",
		Help: "Records currently buffered between the request path and the sink worker",
	})
)

// Log seals entries into the hash chain and hands them to the sink worker via
// a bounded queue. Sealing is synchronous (the chain head must advance in
// order); persistence is not. The request path blocks at most the enqueue
// budget, then the record is dropped and counted.
type Log struct {
	mu       sync.Mutex
	prevHash string

	queue  chan Record
	budget time.Duration
	logger *slog.Logger
}

// Options tunes the append path.
type Options struct {
	// Head is the id of the last durably stored record, or GenesisHash.
	Head string
	// QueueDepth bounds the in-flight buffer.
	QueueDepth int
	// EnqueueBudget is the longest Append may block the request path.
	EnqueueBudget time.Duration
}

// NewLog constructs the append-only log.
func NewLog(opts Options, logger *slog.Logger) *Log {
	if opts.Head == "" {
		opts.Head = GenesisHash
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 4096
	}
	if opts.EnqueueBudget <= 0 {
		opts.EnqueueBudget = 5 * time.Millisecond
	}
	return &Log{
		prevHash: opts.Head,
		queue:    make(chan Record, opts.QueueDepth),
		budget:   opts.EnqueueBudget,
		logger:   logger,
	}
}

// Append seals the entry and queues it for persistence. The returned record
// is final: its id is the content hash. Errors here mean the entry could not
// be canonicalized; they never come from the sink.
func (l *Log) Append(ctx context.Context, e Entry) (Record, error) {
	if e.EvaluatedAt.IsZero() {
		e.EvaluatedAt = time.Now()
	}

	l.mu.Lock()
	rec, err := seal(e, l.prevHash)
	if err != nil {
		l.mu.Unlock()
		return Record{}, err
	}
	l.prevHash = rec.ID
	l.mu.Unlock()

	recordsSealed.Inc()
	l.enqueue(rec)
	return rec, nil
}

// Record implements Recorder. Emission errors surface only as logs and
// counters, never to the caller.
func (l *Log) Record(ctx context.Context, e Entry) {
	if _, err := l.Append(ctx, e); err != nil {
		l.logger.ErrorContext(ctx, "audit entry rejected",
			"action", e.Action,
			"subject_id", e.SubjectID,
			"error", err,
		)
	}
}

// Records exposes the consumer side of the queue to the worker.
func (l *Log) Records() <-chan Record {
	return l.queue
}

// Head returns the current chain head (the id the next record will link to).
func (l *Log) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prevHash
}

func (l *Log) enqueue(rec Record) {
	select {
	case l.queue <- rec:
		queueDepth.Set(float64(len(l.queue)))
		return
	default:
	}

	// Queue full: wait out the budget, then shed. The chain tolerates gaps;
	// observers detect them via monotonic timestamps.
	t := time.NewTimer(l.budget)
	defer t.Stop()
	select {
	case l.queue <- rec:
		queueDepth.Set(float64(len(l.queue)))
	case <-t.C:
		recordsDropped.Inc()
		l.logger.Error("audit queue saturated, record dropped",
			"action", rec.Action,
			"record_id", rec.ID,
		)
	}
}
