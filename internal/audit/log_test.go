package audit

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAdvancesHead(t *testing.T) {
	log := NewLog(Options{QueueDepth: 16}, slog.Default())
	assert.Equal(t, GenesisHash, log.Head())

	first, err := log.Append(context.Background(), sampleEntry(0))
	require.NoError(t, err)
	assert.Equal(t, first.ID, log.Head())
	assert.Equal(t, GenesisHash, first.PrevHash)

	second, err := log.Append(context.Background(), sampleEntry(1))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.PrevHash)
	assert.Equal(t, second.ID, log.Head())
}

func TestAppendQueuesSealedRecords(t *testing.T) {
	log := NewLog(Options{QueueDepth: 16}, slog.Default())

	var sealed []Record
	for i := 0; i < 3; i++ {
		rec, err := log.Append(context.Background(), sampleEntry(i))
		require.NoError(t, err)
		sealed = append(sealed, rec)
	}

	var drained []Record
	for i := 0; i < 3; i++ {
		select {
		case rec := <-log.Records():
			drained = append(drained, rec)
		default:
			t.Fatal("expected a queued record")
		}
	}
	assert.Equal(t, sealed, drained)
	require.NoError(t, Verify(drained))
}

func TestRestoredHeadKeepsLinking(t *testing.T) {
	first := NewLog(Options{QueueDepth: 16}, slog.Default())
	rec, err := first.Append(context.Background(), sampleEntry(0))
	require.NoError(t, err)

	// A restart restores the head from durable storage.
	restored := NewLog(Options{Head: rec.ID, QueueDepth: 16}, slog.Default())
	next, err := restored.Append(context.Background(), sampleEntry(1))
	require.NoError(t, err)
	assert.Equal(t, rec.ID, next.PrevHash)

	require.NoError(t, Verify([]Record{rec, next}))
}

func TestAppendShedsWhenQueueStaysFull(t *testing.T) {
	log := NewLog(Options{QueueDepth: 1, EnqueueBudget: time.Millisecond}, slog.Default())

	_, err := log.Append(context.Background(), sampleEntry(0))
	require.NoError(t, err)

	// The queue is full and nothing drains it; the second append must return
	// within the budget with the record shed, not block the request path.
	start := time.Now()
	rec, err := log.Append(context.Background(), sampleEntry(1))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	// Sealing still happened: the chain head moved even though persistence
	// lost the record.
	assert.Equal(t, rec.ID, log.Head())
	assert.Len(t, log.Records(), 1)
}

func TestRecordSwallowsErrors(t *testing.T) {
	log := NewLog(Options{QueueDepth: 16}, slog.Default())

	// Recorder must never surface failures to the caller.
	log.Record(context.Background(), Entry{Action: ActionAccessDecision, Decision: DecisionAllow})
	assert.NotEqual(t, GenesisHash, log.Head())
}
