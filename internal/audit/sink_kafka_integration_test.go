//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/pkg/testutil/containers"
)

func TestKafkaSinkPublishesKeyedRecords(t *testing.T) {
	const topic = "aegis.audit.test"
	rp := containers.NewRedpandaContainer(t, topic)
	sink := NewKafkaSink(rp.Client, topic)
	ctx := context.Background()

	rec, err := seal(Entry{
		SubjectID:   "subject-1",
		Action:      ActionAccessDecision,
		Decision:    DecisionAllow,
		EvaluatedAt: time.Now(),
	}, GenesisHash)
	require.NoError(t, err)
	require.NoError(t, sink.Write(ctx, rec))

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := rp.Client.PollFetches(fetchCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "subject-1", string(records[0].Key))

	var decoded Record
	require.NoError(t, json.Unmarshal(records[0].Value, &decoded))
	assert.Equal(t, rec.ID, decoded.ID)
}
