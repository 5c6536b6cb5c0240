package audit

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry(i int) Entry {
	return Entry{
		SubjectID:   "subject-1",
		SessionID:   "sess-1",
		Action:      ActionAccessDecision,
		Resource:    "/api/resource",
		Decision:    DecisionAllow,
		Mechanism:   "PBAC",
		RiskLevel:   "LOW",
		EvaluatedAt: time.Date(2026, 3, 1, 10, 0, i, 0, time.UTC),
	}
}

func sealChain(t *testing.T, n int) []Record {
	t.Helper()
	prev := GenesisHash
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		rec, err := seal(sampleEntry(i), prev)
		require.NoError(t, err)
		records = append(records, rec)
		prev = rec.ID
	}
	return records
}

func TestSealLinksRecords(t *testing.T) {
	records := sealChain(t, 3)

	assert.Equal(t, GenesisHash, records[0].PrevHash)
	assert.Equal(t, records[0].ID, records[1].PrevHash)
	assert.Equal(t, records[1].ID, records[2].PrevHash)
	for _, r := range records {
		assert.Equal(t, r.ContentHash, r.ID)
		assert.NotEmpty(t, r.ID)
	}
}

func TestVerifyAcceptsIntactChain(t *testing.T) {
	require.NoError(t, Verify(sealChain(t, 10)))
	require.NoError(t, Verify(nil))
}

func TestVerifyDetectsMutation(t *testing.T) {
	records := sealChain(t, 5)
	records[2].Reason = "tampered"

	err := Verify(records)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")
}

func TestVerifyDetectsDeletion(t *testing.T) {
	records := sealChain(t, 5)
	// Removing a middle record breaks the link at its position.
	tampered := append(append([]Record{}, records[:2]...), records[3:]...)

	err := Verify(tampered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 2")
}

func TestVerifyDetectsReorder(t *testing.T) {
	records := sealChain(t, 4)
	records[1], records[2] = records[2], records[1]

	require.Error(t, Verify(records))
}

func TestVerifyDetectsForgedHead(t *testing.T) {
	records := sealChain(t, 3)
	records[0].PrevHash = "not-genesis"

	err := Verify(records)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 0")
}

func TestSealNormalizesNilSlices(t *testing.T) {
	rec, err := seal(Entry{Action: ActionAccessDecision, Decision: DecisionDeny}, GenesisHash)
	require.NoError(t, err)
	assert.NotNil(t, rec.Roles)
	assert.NotNil(t, rec.Entitlements)
}

func TestSealIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("same entry and head always seal to the same id", prop.ForAll(
		func(subject, reason, prev string) bool {
			e := Entry{
				SubjectID:   subject,
				Action:      ActionAccessDecision,
				Decision:    DecisionDeny,
				Reason:      reason,
				EvaluatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			}
			a, errA := seal(e, prev)
			b, errB := seal(e, prev)
			return errA == nil && errB == nil && a.ID == b.ID
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Identifier(),
	))

	properties.Property("different heads never collide", prop.ForAll(
		func(subject string) bool {
			e := Entry{SubjectID: subject, Action: ActionAccessDecision, Decision: DecisionDeny}
			a, errA := seal(e, "head-a")
			b, errB := seal(e, "head-b")
			return errA == nil && errB == nil && a.ID != b.ID
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
