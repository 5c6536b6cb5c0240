package audit

import (
	"fmt"
	"time"

	"aegis/pkg/canonical"
)

// seal turns an Entry into a chained Record. The hash covers the canonical
// JSON of every field except id and content_hash, concatenated with prevHash.
func seal(e Entry, prevHash string) (Record, error) {
	rec := Record{
		PrevHash:      prevHash,
		SubjectID:     e.SubjectID,
		SessionID:     e.SessionID,
		Action:        e.Action,
		Resource:      e.Resource,
		Decision:      e.Decision,
		Reason:        e.Reason,
		Mechanism:     e.Mechanism,
		PolicyPackage: e.PolicyPackage,
		PolicyRule:    e.PolicyRule,
		Roles:         nonNil(e.Roles),
		Entitlements:  nonNil(e.Entitlements),
		RiskLevel:     e.RiskLevel,
		MFAVerified:   e.MFAVerified,
		IP:            e.IP,
		UserAgent:     e.UserAgent,
		// Microsecond precision survives the timestamptz round trip, so
		// offline verification recomputes the same hash the sealer did.
		EvaluatedAt: e.EvaluatedAt.UTC().Truncate(time.Microsecond),
	}

	content, err := canonical.Marshal(hashBase(rec))
	if err != nil {
		return Record{}, err
	}
	sum := canonical.ChainHash(content, prevHash)
	rec.ContentHash = sum
	rec.ID = sum
	return rec, nil
}

// hashBase strips the self-referential fields before canonicalization.
func hashBase(r Record) Record {
	r.ID = ""
	r.ContentHash = ""
	return r
}

// Verify walks a prefix of the log and recomputes every hash. The first
// record's prev_hash must be GENESIS; each subsequent prev_hash must equal
// the prior record's id. Returns the index of the first broken record.
func Verify(records []Record) error {
	prev := GenesisHash
	for i, r := range records {
		if r.PrevHash != prev {
			return fmt.Errorf("audit: record %d: prev_hash %q does not match prior id %q", i, r.PrevHash, prev)
		}
		content, err := canonical.Marshal(hashBase(r))
		if err != nil {
			return fmt.Errorf("audit: record %d: %w", i, err)
		}
		want := canonical.ChainHash(content, r.PrevHash)
		if r.ContentHash != want || r.ID != want {
			return fmt.Errorf("audit: record %d: content hash mismatch", i)
		}
		prev = r.ID
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
