package audit

import (
	"context"
	"time"
)

// Decision is the recorded outcome of an audited action.
type Decision string

const (
	DecisionAllow     Decision = "ALLOW"
	DecisionDeny      Decision = "DENY"
	DecisionChallenge Decision = "CHALLENGE"
	DecisionGranted   Decision = "GRANTED"
	DecisionRevoked   Decision = "REVOKED"
)

// Audited actions. Session lifecycle events come from the session store and
// the risk service; entitlement events from the entitlement service; access
// decisions from the pipeline.
const (
	ActionSessionRevoked            = "SESSION_REVOKED"
	ActionSessionsRevokedSubject    = "SESSIONS_REVOKED_SUBJECT"
	ActionSessionTerminatedHighRisk = "SESSION_TERMINATED_HIGH_RISK"
	ActionEntitlementGranted        = "ENTITLEMENT_GRANTED"
	ActionEntitlementRevoked        = "ENTITLEMENT_REVOKED"
	ActionAccessDecision            = "ACCESS_DECISION"
)

// GenesisHash seeds the chain: the first record's prev_hash.
const GenesisHash = "GENESIS"

// Entry is emitted from domain logic to capture one audited action. It is
// transport-agnostic; the log seals it into a hash-chained Record.
type Entry struct {
	SubjectID     string
	SessionID     string
	Action        string
	Resource      string
	Decision      Decision
	Reason        string
	Mechanism     string
	PolicyPackage string
	PolicyRule    string
	Roles         []string
	Entitlements  []string
	RiskLevel     string
	MFAVerified   bool
	IP            string
	UserAgent     string
	EvaluatedAt   time.Time
}

// Record is the sealed, append-only form of an Entry.
//
// Invariant: ContentHash = H(canonical(record \ {id, content_hash}) || PrevHash)
// and ID = ContentHash. PrevHash equals the previous record's ID, or GENESIS
// for the first. Any deletion, reorder, or mutation breaks Verify.
type Record struct {
	ID            string    `json:"id"`
	PrevHash      string    `json:"prev_hash"`
	SubjectID     string    `json:"subject_id"`
	SessionID     string    `json:"session_id,omitempty"`
	Action        string    `json:"action"`
	Resource      string    `json:"resource,omitempty"`
	Decision      Decision  `json:"decision"`
	Reason        string    `json:"reason,omitempty"`
	Mechanism     string    `json:"mechanism,omitempty"`
	PolicyPackage string    `json:"policy_package,omitempty"`
	PolicyRule    string    `json:"policy_rule,omitempty"`
	Roles         []string  `json:"roles"`
	Entitlements  []string  `json:"entitlements"`
	RiskLevel     string    `json:"risk_level"`
	MFAVerified   bool      `json:"mfa_verified"`
	IP            string    `json:"ip,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
	ContentHash   string    `json:"content_hash"`
}

// Recorder is the narrow emission contract the rest of the core depends on.
// Implementations must never surface errors into the request path.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// RecorderFunc adapts a function to the Recorder interface. Tests use it to
// capture emitted entries without standing up the full log.
type RecorderFunc func(ctx context.Context, e Entry)

func (f RecorderFunc) Record(ctx context.Context, e Entry) { f(ctx, e) }
