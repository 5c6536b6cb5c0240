package entitlement

import "time"

// SubjectType classifies who holds a grant.
type SubjectType string

const (
	SubjectUser       SubjectType = "USER"
	SubjectService    SubjectType = "SERVICE"
	SubjectThirdParty SubjectType = "THIRD_PARTY"
)

// Status is the grant lifecycle state. REVOKED and EXPIRED are terminal.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusRevoked   Status = "REVOKED"
	StatusExpired   Status = "EXPIRED"
	StatusSuspended Status = "SUSPENDED"
)

// CanTransitionTo encodes the lifecycle: ACTIVE may leave to any state,
// SUSPENDED may resume or end, terminal states admit nothing.
func (s Status) CanTransitionTo(to Status) bool {
	switch s {
	case StatusActive:
		return to == StatusRevoked || to == StatusExpired || to == StatusSuspended
	case StatusSuspended:
		return to == StatusActive || to == StatusRevoked || to == StatusExpired
	default:
		return false
	}
}

// Entitlement is an explicit, revocable grant of scopes on a resource held by
// a subject. Immutable except Status, UpdatedAt, and RevokedAt.
type Entitlement struct {
	ID           string      `json:"id"`
	SubjectType  SubjectType `json:"subject_type"`
	SubjectID    string      `json:"subject_id"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id"`
	Scopes       []string    `json:"scopes"`
	Status       Status      `json:"status"`
	ValidFrom    time.Time   `json:"valid_from"`
	ValidUntil   *time.Time  `json:"valid_until,omitempty"`
	GrantedBy    string      `json:"granted_by"`
	GrantReason  string      `json:"grant_reason"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	RevokedAt    *time.Time  `json:"revoked_at,omitempty"`
}

// ActiveAt reports whether the grant is usable at t:
// status ACTIVE and t within [ValidFrom, ValidUntil ?? ∞).
func (e Entitlement) ActiveAt(t time.Time) bool {
	if e.Status != StatusActive {
		return false
	}
	if t.Before(e.ValidFrom) {
		return false
	}
	if e.ValidUntil != nil && !t.Before(*e.ValidUntil) {
		return false
	}
	return true
}
