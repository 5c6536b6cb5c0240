package session

import "time"

// RiskLevel orders session risk. CRITICAL is terminal: the risk service
// revokes the session rather than storing the level.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Rank gives the levels a total order for comparisons and cap lookups.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return -1
	}
}

// Session is the authoritative record. While the record exists and RevokedAt
// is unset, the session is live. Only RiskLevel, LastEvaluatedAt, and
// RevokedAt (set-once) mutate in place.
type Session struct {
	ID              string     `json:"id"`
	SubjectID       string     `json:"subject_id"`
	TenantID        string     `json:"tenant_id"`
	DeviceID        string     `json:"device_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	RiskLevel       RiskLevel  `json:"risk_level"`
	MFAVerified     bool       `json:"mfa_verified"`
	LastEvaluatedAt time.Time  `json:"last_evaluated_at"`

	// Last-seen request attributes, set at creation and compared against the
	// live request by the signal derivation.
	LastIP        string `json:"last_ip,omitempty"`
	LastUserAgent string `json:"last_user_agent,omitempty"`
	LastGeo       string `json:"last_geo,omitempty"`
}

// State tags the Lookup variant: a session is live, revoked, or absent.
// Modeling Get's result as a sum avoids null-plus-optional-field checks at
// every call site.
type State int

const (
	StateAbsent State = iota
	StateLive
	StateRevoked
)

// Lookup is the tagged result of Store.Get. Session is non-nil only for
// StateLive and StateRevoked.
type Lookup struct {
	State   State
	Session *Session
}

// Live reports whether the lookup found a usable session.
func (l Lookup) Live() bool { return l.State == StateLive && l.Session != nil }
