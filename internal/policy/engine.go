// Package policy defines the decision engine capability and its input
// contract. Two backends exist behind one interface, a remote HTTP engine and
// an embedded bytecode evaluator; the decision cache wraps either. The choice
// is invisible to callers.
package policy

import "context"

// Input is the fixed schema sent to the policy engine. Field order is
// irrelevant on the wire: serialization is canonical (sorted keys) so
// decision-cache fingerprints are stable across hosts.
type Input struct {
	Tenant       TenantFacts      `json:"tenant"`
	Subject      SubjectFacts     `json:"subject"`
	Risk         RiskFacts        `json:"risk"`
	Resource     string           `json:"resource"`
	Action       string           `json:"action"`
	Entitlements []EntitlementRef `json:"entitlements,omitempty"`
}

// TenantFacts is the tenant projection the engine sees.
type TenantFacts struct {
	ID        string `json:"id"`
	Plan      string `json:"plan"`
	Throttled bool   `json:"throttled"`
}

// SubjectFacts identifies the caller.
type SubjectFacts struct {
	ID          string `json:"id"`
	MFAVerified bool   `json:"mfa_verified"`
}

// RiskFacts carries the current evaluation.
type RiskFacts struct {
	RiskLevel string `json:"riskLevel"`
}

// EntitlementRef is the compact grant projection built by the entitlement
// service for the engine.
type EntitlementRef struct {
	ResourceType string   `json:"resource_type"`
	ResourceID   string   `json:"resource_id"`
	Scopes       []string `json:"scopes"`
}

// Explain names the policy package and rule that produced a decision.
type Explain struct {
	Package string `json:"package,omitempty"`
	Rule    string `json:"rule,omitempty"`
}

// Decision is the engine's answer. Engine failures are expressed as
// Allow=false with a Reason, never as errors: the pipeline fails closed
// without special-casing outages.
type Decision struct {
	Allow   bool     `json:"allow"`
	Explain *Explain `json:"explain,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// Engine is the single decision capability.
type Engine interface {
	Decide(ctx context.Context, input Input) (Decision, error)
}
