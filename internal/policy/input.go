package policy

import (
	"context"
	"fmt"

	"aegis/internal/session"
)

// TenantDirectory resolves the tenant projection the engine needs. The
// production implementation is config-backed; anything richer belongs to the
// tenant collaborator, not this core.
type TenantDirectory interface {
	Lookup(ctx context.Context, tenantID string) (TenantFacts, error)
}

// EntitlementSource supplies the compact grant projection used in inputs.
type EntitlementSource interface {
	PolicyRefs(ctx context.Context, subjectID string) ([]EntitlementRef, error)
}

// InputBuilder assembles the policy input from session, tenant, risk,
// resource, and action.
type InputBuilder struct {
	tenants      TenantDirectory
	entitlements EntitlementSource
}

// NewInputBuilder wires the builder. entitlements may be nil when the
// deployment runs without explicit grants.
func NewInputBuilder(tenants TenantDirectory, entitlements EntitlementSource) *InputBuilder {
	return &InputBuilder{tenants: tenants, entitlements: entitlements}
}

// Build produces the engine input for one request.
func (b *InputBuilder) Build(ctx context.Context, sess *session.Session, level session.RiskLevel, resource, action string) (Input, error) {
	tenant, err := b.tenants.Lookup(ctx, sess.TenantID)
	if err != nil {
		return Input{}, fmt.Errorf("tenant lookup: %w", err)
	}

	input := Input{
		Tenant:   tenant,
		Subject:  SubjectFacts{ID: sess.SubjectID, MFAVerified: sess.MFAVerified},
		Risk:     RiskFacts{RiskLevel: string(level)},
		Resource: resource,
		Action:   action,
	}

	if b.entitlements != nil {
		refs, err := b.entitlements.PolicyRefs(ctx, sess.SubjectID)
		if err != nil {
			return Input{}, fmt.Errorf("entitlement projection: %w", err)
		}
		input.Entitlements = refs
	}
	return input, nil
}

// StaticTenantDirectory serves tenant facts from configuration. Unknown
// tenants resolve to the default plan rather than failing the request.
type StaticTenantDirectory struct {
	tenants     map[string]TenantFacts
	defaultPlan string
}

// NewStaticTenantDirectory builds the config-backed directory.
func NewStaticTenantDirectory(tenants map[string]TenantFacts, defaultPlan string) *StaticTenantDirectory {
	if defaultPlan == "" {
		defaultPlan = "standard"
	}
	return &StaticTenantDirectory{tenants: tenants, defaultPlan: defaultPlan}
}

func (d *StaticTenantDirectory) Lookup(_ context.Context, tenantID string) (TenantFacts, error) {
	if t, ok := d.tenants[tenantID]; ok {
		t.ID = tenantID
		return t, nil
	}
	return TenantFacts{ID: tenantID, Plan: d.defaultPlan}, nil
}
