package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"aegis/internal/audit"
	"aegis/internal/policy"
	"aegis/internal/session"
	"aegis/pkg/requestcontext"
	"aegis/pkg/sentinel"
)

// GrantParams captures an admin-initiated grant.
type GrantParams struct {
	SubjectType  SubjectType
	SubjectID    string
	ResourceType string
	ResourceID   string
	Scopes       []string
	ValidFrom    time.Time
	ValidUntil   *time.Time
	GrantedBy    string
	GrantReason  string
}

// Service owns the entitlement lifecycle (C10). Revocation forces re-
// authorization by killing every session the subject holds.
type Service struct {
	store    Store
	sessions session.Store
	auditor  audit.Recorder
	logger   *slog.Logger
}

// NewService wires the entitlement service.
func NewService(store Store, sessions session.Store, auditor audit.Recorder, logger *slog.Logger) *Service {
	return &Service{store: store, sessions: sessions, auditor: auditor, logger: logger}
}

// Grant creates an ACTIVE entitlement and audits it.
func (s *Service) Grant(ctx context.Context, p GrantParams) (Entitlement, error) {
	now := requestcontext.Now(ctx)
	if p.SubjectID == "" || p.ResourceType == "" || len(p.Scopes) == 0 {
		return Entitlement{}, fmt.Errorf("grant: subject, resource type and scopes required: %w", sentinel.ErrInvalidState)
	}
	validFrom := p.ValidFrom
	if validFrom.IsZero() {
		validFrom = now
	}

	e := Entitlement{
		ID:           uuid.NewString(),
		SubjectType:  p.SubjectType,
		SubjectID:    p.SubjectID,
		ResourceType: p.ResourceType,
		ResourceID:   p.ResourceID,
		Scopes:       p.Scopes,
		Status:       StatusActive,
		ValidFrom:    validFrom,
		ValidUntil:   p.ValidUntil,
		GrantedBy:    p.GrantedBy,
		GrantReason:  p.GrantReason,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Insert(ctx, e); err != nil {
		return Entitlement{}, err
	}

	s.auditor.Record(ctx, audit.Entry{
		SubjectID:    e.SubjectID,
		Action:       audit.ActionEntitlementGranted,
		Resource:     e.ResourceType + "/" + e.ResourceID,
		Decision:     audit.DecisionGranted,
		Reason:       e.GrantReason,
		Entitlements: []string{e.ID},
		IP:           requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
		EvaluatedAt:  now,
	})
	return e, nil
}

// Revoke terminates a grant and forces re-authorization for its subject by
// revoking all of the subject's sessions. Revoking an already-revoked or
// expired grant is a no-op; session revocation still runs so the call stays
// an effective kill switch.
func (s *Service) Revoke(ctx context.Context, id, revokedBy, reason string) error {
	now := requestcontext.Now(ctx)
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if e.Status != StatusRevoked {
		if !e.Status.CanTransitionTo(StatusRevoked) {
			return fmt.Errorf("entitlement %s is %s: %w", id, e.Status, sentinel.ErrInvalidState)
		}
		if err := s.store.SetStatus(ctx, id, StatusRevoked, now, &now); err != nil {
			return err
		}
	}

	count, err := s.sessions.RevokeAllForSubject(ctx, e.SubjectID)
	if err != nil {
		// The grant is already dead; surface the store error so the caller
		// can retry the forced re-auth.
		return fmt.Errorf("revoke subject sessions: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		SubjectID:    e.SubjectID,
		Action:       audit.ActionEntitlementRevoked,
		Resource:     e.ResourceType + "/" + e.ResourceID,
		Decision:     audit.DecisionRevoked,
		Reason:       reason,
		Entitlements: []string{e.ID},
		IP:           requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
		EvaluatedAt:  now,
	})
	s.logger.InfoContext(ctx, "entitlement revoked",
		"entitlement_id", e.ID,
		"subject_id", e.SubjectID,
		"revoked_by", revokedBy,
		"sessions_revoked", count,
	)
	return nil
}

// GetActiveForSubject returns grants with status ACTIVE whose validity window
// contains now.
func (s *Service) GetActiveForSubject(ctx context.Context, subjectID string) ([]Entitlement, error) {
	all, err := s.store.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	active := all[:0:0]
	for _, e := range all {
		if e.ActiveAt(now) {
			active = append(active, e)
		}
	}
	return active, nil
}

// ListForSubject returns every grant regardless of status.
func (s *Service) ListForSubject(ctx context.Context, subjectID string) ([]Entitlement, error) {
	return s.store.ListBySubject(ctx, subjectID)
}

// PolicyRefs implements policy.EntitlementSource: the compact projection the
// input builder embeds.
func (s *Service) PolicyRefs(ctx context.Context, subjectID string) ([]policy.EntitlementRef, error) {
	active, err := s.GetActiveForSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	refs := make([]policy.EntitlementRef, 0, len(active))
	for _, e := range active {
		refs = append(refs, policy.EntitlementRef{
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Scopes:       e.Scopes,
		})
	}
	return refs, nil
}
