package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aegis/internal/audit"
	"aegis/internal/entitlement"
)

// EntitlementService is the slice of the entitlement lifecycle the admin
// surface needs.
type EntitlementService interface {
	Grant(ctx context.Context, p entitlement.GrantParams) (entitlement.Entitlement, error)
	Revoke(ctx context.Context, id, revokedBy, reason string) error
	ListForSubject(ctx context.Context, subjectID string) ([]entitlement.Entitlement, error)
}

// SessionRevoker is the slice of the session store the admin surface needs.
type SessionRevoker interface {
	Revoke(ctx context.Context, id string) error
	RevokeAllForSubject(ctx context.Context, subjectID string) (int, error)
}

// AuditReader serves chain verification requests.
type AuditReader interface {
	ListOrdered(ctx context.Context, limit int) ([]audit.Record, error)
}

// AdminHandler exposes the operator surface: grants, revocations and audit
// chain verification. The router mounts it behind the admission pipeline, so
// every call here already carries a live, policy-authorized session.
type AdminHandler struct {
	entitlements EntitlementService
	sessions     SessionRevoker
	auditReader  AuditReader
}

func NewAdminHandler(entitlements EntitlementService, sessions SessionRevoker, auditReader AuditReader) *AdminHandler {
	return &AdminHandler{entitlements: entitlements, sessions: sessions, auditReader: auditReader}
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/entitlements", h.handleGrant)
	r.Post("/entitlements/{id}/revoke", h.handleRevokeEntitlement)
	r.Get("/subjects/{subjectID}/entitlements", h.handleListEntitlements)
	r.Post("/sessions/{id}/revoke", h.handleRevokeSession)
	r.Post("/subjects/{subjectID}/sessions/revoke", h.handleRevokeSubjectSessions)
	r.Get("/audit/verify", h.handleVerifyAudit)
}

type grantRequest struct {
	SubjectType  string     `json:"subject_type"`
	SubjectID    string     `json:"subject_id"`
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	Scopes       []string   `json:"scopes"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
	GrantedBy    string     `json:"granted_by"`
	GrantReason  string     `json:"grant_reason"`
}

func (h *AdminHandler) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	params := entitlement.GrantParams{
		SubjectType:  entitlement.SubjectType(req.SubjectType),
		SubjectID:    req.SubjectID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Scopes:       req.Scopes,
		ValidUntil:   req.ValidUntil,
		GrantedBy:    req.GrantedBy,
		GrantReason:  req.GrantReason,
	}
	if req.ValidFrom != nil {
		params.ValidFrom = *req.ValidFrom
	}
	e, err := h.entitlements.Grant(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

type revokeRequest struct {
	RevokedBy string `json:"revoked_by"`
	Reason    string `json:"reason"`
}

func (h *AdminHandler) handleRevokeEntitlement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if err := h.entitlements.Revoke(r.Context(), id, req.RevokedBy, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *AdminHandler) handleListEntitlements(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	list, err := h.entitlements.ListForSubject(r.Context(), subjectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entitlements": list})
}

func (h *AdminHandler) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.Revoke(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *AdminHandler) handleRevokeSubjectSessions(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	count, err := h.sessions.RevokeAllForSubject(r.Context(), subjectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked", "sessions_revoked": count})
}

// handleVerifyAudit replays the persisted chain and reports the first break,
// if any.
func (h *AdminHandler) handleVerifyAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditReader == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Audit storage not configured"})
		return
	}
	const verifyLimit = 10000
	records, err := h.auditReader.ListOrdered(r.Context(), verifyLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := audit.Verify(records); err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{
			"valid":   false,
			"records": len(records),
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "records": len(records)})
}
