package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aegis/internal/entitlement"
	"aegis/internal/pipeline"
)

// EntitlementLister exposes a subject's currently active grants.
type EntitlementLister interface {
	GetActiveForSubject(ctx context.Context, subjectID string) ([]entitlement.Entitlement, error)
}

// APIHandler serves the authenticated subject surface. Every handler reads
// the session and risk evaluation the pipeline attached to the context.
type APIHandler struct {
	entitlements EntitlementLister
}

func NewAPIHandler(entitlements EntitlementLister) *APIHandler {
	return &APIHandler{entitlements: entitlements}
}

func (h *APIHandler) Register(r chi.Router) {
	r.Get("/me", h.handleMe)
	r.Get("/me/entitlements", h.handleMyEntitlements)
}

func (h *APIHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := pipeline.SessionFromContext(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid session"})
		return
	}
	body := map[string]any{
		"subject_id":   sess.SubjectID,
		"session_id":   sess.ID,
		"tenant_id":    sess.TenantID,
		"mfa_verified": sess.MFAVerified,
	}
	if profile, ok := pipeline.ProfileFromContext(r.Context()); ok {
		body["risk_level"] = profile.Level
		body["risk_score"] = profile.Score
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *APIHandler) handleMyEntitlements(w http.ResponseWriter, r *http.Request) {
	sess := pipeline.SessionFromContext(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid session"})
		return
	}
	list, err := h.entitlements.GetActiveForSubject(r.Context(), sess.SubjectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entitlements": list})
}
