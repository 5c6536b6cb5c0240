package httptransport

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"aegis/internal/entitlement"
	"aegis/internal/pipeline"
	"aegis/internal/policy"
	"aegis/internal/risk"
	"aegis/internal/session"
	"aegis/pkg/testutil"
)

type fakeLister struct {
	active []entitlement.Entitlement
}

func (f *fakeLister) GetActiveForSubject(context.Context, string) ([]entitlement.Entitlement, error) {
	return f.active, nil
}

func apiRouter(lister EntitlementLister) http.Handler {
	r := chi.NewRouter()
	NewAPIHandler(lister).Register(r)
	return r
}

func authenticated(req *http.Request) *http.Request {
	sess := &session.Session{
		ID:          "sess-1",
		SubjectID:   "subject-1",
		TenantID:    "tenant-1",
		MFAVerified: true,
		RiskLevel:   session.RiskLow,
	}
	ctx := pipeline.NewContext(req.Context(), sess,
		risk.Profile{SessionID: "sess-1", Score: 15, Level: session.RiskLow},
		policy.Input{Resource: "/api/me", Action: "GET"},
	)
	return req.WithContext(ctx)
}

func TestMeEndpoint(t *testing.T) {
	router := apiRouter(&fakeLister{})

	req := authenticated(testutil.NewRequest(t, http.MethodGet, "/me"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr, "subject_id", "subject-1")
	testutil.AssertJSONContains(t, rr, "risk_level", "LOW")
	testutil.AssertJSONContains(t, rr, "risk_score", float64(15))
}

func TestMeWithoutSessionContext(t *testing.T) {
	router := apiRouter(&fakeLister{})

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/me"))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestMyEntitlementsEndpoint(t *testing.T) {
	router := apiRouter(&fakeLister{active: []entitlement.Entitlement{{ID: "ent-1"}}})

	req := authenticated(testutil.NewRequest(t, http.MethodGet, "/me/entitlements"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	body := testutil.UnmarshalResponse[map[string][]entitlement.Entitlement](t, rr)
	assert.Len(t, (*body)["entitlements"], 1)
}
