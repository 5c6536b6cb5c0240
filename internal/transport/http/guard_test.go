package httptransport

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"aegis/pkg/testutil"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardPassesNormalRequests(t *testing.T) {
	rr := testutil.DoRequest(RequestGuard(okHandler()), testutil.NewRequest(t, http.MethodGet, "/api/resource?limit=10"))
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestGuardRejectsOversizedBody(t *testing.T) {
	req := testutil.NewRequest(t, http.MethodPost, "/api/resource")
	req.ContentLength = maxBodyBytes + 1

	rr := testutil.DoRequest(RequestGuard(okHandler()), req)
	testutil.AssertStatus(t, rr, http.StatusRequestEntityTooLarge)
}

func TestGuardRejectsQueryKeyFlood(t *testing.T) {
	params := make([]string, 0, maxQueryKeys+1)
	for i := 0; i <= maxQueryKeys; i++ {
		params = append(params, fmt.Sprintf("k%d=1", i))
	}
	req := testutil.NewRequest(t, http.MethodGet, "/api/resource?"+strings.Join(params, "&"))

	rr := testutil.DoRequest(RequestGuard(okHandler()), req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestGuardRejectsPathologicalDepth(t *testing.T) {
	req := testutil.NewRequest(t, http.MethodGet, "/"+strings.Repeat("a/", maxPathSegments+1))

	rr := testutil.DoRequest(RequestGuard(okHandler()), req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestGuardCapsBodyReader(t *testing.T) {
	// A request that lies about its length still cannot stream past the cap.
	body := strings.NewReader(strings.Repeat("x", maxBodyBytes+10))
	req, err := http.NewRequest(http.MethodPost, "/api/resource", body)
	assert.NoError(t, err)
	req.ContentLength = -1

	var readErr error
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, maxBodyBytes+10)
		_, readErr = r.Body.Read(buf[:])
		for readErr == nil {
			_, readErr = r.Body.Read(buf[:])
		}
		w.WriteHeader(http.StatusOK)
	})
	testutil.DoRequest(RequestGuard(inner), req)
	assert.Error(t, readErr)
}
