package httptransport

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request shape limits applied before any authorization work. Oversized or
// pathological requests are rejected without touching the stores.
const (
	maxBodyBytes    = 100 << 10
	maxQueryKeys    = 50
	maxPathSegments = 20
)

var guardRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "aegis_request_guard_rejections_total",
	Help: "Requests rejected by shape limits before authorization",
}, []string{"limit"})

// RequestGuard enforces body, query and path limits on every route it wraps.
func RequestGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxBodyBytes {
			guardRejections.WithLabelValues("body").Inc()
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Request body too large"})
			return
		}
		if len(r.URL.Query()) > maxQueryKeys {
			guardRejections.WithLabelValues("query").Inc()
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Too many query parameters"})
			return
		}
		if strings.Count(strings.Trim(r.URL.Path, "/"), "/") >= maxPathSegments {
			guardRejections.WithLabelValues("path").Inc()
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Path too deep"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}
