// Package httptransport is the thin HTTP layer. Handlers delegate to domain
// services; admission is enforced by the pipeline middleware mounted ahead of
// every protected route.
package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aegis/internal/pipeline"
	"aegis/pkg/requestcontext"
)

// Pinger reports backing store reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps collects everything the router mounts.
type Deps struct {
	Pipeline    *pipeline.Pipeline
	Admin       *AdminHandler
	API         *APIHandler
	RedisHealth func(ctx context.Context) error
	Postgres    Pinger
}

// NewRouter wires the public surface: health and metrics unauthenticated,
// everything under /api and /admin behind the admission pipeline.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestMetadata)
	r.Use(RequestGuard)

	r.Get("/healthz", handleHealth(d.RedisHealth, d.Postgres))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(d.Pipeline.Middleware)
		d.API.Register(api)
	})
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(d.Pipeline.Middleware)
		d.Admin.Register(admin)
	})
	return r
}

// requestMetadata pins a correlation id, client metadata and a single clock
// reading for the whole request.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = requestcontext.WithRequestID(ctx, requestID)
		ctx = requestcontext.WithClientMetadata(ctx, r.RemoteAddr, r.UserAgent())
		ctx = requestcontext.WithTime(ctx, time.Now())
		if deviceID := r.Header.Get("X-Device-Id"); deviceID != "" {
			ctx = requestcontext.WithDeviceID(ctx, deviceID)
		}
		if geo := r.Header.Get("X-Geo"); geo != "" {
			ctx = requestcontext.WithGeo(ctx, geo)
		}
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func handleHealth(redisHealth func(ctx context.Context) error, pg Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := map[string]string{"redis": "ok", "postgres": "ok"}
		healthy := true
		if redisHealth != nil {
			if err := redisHealth(ctx); err != nil {
				status["redis"] = err.Error()
				healthy = false
			}
		}
		if pg != nil {
			if err := pg.Ping(ctx); err != nil {
				status["postgres"] = err.Error()
				healthy = false
			}
		}
		if !healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}
