package risk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"aegis/internal/audit"
	"aegis/internal/session"
	"aegis/pkg/requestcontext"
)

var criticalTerminations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "aegis_risk_critical_terminations_total",
	Help: "Sessions terminated mid-flight after a CRITICAL evaluation",
})

// Service binds an evaluation to enforcement: score the request, then
// either terminate the session (CRITICAL) or persist the new level.
type Service struct {
	engine     *Engine
	sessions   session.Store
	auditor    audit.Recorder
	severities Severities
	logger     *slog.Logger
}

// NewService wires the continuous evaluation service.
func NewService(engine *Engine, sessions session.Store, auditor audit.Recorder, sev Severities, logger *slog.Logger) *Service {
	if sev == (Severities{}) {
		sev = DefaultSeverities()
	}
	return &Service{
		engine:     engine,
		sessions:   sessions,
		auditor:    auditor,
		severities: sev,
		logger:     logger,
	}
}

// Evaluate recomputes session risk from the live request. On CRITICAL the
// session is revoked and a termination event audited; the caller short-
// circuits with 403. Otherwise the new level is persisted in place.
//
// Audit failures never surface; store failures on the non-critical path do,
// so the pipeline can fail closed.
func (s *Service) Evaluate(ctx context.Context, req RequestFacts, sess *session.Session) (Profile, error) {
	now := requestcontext.Now(ctx)
	signals := Derive(req, sess, s.severities)
	profile := s.engine.Score(signals, sess, now)

	if profile.Level == session.RiskCritical {
		criticalTerminations.Inc()
		if err := s.sessions.Revoke(ctx, sess.ID); err != nil {
			// The request is denied either way; the TTL bounds the orphan.
			s.logger.ErrorContext(ctx, "failed to revoke critical-risk session",
				"session_id", sess.ID, "error", err)
		}
		s.auditor.Record(ctx, audit.Entry{
			SubjectID:   sess.SubjectID,
			SessionID:   sess.ID,
			Action:      audit.ActionSessionTerminatedHighRisk,
			Decision:    audit.DecisionDeny,
			Reason:      fmt.Sprintf("risk score %d", profile.Score),
			RiskLevel:   string(profile.Level),
			MFAVerified: sess.MFAVerified,
			IP:          req.IP,
			UserAgent:   req.UserAgent,
			EvaluatedAt: now,
		})
		return profile, nil
	}

	if err := s.sessions.UpdateRisk(ctx, sess.ID, profile.Level, now); err != nil {
		return profile, fmt.Errorf("persist risk level: %w", err)
	}
	return profile, nil
}
