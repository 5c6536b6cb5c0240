// Package pipeline is the request-time spine: a strictly ordered chain of
// admission steps. The chain is an explicit slice, not a registry mutated at
// boot, so ordering is encoded in one place and asserted by tests.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"aegis/internal/audit"
	"aegis/internal/policy"
	"aegis/internal/ratelimit"
	"aegis/internal/replay"
	"aegis/internal/risk"
	"aegis/internal/session"
	"aegis/pkg/requestcontext"
)

var denials = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "aegis_pipeline_denials_total",
	Help: "Requests short-circuited by the admission pipeline, by step",
}, []string{"step"})

// Deny reasons recorded in audit entries.
const (
	ReasonInvalidSession = "invalid_session"
	ReasonDeviceMismatch = "device_mismatch"
	ReasonReplay         = "replay"
	ReasonRateLimit      = "rate_limit"
	ReasonPolicyDeny     = "policy_deny"
)

// MechanismPBAC tags allow decisions produced by the policy engine.
const MechanismPBAC = "PBAC"

// Exchange carries one request through the chain. Steps populate it in
// order; later steps may rely on what earlier steps attached.
type Exchange struct {
	Credential string
	Facts      risk.RequestFacts
	Nonce      string
	Resource   string
	Action     string

	Claims   *Claims
	Session  *session.Session
	Profile  risk.Profile
	Input    policy.Input
	Decision policy.Decision
}

// Outcome is the step contract: either the chain continues, or the response
// is decided. Steps report failure through the outcome, never by panicking.
type Outcome struct {
	Continue bool
	Status   int
	Body     any
	Audit    *audit.Entry
}

func proceed() Outcome { return Outcome{Continue: true} }

func halt(status int, body any, entry *audit.Entry) Outcome {
	return Outcome{Status: status, Body: body, Audit: entry}
}

// Step is one named link of the chain.
type Step struct {
	Name  string
	Apply func(ctx context.Context, ex *Exchange) Outcome
}

// Pipeline owns the ordered steps and their dependencies.
type Pipeline struct {
	parser       *CredentialParser
	sessions     session.Store
	riskSvc      *risk.Service
	limiter      *ratelimit.Limiter
	builder      *policy.InputBuilder
	engine       policy.Engine
	replays      *replay.Guard
	auditor      audit.Recorder
	storeTimeout time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer

	steps []Step
}

// New assembles the chain. Phase 1 (cheap, deterministic): require_session,
// enforce_device_binding, reject_replay. Phase 2 (context-aware):
// continuous_evaluation, risk_throttle, build_policy_input, authorize,
// audit_decision. No step executes if an earlier one short-circuits.
func New(
	parser *CredentialParser,
	sessions session.Store,
	riskSvc *risk.Service,
	limiter *ratelimit.Limiter,
	builder *policy.InputBuilder,
	engine policy.Engine,
	replays *replay.Guard,
	auditor audit.Recorder,
	storeTimeout time.Duration,
	logger *slog.Logger,
) *Pipeline {
	if storeTimeout <= 0 {
		storeTimeout = 100 * time.Millisecond
	}
	p := &Pipeline{
		parser:       parser,
		sessions:     sessions,
		riskSvc:      riskSvc,
		limiter:      limiter,
		builder:      builder,
		engine:       engine,
		replays:      replays,
		auditor:      auditor,
		storeTimeout: storeTimeout,
		logger:       logger,
		tracer:       otel.Tracer("aegis/pipeline"),
	}
	p.steps = []Step{
		{Name: "require_session", Apply: p.requireSession},
		{Name: "enforce_device_binding", Apply: p.enforceDeviceBinding},
		{Name: "reject_replay", Apply: p.rejectReplay},
		{Name: "continuous_evaluation", Apply: p.continuousEvaluation},
		{Name: "risk_throttle", Apply: p.riskThrottle},
		{Name: "build_policy_input", Apply: p.buildPolicyInput},
		{Name: "authorize", Apply: p.authorize},
		{Name: "audit_decision", Apply: p.auditDecision},
	}
	return p
}

// StepNames exposes the encoded order so tests can pin it.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return names
}

// Middleware runs the chain ahead of the handler. Either the handler sees a
// context populated with session, risk, and policy input, or the response has
// already been written.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ex := exchangeFromRequest(r)

		for _, step := range p.steps {
			stepCtx, span := p.tracer.Start(ctx, "pipeline."+step.Name)
			outcome := step.Apply(stepCtx, ex)
			span.End()

			if outcome.Continue {
				continue
			}
			if ctx.Err() != nil {
				// Client gone; not a denial, nothing to write or audit.
				return
			}
			denials.WithLabelValues(step.Name).Inc()
			if outcome.Audit != nil {
				p.auditor.Record(ctx, *outcome.Audit)
			}
			writeJSON(w, outcome.Status, outcome.Body)
			return
		}

		ctx = withSession(ctx, ex.Session)
		ctx = withProfile(ctx, ex.Profile)
		ctx = withInput(ctx, ex.Input)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func exchangeFromRequest(r *http.Request) *Exchange {
	ex := &Exchange{
		Facts: risk.RequestFacts{
			IP:         clientIP(r),
			UserAgent:  r.UserAgent(),
			DeviceID:   r.Header.Get("X-Device-Id"),
			Geo:        r.Header.Get("X-Geo"),
			Automation: r.Header.Get("X-Automation") != "",
		},
		Nonce:    r.Header.Get("X-Nonce"),
		Resource: r.URL.Path,
		Action:   r.Method,
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		ex.Credential = c.Value
	}
	return ex
}

// --- Phase 1: early, cheap, deterministic -------------------------------

func (p *Pipeline) requireSession(ctx context.Context, ex *Exchange) Outcome {
	if ex.Credential == "" {
		return halt(http.StatusUnauthorized, errBody("Authentication required"), nil)
	}
	claims, err := p.parser.Parse(ex.Credential)
	if err != nil {
		return halt(http.StatusUnauthorized, errBody("Invalid session"),
			p.denyEntry(ctx, ex, ReasonInvalidSession))
	}
	ex.Claims = claims

	storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()
	lookup, err := p.sessions.Get(storeCtx, claims.SessionID)
	if err != nil {
		p.logger.ErrorContext(ctx, "session store lookup failed",
			"session_id", claims.SessionID, "error", err)
		return halt(http.StatusServiceUnavailable, errBody("Service unavailable"), nil)
	}
	if !lookup.Live() {
		entry := p.denyEntry(ctx, ex, ReasonInvalidSession)
		entry.SubjectID = claims.SubjectID
		entry.SessionID = claims.SessionID
		return halt(http.StatusUnauthorized, errBody("Invalid session"), entry)
	}
	ex.Session = lookup.Session
	return proceed()
}

func (p *Pipeline) enforceDeviceBinding(ctx context.Context, ex *Exchange) Outcome {
	if ex.Session.DeviceID == "" || ex.Facts.DeviceID == ex.Session.DeviceID {
		return proceed()
	}
	entry := p.denyEntry(ctx, ex, ReasonDeviceMismatch)
	return halt(http.StatusUnauthorized, errBody("Device mismatch"), entry)
}

func (p *Pipeline) rejectReplay(ctx context.Context, ex *Exchange) Outcome {
	if ex.Nonce == "" || p.replays == nil {
		return proceed()
	}
	first, err := p.replays.FirstUse(ctx, ex.Nonce)
	if err != nil {
		p.logger.ErrorContext(ctx, "replay store unreachable", "error", err)
		return halt(http.StatusServiceUnavailable, errBody("Service unavailable"), nil)
	}
	if !first {
		return halt(http.StatusUnauthorized, errBody("Replay detected"),
			p.denyEntry(ctx, ex, ReasonReplay))
	}
	return proceed()
}

// --- Phase 2: context-aware ---------------------------------------------

func (p *Pipeline) continuousEvaluation(ctx context.Context, ex *Exchange) Outcome {
	profile, err := p.riskSvc.Evaluate(ctx, ex.Facts, ex.Session)
	if err != nil {
		p.logger.ErrorContext(ctx, "risk persistence failed",
			"session_id", ex.Session.ID, "error", err)
		return halt(http.StatusServiceUnavailable, errBody("Service unavailable"), nil)
	}
	ex.Profile = profile
	if profile.Level == session.RiskCritical {
		// The risk service already revoked the session and audited the
		// termination.
		return halt(http.StatusForbidden, map[string]string{"message": "Session terminated"}, nil)
	}
	return proceed()
}

func (p *Pipeline) riskThrottle(ctx context.Context, ex *Exchange) Outcome {
	result, err := p.limiter.Allow(ctx, ex.Session.ID, ex.Profile.Level)
	if err != nil {
		// Fail closed on the limiter: an unreachable counter keeps 429.
		p.logger.ErrorContext(ctx, "rate limiter unreachable",
			"session_id", ex.Session.ID, "error", err)
		return halt(http.StatusTooManyRequests, errBody("Too many requests, try again later"),
			p.denyEntry(ctx, ex, ReasonRateLimit))
	}
	if !result.Allowed {
		return halt(http.StatusTooManyRequests, errBody("Too many requests, try again later"),
			p.denyEntry(ctx, ex, ReasonRateLimit))
	}
	return proceed()
}

func (p *Pipeline) buildPolicyInput(ctx context.Context, ex *Exchange) Outcome {
	input, err := p.builder.Build(ctx, ex.Session, ex.Profile.Level, ex.Resource, ex.Action)
	if err != nil {
		p.logger.ErrorContext(ctx, "policy input build failed",
			"session_id", ex.Session.ID, "error", err)
		return halt(http.StatusServiceUnavailable, errBody("Service unavailable"), nil)
	}
	ex.Input = input
	return proceed()
}

func (p *Pipeline) authorize(ctx context.Context, ex *Exchange) Outcome {
	decision, err := p.engine.Decide(ctx, ex.Input)
	if err != nil {
		// Engines report outages as denials; an error here is a programming
		// fault, still fail closed.
		p.logger.ErrorContext(ctx, "policy engine error", "error", err)
		decision = policy.Decision{Allow: false, Reason: policy.ReasonUnavailable}
	}
	ex.Decision = decision
	if decision.Allow {
		return proceed()
	}

	reason := decision.Reason
	if reason == "" {
		reason = ReasonPolicyDeny
	}
	entry := p.denyEntry(ctx, ex, reason)
	if decision.Explain != nil {
		entry.PolicyPackage = decision.Explain.Package
		entry.PolicyRule = decision.Explain.Rule
	}
	return halt(http.StatusForbidden, errBody("Forbidden"), entry)
}

func (p *Pipeline) auditDecision(ctx context.Context, ex *Exchange) Outcome {
	if ctx.Err() != nil {
		// A cancelled request must not produce an audit ALLOW.
		return halt(0, nil, nil)
	}
	entry := p.baseEntry(ctx, ex)
	entry.Decision = audit.DecisionAllow
	entry.Mechanism = MechanismPBAC
	if ex.Decision.Explain != nil {
		entry.PolicyPackage = ex.Decision.Explain.Package
		entry.PolicyRule = ex.Decision.Explain.Rule
	}
	p.auditor.Record(ctx, *entry)
	return proceed()
}

// --- helpers -------------------------------------------------------------

func (p *Pipeline) baseEntry(ctx context.Context, ex *Exchange) *audit.Entry {
	entry := &audit.Entry{
		Action:      audit.ActionAccessDecision,
		Resource:    ex.Resource,
		IP:          ex.Facts.IP,
		UserAgent:   ex.Facts.UserAgent,
		EvaluatedAt: requestcontext.Now(ctx),
	}
	if ex.Session != nil {
		entry.SubjectID = ex.Session.SubjectID
		entry.SessionID = ex.Session.ID
		entry.MFAVerified = ex.Session.MFAVerified
		entry.RiskLevel = string(ex.Session.RiskLevel)
	}
	if ex.Profile.Level != "" {
		entry.RiskLevel = string(ex.Profile.Level)
	}
	return entry
}

func (p *Pipeline) denyEntry(ctx context.Context, ex *Exchange, reason string) *audit.Entry {
	entry := p.baseEntry(ctx, ex)
	entry.Decision = audit.DecisionDeny
	entry.Reason = reason
	return entry
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
