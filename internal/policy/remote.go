package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

var remoteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "aegis_policy_remote_duration_seconds",
	Help:    "Latency of remote policy engine calls",
	Buckets: prometheus.DefBuckets,
})

// ReasonUnavailable marks denials caused by engine outage rather than policy.
const ReasonUnavailable = "policy_unavailable"

const decidePath = "/v1/data/authz/adaptive"

// RemoteEngine calls the external policy engine over HTTP. Timeouts,
// non-2xx responses, and an open circuit all return a deny rather than an
// error, so the pipeline's only failure mode is 403 + audit.
type RemoteEngine struct {
	base    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewRemote constructs the HTTP backend. Timeout defaults to 5s.
func NewRemote(base string, timeout time.Duration, logger *slog.Logger) *RemoteEngine {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "policy-engine",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &RemoteEngine{
		base:    base,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
	}
}

type decideRequest struct {
	Input Input `json:"input"`
}

type decideResponse struct {
	Result struct {
		Allow   bool   `json:"allow"`
		Package string `json:"package"`
		Rule    string `json:"rule"`
	} `json:"result"`
}

func (e *RemoteEngine) Decide(ctx context.Context, input Input) (Decision, error) {
	start := time.Now()
	defer func() { remoteLatency.Observe(time.Since(start).Seconds()) }()

	out, err := e.breaker.Execute(func() (any, error) {
		return e.call(ctx, input)
	})
	if err != nil {
		e.logger.WarnContext(ctx, "policy engine unavailable, denying", "error", err)
		return Decision{Allow: false, Reason: ReasonUnavailable}, nil
	}
	return out.(Decision), nil
}

func (e *RemoteEngine) call(ctx context.Context, input Input) (Decision, error) {
	body, err := json.Marshal(decideRequest{Input: input})
	if err != nil {
		return Decision{}, fmt.Errorf("encode policy input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base+decidePath, bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("policy engine call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Decision{}, fmt.Errorf("policy engine status %d", resp.StatusCode)
	}

	var decoded decideResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Decision{}, fmt.Errorf("decode policy response: %w", err)
	}

	d := Decision{Allow: decoded.Result.Allow}
	if decoded.Result.Package != "" || decoded.Result.Rule != "" {
		d.Explain = &Explain{Package: decoded.Result.Package, Rule: decoded.Result.Rule}
	}
	return d, nil
}
