package risk

import (
	"time"

	"aegis/internal/session"
)

// Profile is the derived risk evaluation. It is a value, not the source of
// truth; the stored session carries the authoritative level.
type Profile struct {
	SessionID   string
	SubjectID   string
	Score       int // [0,100]
	Level       session.RiskLevel
	Signals     []Signal
	EvaluatedAt time.Time
}

// Thresholds map scores to levels. Lower bounds are inclusive:
// LOW <Medium, MEDIUM [Medium,High), HIGH [High,Critical), CRITICAL ≥Critical.
type Thresholds struct {
	Medium   int
	High     int
	Critical int
}

// DefaultThresholds returns the documented 30/60/80 split.
func DefaultThresholds() Thresholds {
	return Thresholds{Medium: 30, High: 60, Critical: 80}
}

// Engine scores signals deterministically: score = min(100, Σ severity × W).
// Intentionally explainable; no probabilistic models.
type Engine struct {
	weight     int
	thresholds Thresholds
}

// NewEngine builds the scoring engine. Zero values fall back to W=5 and the
// default thresholds.
func NewEngine(weight int, t Thresholds) *Engine {
	if weight <= 0 {
		weight = 5
	}
	if t == (Thresholds{}) {
		t = DefaultThresholds()
	}
	return &Engine{weight: weight, thresholds: t}
}

// Score aggregates the signals into a Profile for the given session.
func (e *Engine) Score(signals []Signal, sess *session.Session, now time.Time) Profile {
	sum := 0
	for _, s := range signals {
		sum += s.Severity
	}
	score := sum * e.weight
	if score > 100 {
		score = 100
	}

	return Profile{
		SessionID:   sess.ID,
		SubjectID:   sess.SubjectID,
		Score:       score,
		Level:       e.level(score),
		Signals:     signals,
		EvaluatedAt: now,
	}
}

func (e *Engine) level(score int) session.RiskLevel {
	switch {
	case score >= e.thresholds.Critical:
		return session.RiskCritical
	case score >= e.thresholds.High:
		return session.RiskHigh
	case score >= e.thresholds.Medium:
		return session.RiskMedium
	default:
		return session.RiskLow
	}
}
