package risk

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"aegis/internal/session"
)

func testSession() *session.Session {
	return &session.Session{ID: "sess-1", SubjectID: "subject-1"}
}

func signalsWithSeverities(sevs ...int) []Signal {
	out := make([]Signal, len(sevs))
	for i, s := range sevs {
		out[i] = Signal{Type: SignalIPAnomaly, Severity: s}
	}
	return out
}

func TestScoreNoSignalsIsLow(t *testing.T) {
	e := NewEngine(5, DefaultThresholds())
	p := e.Score(nil, testSession(), time.Now())
	assert.Equal(t, 0, p.Score)
	assert.Equal(t, session.RiskLow, p.Level)
}

func TestScoreLevelBoundariesAreInclusive(t *testing.T) {
	e := NewEngine(1, DefaultThresholds())
	cases := []struct {
		severity int
		want     session.RiskLevel
	}{
		{29, session.RiskLow},
		{30, session.RiskMedium},
		{59, session.RiskMedium},
		{60, session.RiskHigh},
		{79, session.RiskHigh},
		{80, session.RiskCritical},
		{100, session.RiskCritical},
	}
	for _, tc := range cases {
		p := e.Score(signalsWithSeverities(tc.severity), testSession(), time.Now())
		assert.Equal(t, tc.want, p.Level, "severity sum %d", tc.severity)
	}
}

func TestScoreCapsAtHundred(t *testing.T) {
	e := NewEngine(5, DefaultThresholds())
	p := e.Score(signalsWithSeverities(10, 10, 10, 10), testSession(), time.Now())
	assert.Equal(t, 100, p.Score)
	assert.Equal(t, session.RiskCritical, p.Level)
}

func TestScoreIPAndDeviceChangeIsMedium(t *testing.T) {
	// ip change (3) + device mismatch (7) at weight 5 lands exactly on the
	// MEDIUM lower bound.
	e := NewEngine(5, DefaultThresholds())
	p := e.Score(signalsWithSeverities(3, 7), testSession(), time.Now())
	assert.Equal(t, 50, p.Score)
	assert.Equal(t, session.RiskMedium, p.Level)
}

func TestScoreStackedAnomaliesAreCritical(t *testing.T) {
	// ip (3) + device (7) + behavior (2) + threat intel (5) at weight 5.
	e := NewEngine(5, DefaultThresholds())
	p := e.Score(signalsWithSeverities(3, 7, 2, 5), testSession(), time.Now())
	assert.Equal(t, 85, p.Score)
	assert.Equal(t, session.RiskCritical, p.Level)
}

func TestScoreIsBoundedAndDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("score stays in [0,100] and repeats exactly", prop.ForAll(
		func(sevs []int, weight int) bool {
			e := NewEngine(weight, DefaultThresholds())
			signals := signalsWithSeverities(sevs...)
			now := time.Now()
			a := e.Score(signals, testSession(), now)
			b := e.Score(signals, testSession(), now)
			return a.Score >= 0 && a.Score <= 100 && a.Score == b.Score && a.Level == b.Level
		},
		gen.SliceOf(gen.IntRange(1, 10)),
		gen.IntRange(1, 20),
	))

	properties.Property("more signals never lower the score", prop.ForAll(
		func(sevs []int, extra int) bool {
			e := NewEngine(5, DefaultThresholds())
			base := e.Score(signalsWithSeverities(sevs...), testSession(), time.Now())
			grown := e.Score(signalsWithSeverities(append(sevs, extra)...), testSession(), time.Now())
			return grown.Score >= base.Score
		},
		gen.SliceOf(gen.IntRange(1, 10)),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
