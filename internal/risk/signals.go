package risk

import (
	"fmt"

	"github.com/mssola/useragent"

	"aegis/internal/session"
)

// SignalType enumerates the anomaly classes the engine understands.
type SignalType string

const (
	SignalIPAnomaly        SignalType = "IP_ANOMALY"
	SignalGeoAnomaly       SignalType = "GEO_ANOMALY"
	SignalDeviceMismatch   SignalType = "DEVICE_MISMATCH"
	SignalImpossibleTravel SignalType = "IMPOSSIBLE_TRAVEL"
	SignalBehaviorAnomaly  SignalType = "BEHAVIOR_ANOMALY"
	SignalThreatIntel      SignalType = "THREAT_INTEL"
	SignalSessionReuse     SignalType = "SESSION_REUSE"
)

// Signal is an ephemeral per-request observation. Signals are never persisted
// raw; only their aggregate lands in audit records.
type Signal struct {
	Type     SignalType
	Severity int // [1,10]
	Evidence string
}

// RequestFacts is the slice of the live request the derivation needs.
type RequestFacts struct {
	IP         string
	UserAgent  string
	DeviceID   string
	Geo        string
	Automation bool
}

// Severities makes the per-signal weights configuration of the engine, not
// code. DeviceMismatch defaults to 7 per the binding contract.
type Severities struct {
	IPAnomaly        int
	DeviceMismatch   int
	BehaviorAnomaly  int
	ThreatIntel      int
	ImpossibleTravel int
	SessionReuse     int
}

// DefaultSeverities returns the production weights.
func DefaultSeverities() Severities {
	return Severities{
		IPAnomaly:        3,
		DeviceMismatch:   7,
		BehaviorAnomaly:  2,
		ThreatIntel:      5,
		ImpossibleTravel: 8,
		SessionReuse:     6,
	}
}

// Derive is the pure mapping (Request, Session) → []Signal. It compares the
// live request against the session's bound device and last-seen attributes.
func Derive(req RequestFacts, sess *session.Session, sev Severities) []Signal {
	var signals []Signal

	if req.IP != "" && sess.LastIP != "" && req.IP != sess.LastIP {
		signals = append(signals, Signal{
			Type:     SignalIPAnomaly,
			Severity: sev.IPAnomaly,
			Evidence: fmt.Sprintf("ip changed from %s to %s", sess.LastIP, req.IP),
		})
	}

	if sess.DeviceID != "" && req.DeviceID != sess.DeviceID {
		signals = append(signals, Signal{
			Type:     SignalDeviceMismatch,
			Severity: sev.DeviceMismatch,
			Evidence: fmt.Sprintf("device %q does not match bound device", req.DeviceID),
		})
	}

	if browserChanged(sess.LastUserAgent, req.UserAgent) {
		signals = append(signals, Signal{
			Type:     SignalBehaviorAnomaly,
			Severity: sev.BehaviorAnomaly,
			Evidence: "user agent family changed mid-session",
		})
	}

	if req.Automation {
		signals = append(signals, Signal{
			Type:     SignalThreatIntel,
			Severity: sev.ThreatIntel,
			Evidence: "automation header present",
		})
	}

	if req.Geo != "" && sess.LastGeo != "" && req.Geo != sess.LastGeo {
		signals = append(signals, Signal{
			Type:     SignalImpossibleTravel,
			Severity: sev.ImpossibleTravel,
			Evidence: fmt.Sprintf("geo moved from %s to %s within one session", sess.LastGeo, req.Geo),
		})
	}

	return signals
}

// browserChanged compares browser families, not raw strings: minor version
// bumps mid-session are routine, a different engine is not.
func browserChanged(last, current string) bool {
	if last == "" || current == "" || last == current {
		return false
	}
	lastName, _ := useragent.New(last).Browser()
	curName, _ := useragent.New(current).Browser()
	return lastName != curName
}
