// SPDX-License-Identifier: MIT
package analysis

import "tempo/internal/tempo"

// Snapshot is the published tempo state. Values are replaced whole and
// never modified after publication.
type Snapshot struct {
	OK            bool         `json:"ok"`
	BPM           float64      `json:"bpm"`
	Confidence01  float64      `json:"confidence01"`
	Stability01   float64      `json:"stability01"`
	BeatPhase     float64      `json:"beatPhase"`
	BeatPulse     float64      `json:"beatPulse"`
	Method        tempo.Method `json:"method"`
	LastUpdatedMs float64      `json:"lastUpdatedMs"`
	LastError     string       `json:"lastError,omitempty"`
	HopSec        float64      `json:"hopSec,omitempty"`
}

// UnknownSnapshot is the neutral "no tempo" value.
func UnknownSnapshot(method tempo.Method) Snapshot {
	return Snapshot{Method: method}
}

// withResult builds the snapshot for a result. lastError is cleared.
func withResult(r ResultMessage, nowMs float64) Snapshot {
	return Snapshot{
		OK:            r.OK && r.BPM > 0,
		BPM:           r.BPM,
		Confidence01:  r.Confidence01,
		Stability01:   r.Stability01,
		BeatPhase:     r.BeatPhase,
		BeatPulse:     r.BeatPulse,
		Method:        r.Method,
		LastUpdatedMs: nowMs,
		HopSec:        r.HopSec,
	}
}

// withError keeps the last values, including when they were measured, but
// drops ok and records the error.
func (s Snapshot) withError(msg string) Snapshot {
	s.OK = false
	s.LastError = msg
	return s
}
