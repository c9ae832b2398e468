// SPDX-License-Identifier: MIT
package tempo

import (
	"math"
	"sort"
)

const (
	// HistorySize is the number of accepted estimates kept for scoring.
	HistorySize = 10
	// MinStabilitySamples is the history length below which stability is 0.
	MinStabilitySamples = 5

	madLockedBPM = 0.5 // MAD at or below this scores 1
	madLostBPM   = 6.0 // MAD at or above this scores 0
)

// StabilityTracker keeps the most recent accepted BPM estimates.
type StabilityTracker struct {
	history []float64
	scratch []float64
}

// Push appends bpm, evicting the oldest sample beyond HistorySize.
func (s *StabilityTracker) Push(bpm float64) {
	if len(s.history) == HistorySize {
		copy(s.history, s.history[1:])
		s.history = s.history[:HistorySize-1]
	}
	s.history = append(s.history, bpm)
}

// Len returns the number of samples held.
func (s *StabilityTracker) Len() int { return len(s.history) }

// History returns a copy of the samples, oldest first.
func (s *StabilityTracker) History() []float64 {
	out := make([]float64, len(s.history))
	copy(out, s.history)
	return out
}

// Stability01 scores the current history.
func (s *StabilityTracker) Stability01() float64 {
	if len(s.history) < MinStabilitySamples {
		return 0
	}
	if cap(s.scratch) < len(s.history) {
		s.scratch = make([]float64, len(s.history), HistorySize)
	}
	s.scratch = s.scratch[:len(s.history)]
	copy(s.scratch, s.history)
	return stabilityFromMAD(medianAbsDeviation(s.scratch))
}

// ComputeStability01 scores history: 0 below five samples, otherwise the
// median absolute deviation mapped linearly from 0.5 BPM (1.0) to 6 BPM
// (0.0). history is not modified.
func ComputeStability01(history []float64) float64 {
	if len(history) < MinStabilitySamples {
		return 0
	}
	work := make([]float64, len(history))
	copy(work, history)
	return stabilityFromMAD(medianAbsDeviation(work))
}

func stabilityFromMAD(mad float64) float64 {
	return clamp01((madLostBPM - mad) / (madLostBPM - madLockedBPM))
}

// medianAbsDeviation returns median(|x - median(x)|), reordering x.
func medianAbsDeviation(x []float64) float64 {
	m := median(x)
	for i, v := range x {
		x[i] = math.Abs(v - m)
	}
	return median(x)
}

// median sorts x in place and returns its median.
func median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	sort.Float64s(x)
	if n%2 == 1 {
		return x[n/2]
	}
	return (x[n/2-1] + x[n/2]) / 2
}
