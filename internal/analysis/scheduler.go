// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"tempo/internal/tempo"
)

const (
	minOutboundMs = 16.0

	relaxStability = 0.8
	relaxFactor    = 1.3
	relaxCeilMs    = 1200.0
	tightenFactor  = 0.67
	tightenFloorMs = 600.0

	adoptHysteresisMs = 100.0

	// throttleEpsilonMs absorbs jitter in frame timestamps.
	throttleEpsilonMs = 1.0
)

// OutboundInterval returns the minimum spacing in ms between audio posts.
// The spectral backend is capped by the input and render frame rates; the
// streaming backend only by the hop, since dropped hops corrupt it. Zero
// rates are ignored.
func OutboundInterval(method tempo.Method, hopMs, inputFps, maxFps float64) float64 {
	if method == tempo.MethodStreaming {
		return math.Max(0, hopMs)
	}
	interval := math.Max(minOutboundMs, hopMs)
	if inputFps > 0 {
		interval = math.Max(interval, 1000/inputFps)
	}
	if maxFps > 0 {
		interval = math.Max(interval, 1000/maxFps)
	}
	return interval
}

// SuggestInterval returns the next analysis interval: relaxed when the
// lock is stable, tightened otherwise.
func SuggestInterval(stability, intervalMs float64) float64 {
	if stability > relaxStability {
		return math.Min(relaxCeilMs, intervalMs*relaxFactor)
	}
	return math.Max(tightenFloorMs, intervalMs*tightenFactor)
}

// AdoptInterval reports whether suggested differs enough from current to
// be adopted, and the clamped value to adopt.
func AdoptInterval(current, suggested float64) (float64, bool) {
	if math.IsNaN(suggested) || math.Abs(suggested-current) <= adoptHysteresisMs {
		return current, false
	}
	next := math.Max(MinUpdateIntervalMs, math.Min(MaxUpdateIntervalMs, suggested))
	if next == current {
		return current, false
	}
	return next, true
}

// intervalGate admits an event when at least intervalMs passed since the
// last admitted one.
type intervalGate struct {
	lastMs float64
	primed bool
}

func (g *intervalGate) due(nowMs, intervalMs float64) bool {
	return !g.primed || nowMs-g.lastMs+throttleEpsilonMs >= intervalMs
}

func (g *intervalGate) mark(nowMs float64) {
	g.lastMs = nowMs
	g.primed = true
}

func (g *intervalGate) reset() { *g = intervalGate{} }
