// SPDX-License-Identifier: MIT
package audio

import "math"

func (e *Engine) EnableGate() {
	e.gateEnabled.Store(true)
}

func (e *Engine) DisableGate() {
	e.gateEnabled.Store(false)
}

// GateEnabled reports whether the gate is active.
func (e *Engine) GateEnabled() bool {
	return e.gateEnabled.Load()
}

// SetGateThreshold adjusts the noise gate threshold.
// The value is a peak amplitude in the range 0.0-1.0 where 0=always open, 1=always closed.
// NaN is treated as 0.
func (e *Engine) SetGateThreshold(threshold float64) {
	if !(threshold > 0.0) {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}

	e.gateThreshold.Store(math.Float32bits(float32(threshold)))
}

// GetGateThreshold returns the current noise gate threshold.
func (e *Engine) GetGateThreshold() float32 {
	return math.Float32frombits(e.gateThreshold.Load())
}

// peak returns the largest absolute sample value. NaN samples are ignored.
func peak(buffer []float32) float32 {
	var maxAmplitude float32
	for _, sample := range buffer {
		// Clear the sign bit instead of branching on it.
		amplitude := math.Float32frombits(math.Float32bits(sample) &^ (1 << 31))
		if amplitude > maxAmplitude {
			maxAmplitude = amplitude
		}
	}
	return maxAmplitude
}
