// SPDX-License-Identifier: MIT
package tempo

const (
	attackBase   = 0.22
	attackStable = 0.38
	releaseRate  = 0.06

	// Below this the released value snaps to zero and the next valid
	// estimate initialises the filter again.
	smoothingFloorBPM = 1.0
)

// AttackRate returns the rising-edge coefficient for a stability score:
// 0.22 when unstable up to 0.60 when fully stable.
func AttackRate(stability float64) float64 {
	return attackBase + attackStable*clamp01(stability)
}

// SmoothingFilter is a one-pole filter on BPM magnitude with a fast,
// stability-modulated attack and a slow fixed release.
type SmoothingFilter struct {
	value       float64
	initialized bool
}

// Update feeds one raw estimate. valid is false when the backend produced
// no usable estimate this tick, in which case the value releases towards
// zero.
func (f *SmoothingFilter) Update(raw float64, valid bool, stability float64) float64 {
	if !valid {
		f.value += (0 - f.value) * releaseRate
		if f.value < smoothingFloorBPM {
			f.value = 0
			f.initialized = false
		}
		return f.value
	}

	if !f.initialized {
		f.value = raw
		f.initialized = true
		return f.value
	}

	rate := releaseRate
	if raw > f.value {
		rate = AttackRate(stability)
	}
	f.value += (raw - f.value) * rate
	return f.value
}

// Value returns the current filter output.
func (f *SmoothingFilter) Value() float64 { return f.value }

// Reset returns the filter to its uninitialised state.
func (f *SmoothingFilter) Reset() {
	f.value = 0
	f.initialized = false
}
