// SPDX-License-Identifier: MIT
package tempo

import "math"

// pulseWidth is the Gaussian width of the beat pulse as a fraction of the
// beat period.
const pulseWidth = 0.11

// BeatPhase returns the position in [0,1) of nowSec within the beat grid
// anchored at lastBeatSec. It is 0 when bpm is not a valid tempo or no beat
// is known.
func BeatPhase(nowSec, lastBeatSec, bpm float64, haveBeat bool) float64 {
	if !haveBeat || bpm < AbsoluteMinBPM || bpm > AbsoluteMaxBPM || math.IsNaN(nowSec) {
		return 0
	}
	period := 60 / bpm
	elapsed := math.Mod(nowSec-lastBeatSec, period)
	if elapsed < 0 {
		elapsed += period
	}
	phase := elapsed / period
	if phase >= 1 {
		return 0
	}
	return phase
}

// BeatPulse shapes a phase into a Gaussian bump peaking at 1 on the beat.
func BeatPulse(phase float64) float64 {
	d := math.Min(phase, 1-phase)
	x := d / pulseWidth
	return math.Exp(-x * x)
}
