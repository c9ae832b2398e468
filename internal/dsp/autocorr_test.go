// SPDX-License-Identifier: MIT
package dsp

import (
	"math"
	"testing"
)

func spikeTrain(n, offset, period int) []float64 {
	x := make([]float64, n)
	for i := offset; i < n; i += period {
		x[i] = 1
	}
	return x
}

func TestAutocorrelateSpikeTrain(t *testing.T) {
	var ac Autocorrelator
	r := ac.Autocorrelate(spikeTrain(200, 0, 10))
	if len(r) != 200 {
		t.Fatalf("len = %d, want 200", len(r))
	}
	if math.Abs(r[0]-1) > 1e-9 {
		t.Errorf("r[0] = %v, want 1", r[0])
	}
	if r[10] <= r[9] || r[10] <= r[11] {
		t.Errorf("no peak at the period: r[9..11] = %v %v %v", r[9], r[10], r[11])
	}
}

func TestAutocorrelateSilence(t *testing.T) {
	var ac Autocorrelator
	if r := ac.Autocorrelate(make([]float64, 300)); r != nil {
		t.Errorf("expected nil for a constant input, got %d lags", len(r))
	}
}

func TestPickTempo(t *testing.T) {
	var ac Autocorrelator
	acf := ac.Autocorrelate(spikeTrain(400, 3, 10))

	// 20 frames per second, period 10 frames -> 120 BPM.
	c := PickTempo(acf, 20, 60, 200)
	if math.Abs(c.BPM-120) > 0.5 {
		t.Errorf("BPM = %.2f, want 120", c.BPM)
	}
	if c.Strength <= 0 || c.Strength > 1 {
		t.Errorf("strength = %v, want (0,1]", c.Strength)
	}
}

func TestPickTempoNoPeriodicity(t *testing.T) {
	if c := PickTempo(nil, 86, 60, 190); c.BPM != 0 {
		t.Errorf("nil acf: BPM = %v, want 0", c.BPM)
	}
	if c := PickTempo(make([]float64, 100), 86, 60, 190); c.BPM != 0 {
		t.Errorf("flat acf: BPM = %v, want 0", c.BPM)
	}
}

func TestTempoPrior(t *testing.T) {
	if TempoPrior(120) != 1 {
		t.Errorf("prior at centre = %v", TempoPrior(120))
	}
	if TempoPrior(128) <= TempoPrior(64) {
		t.Error("prior should favour 128 over 64")
	}
	if TempoPrior(0) != 0 {
		t.Error("prior of 0 BPM should be 0")
	}
}

func TestParabolicOffset(t *testing.T) {
	tests := []struct {
		l, c, r, want float64
	}{
		{1, 2, 1, 0},
		{1, 3, 2, 1.0 / 6},
		{2, 3, 1, -1.0 / 6},
		{1, 1, 1, 0}, // flat
	}
	for _, tt := range tests {
		if got := ParabolicOffset(tt.l, tt.c, tt.r); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParabolicOffset(%v,%v,%v) = %v, want %v", tt.l, tt.c, tt.r, got, tt.want)
		}
	}
}

func TestBeatOffset(t *testing.T) {
	if got := BeatOffset(spikeTrain(200, 3, 10), 10); got != 3 {
		t.Errorf("BeatOffset = %v, want 3", got)
	}
}
