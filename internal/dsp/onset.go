// SPDX-License-Identifier: MIT
package dsp

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// silenceFloor is the summed magnitude below which a frame counts as
// silent. Silent frames produce zero onset strength.
const silenceFloor = 1e-6

// fluxCompression is the gamma in log(1 + gamma*|X|).
const fluxCompression = 100.0

// OnsetValues are the onset detection function values of one frame.
type OnsetValues struct {
	Flux   float64 // half-wave rectified log-magnitude spectral flux
	HFC    float64 // rectified increase of high frequency content
	Energy float64 // rectified increase of spectral energy
}

// OnsetDetector turns a sequence of magnitude spectra into onset strength
// values. It keeps the previous frame for the difference features.
type OnsetDetector struct {
	prevLog    []float64
	prevHFC    float64
	prevEnergy float64
}

// NewOnsetDetector creates a detector for spectra with bins bins.
func NewOnsetDetector(bins int) *OnsetDetector {
	return &OnsetDetector{prevLog: make([]float64, bins)}
}

// Next computes the onset values for mag and remembers it as the previous
// frame.
func (d *OnsetDetector) Next(mag []float64) OnsetValues {
	if len(mag) != len(d.prevLog) {
		d.prevLog = make([]float64, len(mag))
	}

	if floats.Sum(mag) < silenceFloor {
		for i := range d.prevLog {
			d.prevLog[i] = 0
		}
		d.prevHFC = 0
		d.prevEnergy = 0
		return OnsetValues{}
	}

	var v OnsetValues
	var hfc, energy float64
	for k, m := range mag {
		l := math.Log1p(fluxCompression * m)
		if diff := l - d.prevLog[k]; diff > 0 {
			v.Flux += diff
		}
		d.prevLog[k] = l

		p := m * m
		energy += p
		hfc += float64(k) * p
	}

	v.HFC = math.Max(0, hfc-d.prevHFC)
	v.Energy = math.Max(0, energy-d.prevEnergy)
	d.prevHFC = hfc
	d.prevEnergy = energy
	return v
}

// Reset forgets the previous frame.
func (d *OnsetDetector) Reset() {
	for i := range d.prevLog {
		d.prevLog[i] = 0
	}
	d.prevHFC = 0
	d.prevEnergy = 0
}

// Standardize rescales x in place to zero mean and unit variance. A
// constant input is zeroed.
func Standardize(x []float64) {
	if len(x) == 0 {
		return
	}
	mean, std := stat.MeanStdDev(x, nil)
	if std == 0 || math.IsNaN(std) {
		for i := range x {
			x[i] = 0
		}
		return
	}
	floats.AddConst(-mean, x)
	floats.Scale(1/std, x)
}

// IsPeak reports whether x[i] is a local maximum above threshold.
func IsPeak(x []float64, i int, threshold float64) bool {
	if i <= 0 || i >= len(x)-1 {
		return false
	}
	return x[i] > threshold && x[i] > x[i-1] && x[i] >= x[i+1]
}
