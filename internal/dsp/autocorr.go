// SPDX-License-Identifier: MIT
package dsp

import (
	"math"

	"tempo/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Tempo prior: a log-normal weight centred on priorCentreBPM with a width
// of priorOctaves. It breaks ties between a tempo and its half/double.
const (
	priorCentreBPM = 120.0
	priorOctaves   = 1.0
)

// Autocorrelator computes normalised autocorrelation via FFT. It caches
// the FFT plan for the last padded size.
type Autocorrelator struct {
	fft    *fourier.FFT
	padded []float64
	coeffs []complex128
	seq    []float64
}

// Autocorrelate returns the biased, mean-removed autocorrelation of x,
// normalised so r[0] == 1. The result has len(x) lags. An input with no
// variance returns nil.
func (a *Autocorrelator) Autocorrelate(x []float64) []float64 {
	n := len(x)
	if n < 2 {
		return nil
	}

	size := bitint.NextPowerOfTwo(2 * n)
	if a.fft == nil || a.fft.Len() != size {
		a.fft = fourier.NewFFT(size)
		a.padded = make([]float64, size)
		a.coeffs = make([]complex128, size/2+1)
		a.seq = make([]float64, size)
	}

	mean := stat.Mean(x, nil)
	for i := range a.padded {
		if i < n {
			a.padded[i] = x[i] - mean
		} else {
			a.padded[i] = 0
		}
	}

	a.fft.Coefficients(a.coeffs, a.padded)
	for i, c := range a.coeffs {
		re, im := real(c), imag(c)
		a.coeffs[i] = complex(re*re+im*im, 0)
	}
	a.fft.Sequence(a.seq, a.coeffs)

	if a.seq[0] <= 1e-12 {
		return nil
	}
	r := make([]float64, n)
	copy(r, a.seq[:n])
	floats.Scale(1/a.seq[0], r)
	return r
}

// TempoCandidate is a tempo picked from an autocorrelation.
type TempoCandidate struct {
	BPM      float64 // 0 when no periodicity was found
	Lag      float64 // period in frames, sub-frame interpolated
	Strength float64 // autocorrelation at the chosen lag, in [0,1]
}

// PickTempo searches acf for the best periodicity between minBPM and
// maxBPM. frameRate is the rate of the sequence acf was computed from.
func PickTempo(acf []float64, frameRate, minBPM, maxBPM float64) TempoCandidate {
	if len(acf) < 4 || frameRate <= 0 || minBPM <= 0 || maxBPM <= minBPM {
		return TempoCandidate{}
	}

	lo := max(int(math.Floor(frameRate*60/maxBPM)), 1)
	hi := min(int(math.Ceil(frameRate*60/minBPM)), len(acf)-2)

	best := -1
	bestScore := 0.0
	for lag := lo; lag <= hi; lag++ {
		if !IsPeak(acf, lag, 0) {
			continue
		}
		score := acf[lag] * TempoPrior(60*frameRate/float64(lag))
		if score > bestScore {
			bestScore = score
			best = lag
		}
	}
	if best < 0 {
		return TempoCandidate{}
	}

	lag := float64(best) + ParabolicOffset(acf[best-1], acf[best], acf[best+1])
	return TempoCandidate{
		BPM:      60 * frameRate / lag,
		Lag:      lag,
		Strength: math.Min(1, math.Max(0, acf[best])),
	}
}

// TempoPrior weights bpm by its distance in octaves from 120 BPM.
func TempoPrior(bpm float64) float64 {
	if bpm <= 0 {
		return 0
	}
	d := math.Log2(bpm/priorCentreBPM) / priorOctaves
	return math.Exp(-0.5 * d * d)
}

// ParabolicOffset returns the vertex offset in [-0.5, 0.5] of the parabola
// through three equally spaced points around a peak.
func ParabolicOffset(left, centre, right float64) float64 {
	denom := left - 2*centre + right
	if denom >= 0 {
		return 0
	}
	off := 0.5 * (left - right) / denom
	return math.Max(-0.5, math.Min(0.5, off))
}

// BeatOffset finds the phase, in frames within [0, period), whose comb of
// period-spaced ODF samples has the highest total strength.
func BeatOffset(odf []float64, period float64) float64 {
	if period < 1 || len(odf) == 0 {
		return 0
	}

	bestOffset := 0.0
	bestScore := math.Inf(-1)
	for phase := 0; phase < int(period); phase++ {
		score := 0.0
		for pos := float64(phase); pos < float64(len(odf)); pos += period {
			idx := int(math.Round(pos))
			if idx >= len(odf) {
				break
			}
			score += odf[idx]
		}
		if score > bestScore {
			bestScore = score
			bestOffset = float64(phase)
		}
	}
	return bestOffset
}
