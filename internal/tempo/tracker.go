// SPDX-License-Identifier: MIT
package tempo

import (
	"fmt"

	"tempo/internal/dsp"

	"gonum.org/v1/gonum/floats"
)

// Online tracker geometry, in samples at the native rate.
const (
	StreamBufferSize = 2048
	StreamHopSize    = 512
)

const (
	trackerHistorySec = 6.0 // ODF kept for autocorrelation
	trackerMinSec     = 2.0 // ODF needed before the first estimate
	trackerPeakSec    = 1.0 // ODF averaged for the peak threshold
	trackerEvery      = 8   // hops between tempo estimates

	trackerMinBPM = 40.0
	trackerMaxBPM = 250.0

	// trackerMinStrength is the autocorrelation below which the tracker
	// considers itself unlocked.
	trackerMinStrength = 0.1
	peakFactor         = 1.5
	beatTolerance      = 0.25 // fraction of the period
)

// TrackerOutput is the result of processing one hop.
type TrackerOutput struct {
	// NewEstimate is set on hops where the tempo was recomputed and found.
	NewEstimate bool
	BPM         float64
	// Beat is set when a beat was placed. BeatLagHops is how many hops
	// before the end of this hop it fell.
	Beat        bool
	BeatLagHops float64
}

// OnlineTracker is a causal tempo and beat tracker that consumes fixed-size
// hops. Tempo comes from the autocorrelation of a rolling onset history.
// Beats are placed on onset peaks near the predicted beat, or on the
// prediction itself when no peak shows up.
type OnlineTracker struct {
	sampleRate float64
	frameRate  float64

	spectrum *dsp.Spectrum
	onsets   *dsp.OnsetDetector
	acf      dsp.Autocorrelator
	frame    []float64

	odf     []float64
	histLen int
	minLen  int
	peakLen int
	hops    int64

	bpm      float64
	period   float64 // hops per beat, 0 when unlocked
	nextBeat float64 // absolute hop index of the predicted beat, <0 if none
}

// NewOnlineTracker creates a tracker for audio at sampleRate.
func NewOnlineTracker(sampleRate float64) (*OnlineTracker, error) {
	if !(sampleRate >= 8000 && sampleRate <= 384000) {
		return nil, fmt.Errorf("%w: %.1f Hz", dsp.ErrInvalidRate, sampleRate)
	}
	spectrum, err := dsp.NewSpectrum(StreamBufferSize, dsp.Hann)
	if err != nil {
		return nil, err
	}

	frameRate := sampleRate / StreamHopSize
	t := &OnlineTracker{
		sampleRate: sampleRate,
		frameRate:  frameRate,
		spectrum:   spectrum,
		onsets:     dsp.NewOnsetDetector(spectrum.Bins()),
		frame:      make([]float64, StreamBufferSize),
		histLen:    int(trackerHistorySec * frameRate),
		minLen:     int(trackerMinSec * frameRate),
		peakLen:    int(trackerPeakSec * frameRate),
		nextBeat:   -1,
	}
	t.odf = make([]float64, 0, t.histLen)
	return t, nil
}

// SampleRate returns the rate the tracker was built for.
func (t *OnlineTracker) SampleRate() float64 { return t.sampleRate }

// HopSec returns the hop duration in seconds.
func (t *OnlineTracker) HopSec() float64 { return StreamHopSize / t.sampleRate }

// BPM returns the latest tempo, 0 when unlocked.
func (t *OnlineTracker) BPM() float64 { return t.bpm }

// Process consumes one hop of exactly StreamHopSize samples.
func (t *OnlineTracker) Process(hop []float32) TrackerOutput {
	copy(t.frame, t.frame[StreamHopSize:])
	tail := t.frame[StreamBufferSize-StreamHopSize:]
	for i := range tail {
		if i < len(hop) {
			tail[i] = float64(hop[i])
		} else {
			tail[i] = 0
		}
	}

	v := t.onsets.Next(t.spectrum.Magnitudes(t.frame))
	if len(t.odf) == t.histLen {
		copy(t.odf, t.odf[1:])
		t.odf = t.odf[:t.histLen-1]
	}
	t.odf = append(t.odf, v.Flux)
	t.hops++

	var out TrackerOutput
	if t.hops%trackerEvery == 0 && len(t.odf) >= t.minLen {
		t.estimate()
		if t.bpm > 0 {
			out.NewEstimate = true
			out.BPM = t.bpm
		}
	}

	if beat, ok := t.placeBeat(); ok {
		out.Beat = true
		out.BeatLagHops = float64(t.hops-1) - beat
	}
	return out
}

func (t *OnlineTracker) estimate() {
	cand := dsp.PickTempo(t.acf.Autocorrelate(t.odf), t.frameRate, trackerMinBPM, trackerMaxBPM)
	if cand.BPM <= 0 || cand.Strength < trackerMinStrength {
		t.bpm = 0
		t.period = 0
		t.nextBeat = -1
		return
	}
	t.bpm = cand.BPM
	t.period = cand.Lag
}

// placeBeat tests the previous ODF value for a peak and advances the beat
// prediction. It returns the absolute hop index of a placed beat.
func (t *OnlineTracker) placeBeat() (float64, bool) {
	if t.period <= 0 || len(t.odf) < 3 {
		return 0, false
	}

	pos := len(t.odf) - 2
	idx := float64(t.hops - 2)
	recent := t.odf[max(0, len(t.odf)-t.peakLen):]
	threshold := peakFactor*floats.Sum(recent)/float64(len(recent)) + 1e-9
	peak := dsp.IsPeak(t.odf, pos, threshold)
	tol := beatTolerance * t.period

	switch {
	case t.nextBeat < 0:
		if peak {
			t.nextBeat = idx + t.period
			return idx, true
		}
	case peak && idx >= t.nextBeat-tol && idx <= t.nextBeat+tol:
		t.nextBeat = idx + t.period
		return idx, true
	case idx > t.nextBeat+tol:
		beat := t.nextBeat
		t.nextBeat += t.period
		return beat, true
	}
	return 0, false
}

// Reset clears all history and the tempo lock.
func (t *OnlineTracker) Reset() {
	clear(t.frame)
	t.odf = t.odf[:0]
	t.onsets.Reset()
	t.hops = 0
	t.bpm = 0
	t.period = 0
	t.nextBeat = -1
}
