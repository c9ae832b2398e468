// SPDX-License-Identifier: MIT
package tempo

import (
	"errors"
	"math"

	"tempo/internal/dsp"

	"gonum.org/v1/gonum/floats"
)

// Spectral analysis runs at a fixed rate regardless of the input rate.
const (
	AnalysisSampleRate = 44100.0
	rhythmFrameSize    = 1024
	rhythmHopSize      = 512

	// minRhythmFrames is the shortest onset sequence worth analysing.
	minRhythmFrames = 32

	// octaveTolerance is the relative error within which two tempi agree,
	// allowing for half and double.
	octaveTolerance = 0.04
)

// ErrWindowTooShort is returned when the window holds too few frames.
var ErrWindowTooShort = errors.New("tempo: analysis window too short")

// RhythmResult is the output of one windowed analysis. Ticks are beat
// times in seconds from the start of the analysed window.
type RhythmResult struct {
	BPM        float64
	Confidence float64
	Ticks      []float64
}

// RhythmExtractor estimates tempo, confidence and beat ticks from a whole
// window of samples. It reuses its buffers between calls and is not safe
// for concurrent use.
type RhythmExtractor struct {
	spectrum *dsp.Spectrum
	onsets   *dsp.OnsetDetector
	acf      dsp.Autocorrelator

	frame  []float64
	flux   []float64
	hfc    []float64
	energy []float64
	odf    []float64
}

// NewRhythmExtractor builds the extractor's FFT plan and buffers.
func NewRhythmExtractor() (*RhythmExtractor, error) {
	spectrum, err := dsp.NewSpectrum(rhythmFrameSize, dsp.Hann)
	if err != nil {
		return nil, err
	}
	return &RhythmExtractor{
		spectrum: spectrum,
		onsets:   dsp.NewOnsetDetector(spectrum.Bins()),
		frame:    make([]float64, rhythmFrameSize),
	}, nil
}

// FrameRate returns onset frames per second at the analysis rate.
func (x *RhythmExtractor) FrameRate() float64 {
	return AnalysisSampleRate / rhythmHopSize
}

// Extract analyses samples, which must already be at AnalysisSampleRate.
// Tempi are searched between minTempo and maxTempo.
func (x *RhythmExtractor) Extract(samples []float32, minTempo, maxTempo float64, variant Variant) (RhythmResult, error) {
	if len(samples) < rhythmFrameSize {
		return RhythmResult{}, ErrWindowTooShort
	}
	frames := 1 + (len(samples)-rhythmFrameSize)/rhythmHopSize
	if frames < minRhythmFrames {
		return RhythmResult{}, ErrWindowTooShort
	}

	x.computeOnsets(samples, frames)
	frameRate := x.FrameRate()
	lo := math.Max(AbsoluteMinBPM, minTempo)
	hi := math.Min(AbsoluteMaxBPM, maxTempo)
	if hi <= lo {
		hi = lo + 1
	}

	var (
		best       dsp.TempoCandidate
		confidence float64
	)
	switch variant {
	case VariantDegara:
		x.odf = append(x.odf[:0], x.flux...)
		dsp.Standardize(x.odf)
		best = dsp.PickTempo(x.acf.Autocorrelate(x.odf), frameRate, lo, hi)
		confidence = best.Strength

	default:
		features := [][]float64{x.flux, x.hfc, x.energy}
		x.odf = append(x.odf[:0], make([]float64, frames)...)
		tempi := make([]float64, 0, len(features))
		for _, f := range features {
			dsp.Standardize(f)
			floats.Add(x.odf, f)
			tempi = append(tempi, dsp.PickTempo(x.acf.Autocorrelate(f), frameRate, lo, hi).BPM)
		}
		best = dsp.PickTempo(x.acf.Autocorrelate(x.odf), frameRate, lo, hi)

		agree := 0
		for _, t := range tempi {
			if sameTempo(best.BPM, t) {
				agree++
			}
		}
		confidence = best.Strength * (0.5 + 0.5*float64(agree)/float64(len(tempi)))
	}

	if best.BPM <= 0 {
		return RhythmResult{}, nil
	}

	return RhythmResult{
		BPM:        best.BPM,
		Confidence: clamp01(confidence),
		Ticks:      x.ticks(best.Lag, frames),
	}, nil
}

func (x *RhythmExtractor) computeOnsets(samples []float32, frames int) {
	x.flux = x.flux[:0]
	x.hfc = x.hfc[:0]
	x.energy = x.energy[:0]
	x.onsets.Reset()

	for i := range frames {
		start := i * rhythmHopSize
		for j := range x.frame {
			x.frame[j] = float64(samples[start+j])
		}
		v := x.onsets.Next(x.spectrum.Magnitudes(x.frame))
		x.flux = append(x.flux, v.Flux)
		x.hfc = append(x.hfc, v.HFC)
		x.energy = append(x.energy, v.Energy)
	}
}

// ticks places a beat grid of the given period (in frames) at the phase
// with the strongest positive onset energy. A tick is stamped at the centre
// of its frame.
func (x *RhythmExtractor) ticks(period float64, frames int) []float64 {
	positive := make([]float64, len(x.odf))
	for i, v := range x.odf {
		positive[i] = math.Max(0, v)
	}
	offset := dsp.BeatOffset(positive, period)

	frameSec := rhythmHopSize / AnalysisSampleRate
	centre := rhythmFrameSize / 2 / AnalysisSampleRate
	out := make([]float64, 0, int(float64(frames)/period)+1)
	for pos := offset; pos < float64(frames); pos += period {
		out = append(out, pos*frameSec+centre)
	}
	return out
}

// sameTempo reports whether a and b agree within octaveTolerance, counting
// half and double as agreement.
func sameTempo(a, b float64) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	for _, ratio := range []float64{1, 2, 0.5} {
		if math.Abs(a-b*ratio)/a <= octaveTolerance {
			return true
		}
	}
	return false
}
