// SPDX-License-Identifier: MIT
package tempo

import (
	"context"
	"math"
	"time"

	"tempo/internal/dsp"
)

const (
	// minFillRatio is the window fill below which no analysis runs.
	minFillRatio = 0.6
	// tickLookahead admits ticks slightly ahead of now as the last beat.
	tickLookahead = 0.02

	spectralMinConfidence = 0.15
	spectralMinStability  = 0.6
)

// Extractor analyses a whole window at AnalysisSampleRate.
type Extractor interface {
	Extract(samples []float32, minTempo, maxTempo float64, variant Variant) (RhythmResult, error)
}

// SpectralBackend buffers a sliding window and runs the rhythm extractor
// over all of it on every tick.
type SpectralBackend struct {
	ctx       context.Context
	gate      *InitGate[Extractor]
	ring      *dsp.SampleRing
	stability StabilityTracker
	scratch   []float32
}

// NewSpectralBackend creates a backend whose extractor is built by load on
// the first tick. A nil load uses NewRhythmExtractor.
func NewSpectralBackend(ctx context.Context, load Loader[Extractor], now func() time.Time) *SpectralBackend {
	if load == nil {
		load = func(context.Context) (Extractor, error) { return NewRhythmExtractor() }
	}
	return &SpectralBackend{
		ctx:  ctx,
		gate: NewInitGate(load, now),
		ring: &dsp.SampleRing{},
	}
}

// Method implements Backend.
func (b *SpectralBackend) Method() Method { return MethodSpectral }

// InitState implements Backend.
func (b *SpectralBackend) InitState() InitState { return b.gate.State() }

// Feed appends the chunk to the window, reallocating it when the rate or
// window length changed.
func (b *SpectralBackend) Feed(chunk Chunk, p Params) (*BeatEvent, error) {
	if _, err := b.ring.Configure(chunk.SampleRate, p.WindowSec); err != nil {
		return nil, err
	}
	b.ring.Push(chunk.Samples)
	return nil, nil
}

// Ring exposes the window for inspection.
func (b *SpectralBackend) Ring() *dsp.SampleRing { return b.ring }

// Stability exposes the backend's history.
func (b *SpectralBackend) Stability() *StabilityTracker { return &b.stability }

// Tick analyses the whole window as it stands at nowSec.
func (b *SpectralBackend) Tick(nowSec float64, p Params) (*Estimate, error) {
	if b.ring.Capacity() == 0 || b.ring.FillRatio() < minFillRatio {
		return nil, nil
	}

	extractor, err := b.gate.Ensure(b.ctx)
	if err != nil {
		return nil, err
	}

	b.scratch = b.ring.ReadWindowInto(b.scratch)
	samples := dsp.Resample(p.Resample, b.scratch, b.ring.SampleRate(), AnalysisSampleRate)

	res, err := extractor.Extract(samples, p.MinTempo, p.MaxTempo, p.Variant)
	if err != nil {
		return nil, err
	}

	bpmOk := res.BPM >= AbsoluteMinBPM && res.BPM <= AbsoluteMaxBPM && p.InBand(res.BPM)
	if bpmOk {
		b.stability.Push(res.BPM)
	}
	stab := b.stability.Stability01()
	conf := clamp01(res.Confidence)

	est := &Estimate{
		OK:         bpmOk && (conf >= spectralMinConfidence || stab >= spectralMinStability),
		Confidence: conf,
		Stability:  stab,
	}
	if bpmOk {
		est.BPM = res.BPM
	}

	windowStart := nowSec - b.ring.DurationSec()
	est.LastBeatSec = math.Inf(-1)
	for _, tick := range res.Ticks {
		if abs := windowStart + tick; abs <= nowSec+tickLookahead && abs > est.LastBeatSec {
			est.LastBeatSec = abs
			est.HasBeat = true
		}
	}
	if !est.HasBeat {
		est.LastBeatSec = 0
	}
	return est, nil
}
