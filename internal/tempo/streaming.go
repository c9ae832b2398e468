// SPDX-License-Identifier: MIT
package tempo

import (
	"context"
	"time"
)

// streamingMinStability is the stability needed before a smoothed tempo
// is reported as ok.
const streamingMinStability = 0.55

// StreamingLoader builds an online tracker for a sample rate.
type StreamingLoader func(ctx context.Context, sampleRate float64) (*OnlineTracker, error)

// StreamingBackend splits incoming audio into hops for an OnlineTracker
// and conditions its tempo with stability scoring and smoothing.
type StreamingBackend struct {
	ctx  context.Context
	load StreamingLoader
	now  func() time.Time

	gate       *InitGate[*OnlineTracker]
	sampleRate float64

	pending      []float32
	pendingStart float64

	stability   StabilityTracker
	smoothing   SmoothingFilter
	lastBeatSec float64
	hasBeat     bool
}

// NewStreamingBackend creates a backend whose tracker is built by load once
// the first chunk reveals the sample rate. A nil load uses
// NewOnlineTracker.
func NewStreamingBackend(ctx context.Context, load StreamingLoader, now func() time.Time) *StreamingBackend {
	if load == nil {
		load = func(_ context.Context, sampleRate float64) (*OnlineTracker, error) {
			return NewOnlineTracker(sampleRate)
		}
	}
	return &StreamingBackend{ctx: ctx, load: load, now: now}
}

// Method implements Backend.
func (b *StreamingBackend) Method() Method { return MethodStreaming }

// InitState implements Backend.
func (b *StreamingBackend) InitState() InitState {
	if b.gate == nil {
		return StateUninitialized
	}
	return b.gate.State()
}

// Stability exposes the backend's history.
func (b *StreamingBackend) Stability() *StabilityTracker { return &b.stability }

// rebuild discards the tracker and all derived state for a new rate.
func (b *StreamingBackend) rebuild(sampleRate float64) {
	b.sampleRate = sampleRate
	b.gate = NewInitGate(func(ctx context.Context) (*OnlineTracker, error) {
		return b.load(ctx, sampleRate)
	}, b.now)
	b.pending = b.pending[:0]
	b.stability = StabilityTracker{}
	b.smoothing.Reset()
	b.hasBeat = false
	b.lastBeatSec = 0
}

// Feed runs every complete hop in the chunk through the tracker. Samples
// that do not fill a hop wait for the next chunk. While the tracker is not
// ready the chunk is dropped.
func (b *StreamingBackend) Feed(chunk Chunk, p Params) (*BeatEvent, error) {
	if b.gate == nil || chunk.SampleRate != b.sampleRate {
		b.rebuild(chunk.SampleRate)
	}

	tracker, err := b.gate.Ensure(b.ctx)
	if err != nil {
		return nil, err
	}

	if len(b.pending) == 0 {
		b.pendingStart = chunk.TimeSec
	}
	b.pending = append(b.pending, chunk.Samples...)

	hopSec := tracker.HopSec()
	var event *BeatEvent
	consumed := 0
	for len(b.pending)-consumed >= StreamHopSize {
		out := tracker.Process(b.pending[consumed : consumed+StreamHopSize])
		consumed += StreamHopSize
		b.pendingStart += hopSec
		hopEnd := b.pendingStart

		if out.NewEstimate && out.BPM >= AbsoluteMinBPM && out.BPM <= AbsoluteMaxBPM && p.InBand(out.BPM) {
			b.stability.Push(out.BPM)
		}
		if out.Beat {
			b.lastBeatSec = hopEnd - (out.BeatLagHops+1)*hopSec
			b.hasBeat = true
			event = &BeatEvent{TimeSec: b.lastBeatSec}
		}
	}
	b.pending = b.pending[:copy(b.pending, b.pending[consumed:])]
	return event, nil
}

// Tick conditions the tracker's current tempo. It returns ErrNotReady
// until a chunk has loaded the tracker.
func (b *StreamingBackend) Tick(nowSec float64, p Params) (*Estimate, error) {
	if b.gate == nil || b.gate.State() != StateReady {
		return nil, ErrNotReady
	}
	tracker, err := b.gate.Ensure(b.ctx)
	if err != nil {
		return nil, err
	}

	raw := tracker.BPM()
	valid := raw >= AbsoluteMinBPM && raw <= AbsoluteMaxBPM && p.InBand(raw)
	stab := b.stability.Stability01()
	smoothed := b.smoothing.Update(raw, valid, stab)

	est := &Estimate{
		Confidence:  stab,
		Stability:   stab,
		HopSec:      tracker.HopSec(),
		LastBeatSec: b.lastBeatSec,
		HasBeat:     b.hasBeat,
	}
	if smoothed >= AbsoluteMinBPM && smoothed <= AbsoluteMaxBPM && p.InBand(smoothed) {
		est.BPM = smoothed
		est.OK = stab >= streamingMinStability
	}
	return est, nil
}
