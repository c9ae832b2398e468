// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "tempo/internal/log"
)

// ChannelMode selects how multi-channel frames become the mono analysis
// signal.
type ChannelMode int

const (
	ChannelMix ChannelMode = iota
	ChannelLeft
	ChannelRight
)

func (m ChannelMode) String() string {
	switch m {
	case ChannelLeft:
		return "left"
	case ChannelRight:
		return "right"
	default:
		return "mix"
	}
}

// ParseChannelMode converts a config name to a ChannelMode.
func ParseChannelMode(name string) (ChannelMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mix":
		return ChannelMix, nil
	case "left":
		return ChannelLeft, nil
	case "right":
		return ChannelRight, nil
	default:
		return ChannelMix, fmt.Errorf("unknown channel mode: '%s'", name)
	}
}

// AudioFrame is one callback's worth of audio. Channels holds one slice
// per channel, all the same length. TimeSec is the transport time of the
// first sample.
type AudioFrame struct {
	SampleRate float64
	TimeSec    float64
	Channels   [][]float32
}

// FrameOptions tune a single OnAudioFrame call.
type FrameOptions struct {
	// MaxFps caps the spectral post rate. Zero means no cap.
	MaxFps float64
}

// Options configure an Analyzer.
type Options struct {
	Channel ChannelMode
	Factory BackendFactory
	// Now supplies lastUpdatedMs. Defaults to time.Now.
	Now func() time.Time
	// MaxPendingSec bounds audio held back between posts. Defaults to 2s.
	MaxPendingSec float64
}

const (
	defaultMaxPendingSec = 2.0
	drainPoll            = 2 * time.Millisecond
)

// Analyzer is the facade the audio callback and readers talk to.
// OnAudioFrame never blocks on analysis and GetSnapshot never blocks on
// the worker.
type Analyzer struct {
	opts Options

	mu         sync.Mutex
	cfg        Config
	worker     *Worker
	generation uint64
	disposed   bool

	pending      []float32
	pendingStart float64
	pendingRate  float64
	postGate     intervalGate

	snapshot atomic.Pointer[Snapshot]
	posted   atomic.Uint64
}

// NewAnalyzer creates the facade. The worker starts when cfg is enabled.
func NewAnalyzer(cfg Config, opts Options) *Analyzer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Factory == nil {
		opts.Factory = DefaultBackendFactory(nil)
	}
	if !(opts.MaxPendingSec > 0) {
		opts.MaxPendingSec = defaultMaxPendingSec
	}

	a := &Analyzer{opts: opts, cfg: cfg.Clamp()}
	unknown := UnknownSnapshot(a.cfg.Method)
	a.snapshot.Store(&unknown)

	if a.cfg.Enabled {
		a.mu.Lock()
		a.startWorkerLocked()
		a.mu.Unlock()
	}
	return a
}

// GetSnapshot returns the last published snapshot.
func (a *Analyzer) GetSnapshot() Snapshot {
	return *a.snapshot.Load()
}

// GetConfig returns the active config.
func (a *Analyzer) GetConfig() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// PostedFrames returns the number of audio messages sent to workers.
func (a *Analyzer) PostedFrames() uint64 { return a.posted.Load() }

// SetConfig applies patch. Applying the active config is a no-op.
// Disabling terminates the worker and resets the snapshot.
func (a *Analyzer) SetConfig(patch ConfigPatch) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}

	next := patch.Apply(a.cfg).Clamp()
	if next == a.cfg {
		return
	}
	prev := a.cfg
	a.cfg = next

	if !next.Enabled {
		if a.worker != nil {
			applog.Infof("Analyzer: Disabled, terminating worker")
		}
		a.stopWorkerLocked()
		unknown := UnknownSnapshot(next.Method)
		a.snapshot.Store(&unknown)
		return
	}

	if a.worker == nil {
		a.startWorkerLocked()
		return
	}
	if next.Method != prev.Method {
		a.resetPendingLocked()
	}
	a.worker.Post(NewConfigMessage(next))
}

// OnAudioFrame hands a frame to the analyzer. Malformed frames are
// ignored. Audio not yet due is held and sent with the next post.
func (a *Analyzer) OnAudioFrame(frame AudioFrame, opts FrameOptions) {
	n := frameLength(frame)
	if n == 0 || !(frame.SampleRate > 0) || math.IsInf(frame.SampleRate, 0) || math.IsNaN(frame.TimeSec) {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed || a.worker == nil {
		return
	}

	if frame.SampleRate != a.pendingRate {
		a.resetPendingLocked()
		a.pendingRate = frame.SampleRate
	}
	if len(a.pending) == 0 {
		a.pendingStart = frame.TimeSec
	}
	a.pending = a.opts.Channel.appendMono(a.pending, frame.Channels, n)

	if limit := int(a.opts.MaxPendingSec * frame.SampleRate); len(a.pending) > limit {
		drop := len(a.pending) - limit
		a.pending = a.pending[drop:]
		a.pendingStart += float64(drop) / frame.SampleRate
	}

	hopMs := float64(n) / frame.SampleRate * 1000
	endMs := (frame.TimeSec + float64(n)/frame.SampleRate) * 1000
	interval := OutboundInterval(a.cfg.Method, hopMs, float64(a.cfg.InputFps), opts.MaxFps)
	if !a.postGate.due(endMs, interval) {
		return
	}
	a.postGate.mark(endMs)

	// The worker owns the posted slice.
	pcm := a.pending
	a.pending = nil
	a.worker.Post(NewAudioMessage(frame.SampleRate, a.pendingStart, pcm))
	a.posted.Add(1)
}

// Drain blocks until the worker has handled everything posted so far and
// its replies have been applied, or ctx is done.
func (a *Analyzer) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for {
		a.mu.Lock()
		w := a.worker
		idle := w == nil || w.settled()
		a.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Dispose terminates the worker. The analyzer ignores all calls after it.
func (a *Analyzer) Dispose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	a.disposed = true
	a.stopWorkerLocked()
	applog.Debugf("Analyzer: Disposed")
}

func (a *Analyzer) startWorkerLocked() {
	a.generation++
	a.worker = StartWorker(context.Background(), a.opts.Factory)
	a.worker.Post(NewConfigMessage(a.cfg))
	a.resetPendingLocked()
	applog.Infof("Analyzer: Worker started (%s)", a.cfg.Method)
	go a.consume(a.worker, a.generation)
}

func (a *Analyzer) stopWorkerLocked() {
	if a.worker == nil {
		return
	}
	a.worker.Terminate()
	a.worker = nil
	a.generation++
	a.resetPendingLocked()
}

func (a *Analyzer) resetPendingLocked() {
	a.pending = nil
	a.pendingRate = 0
	a.postGate.reset()
}

// consume applies the replies of one worker until it stops. Replies from a
// worker that has since been replaced are dropped. a.mu is held only to
// publish, so logging never delays OnAudioFrame.
func (a *Analyzer) consume(w *Worker, generation uint64) {
	for msg := range w.Results() {
		a.apply(msg, generation)
		w.applied.Add(1)
	}
}

func (a *Analyzer) apply(msg Message, generation uint64) {
	switch m := msg.(type) {
	case ResultMessage:
		snap := withResult(m, a.nowMs())
		a.mu.Lock()
		if a.generation != generation {
			a.mu.Unlock()
			return
		}
		a.snapshot.Store(&snap)
		prev, next, adopted := a.adoptIntervalLocked(m.SuggestedUpdateIntervalMs)
		a.mu.Unlock()
		if adopted {
			applog.Debugf("Analyzer: Update interval %.0fms -> %.0fms", prev, next)
		}

	case ErrorMessage:
		a.mu.Lock()
		current := a.generation == generation
		if current {
			snap := a.snapshot.Load().withError(m.Message)
			a.snapshot.Store(&snap)
		}
		a.mu.Unlock()
		if current {
			applog.Warnf("Analyzer: Worker error: %s", m.Message)
		}

	case InfoMessage:
		applog.Infof("Analyzer: %s", m.Message)
	}
}

func (a *Analyzer) nowMs() float64 {
	return float64(a.opts.Now().UnixNano()) / 1e6
}

func (a *Analyzer) adoptIntervalLocked(suggested float64) (prev, next float64, ok bool) {
	if a.worker == nil {
		return 0, 0, false
	}
	prev = a.cfg.UpdateIntervalMs
	next, ok = AdoptInterval(prev, suggested)
	if !ok {
		return prev, prev, false
	}
	a.cfg.UpdateIntervalMs = next
	a.worker.Post(NewConfigMessage(a.cfg))
	return prev, next, true
}

// frameLength returns the common channel length, or 0 if the frame is
// empty or ragged.
func frameLength(frame AudioFrame) int {
	if len(frame.Channels) == 0 {
		return 0
	}
	n := len(frame.Channels[0])
	for _, ch := range frame.Channels[1:] {
		if len(ch) != n {
			return 0
		}
	}
	return n
}

// appendMono appends n mono samples derived from channels to dst.
func (m ChannelMode) appendMono(dst []float32, channels [][]float32, n int) []float32 {
	switch {
	case len(channels) == 1:
		return append(dst, channels[0][:n]...)
	case m == ChannelLeft:
		return append(dst, channels[0][:n]...)
	case m == ChannelRight:
		return append(dst, channels[1][:n]...)
	}

	scale := 1 / float32(len(channels))
	for i := range n {
		var sum float32
		for _, ch := range channels {
			sum += ch[i]
		}
		dst = append(dst, sum*scale)
	}
	return dst
}
