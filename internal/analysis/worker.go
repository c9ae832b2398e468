// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	applog "tempo/internal/log"
	"tempo/internal/tempo"
)

// BackendFactory creates a backend for method. Backends created by it are
// only ever used from the worker goroutine.
type BackendFactory func(ctx context.Context, method tempo.Method) tempo.Backend

// DefaultBackendFactory builds the real backends. now drives the init
// backoff clock; nil means time.Now.
func DefaultBackendFactory(now func() time.Time) BackendFactory {
	return func(ctx context.Context, method tempo.Method) tempo.Backend {
		if method == tempo.MethodStreaming {
			return tempo.NewStreamingBackend(ctx, nil, now)
		}
		return tempo.NewSpectralBackend(ctx, nil, now)
	}
}

// WorkerState is everything the worker owns. Handle is synchronous and is
// called only from the worker goroutine, or directly in tests.
type WorkerState struct {
	ctx     context.Context
	factory BackendFactory

	cfg        Config
	configured bool
	backend    tempo.Backend

	tickGate      intervalGate
	lastInit      tempo.InitState
	lastRate      float64
	backoffNoted  bool
	handledChunks uint64
}

// NewWorkerState creates an unconfigured worker state.
func NewWorkerState(ctx context.Context, factory BackendFactory) *WorkerState {
	if factory == nil {
		factory = DefaultBackendFactory(nil)
	}
	return &WorkerState{ctx: ctx, factory: factory}
}

// Config returns the active, clamped config.
func (s *WorkerState) Config() Config { return s.cfg }

// Backend returns the active backend, nil before the first config.
func (s *WorkerState) Backend() tempo.Backend { return s.backend }

// Handle processes one inbound message and returns the messages to post
// back. Panics from the backend are recovered and reported as errors.
func (s *WorkerState) Handle(msg Message) (out []Message) {
	defer func() {
		if r := recover(); r != nil {
			applog.Errorf("Worker: Recovered from panic handling %s message: %v", msg.MessageType(), r)
			out = append(out, newError(fmt.Sprintf("analysis panic: %v", r)))
		}
	}()

	switch m := msg.(type) {
	case ConfigMessage:
		return s.handleConfig(m.Config)
	case *ConfigMessage:
		return s.handleConfig(m.Config)
	case AudioMessage:
		return s.handleAudio(m)
	case *AudioMessage:
		return s.handleAudio(*m)
	default:
		applog.Debugf("Worker: Ignoring %s message", msg.MessageType())
		return nil
	}
}

func (s *WorkerState) handleConfig(cfg Config) []Message {
	cfg = cfg.Clamp()
	if s.configured && cfg == s.cfg {
		return nil
	}

	var out []Message
	if s.backend == nil || cfg.Method != s.cfg.Method {
		s.backend = s.factory(s.ctx, cfg.Method)
		s.lastInit = s.backend.InitState()
		s.lastRate = 0
		s.backoffNoted = false
		s.tickGate.reset()
		if s.configured {
			out = append(out, newInfo(fmt.Sprintf("backend switched to %s", cfg.Method)))
		}
		applog.Infof("Worker: Using %s backend (window %.1fs, tempo %.0f-%.0f BPM)",
			cfg.Method, cfg.WindowSec, cfg.MinTempo, cfg.MaxTempo)
	}
	s.cfg = cfg
	s.configured = true
	return out
}

func (s *WorkerState) handleAudio(m AudioMessage) []Message {
	if !s.configured || !s.cfg.Enabled || s.backend == nil {
		return nil
	}
	if !(m.SampleRate > 0) || math.IsInf(m.SampleRate, 0) || math.IsNaN(m.TimeSec) || len(m.PCM) == 0 {
		return nil
	}

	var out []Message
	if s.backend.Method() == tempo.MethodStreaming && s.lastRate != 0 && s.lastRate != m.SampleRate {
		out = append(out, newInfo(fmt.Sprintf("backend reinitialised (sample rate %.0f -> %.0f Hz)", s.lastRate, m.SampleRate)))
	}
	s.lastRate = m.SampleRate
	s.handledChunks++

	chunk := tempo.Chunk{SampleRate: m.SampleRate, TimeSec: m.TimeSec, Samples: m.PCM}
	params := s.cfg.Params()

	if _, err := s.backend.Feed(chunk, params); err != nil {
		out = s.noteInitState(out)
		return append(out, s.failure("feed", err)...)
	}
	out = s.noteInitState(out)

	// Every chunk is fed; the estimate is refreshed once per interval.
	nowSec := chunk.EndSec()
	nowMs := nowSec * 1000
	if !s.tickGate.due(nowMs, s.cfg.UpdateIntervalMs) {
		return out
	}

	est, err := s.backend.Tick(nowSec, params)
	out = s.noteInitState(out)
	if errors.Is(err, tempo.ErrNotReady) {
		return out
	}
	if err != nil {
		s.tickGate.mark(nowMs)
		return append(out, s.failure("analysis", err)...)
	}
	if est == nil {
		return out
	}
	s.tickGate.mark(nowMs)
	return append(out, s.result(est, nowSec))
}

func (s *WorkerState) result(est *tempo.Estimate, nowSec float64) ResultMessage {
	phase := tempo.BeatPhase(nowSec, est.LastBeatSec, est.BPM, est.HasBeat)
	r := ResultMessage{
		Type:                      TypeResult,
		OK:                        est.OK && est.BPM > 0,
		BPM:                       est.BPM,
		Confidence01:              est.Confidence,
		Stability01:               est.Stability,
		BeatPhase:                 phase,
		BeatPulse:                 tempo.BeatPulse(phase),
		Method:                    s.backend.Method(),
		SuggestedUpdateIntervalMs: SuggestInterval(est.Stability, s.cfg.UpdateIntervalMs),
		HopSec:                    est.HopSec,
	}
	if !est.HasBeat || est.BPM <= 0 {
		r.BeatPulse = 0
	}
	return r
}

// failure maps a backend error to outbound messages. Backoff is reported
// once per episode as info; anything else is an error.
func (s *WorkerState) failure(stage string, err error) []Message {
	if errors.Is(err, tempo.ErrBackoff) {
		if s.backoffNoted {
			return nil
		}
		s.backoffNoted = true
		applog.Debugf("Worker: %s skipped: %v", stage, err)
		return []Message{newInfo(fmt.Sprintf("init skipped (backoff): %v", err))}
	}
	applog.Warnf("Worker: %s failed: %v", stage, err)
	return []Message{newError(fmt.Sprintf("%s failed: %v", stage, err))}
}

func (s *WorkerState) noteInitState(out []Message) []Message {
	state := s.backend.InitState()
	if state == s.lastInit {
		return out
	}
	s.lastInit = state
	if state == tempo.StateReady {
		s.backoffNoted = false
		applog.Infof("Worker: %s backend ready", s.backend.Method())
		out = append(out, newInfo(fmt.Sprintf("%s backend ready", s.backend.Method())))
	}
	return out
}

// mailboxSize bounds the worker inbox. Audio beyond it evicts the oldest
// queued audio message; config messages are never evicted.
const (
	mailboxSize = 256
	outboxSize  = 64
)

// mailbox is a FIFO that never blocks the sender.
type mailbox struct {
	mu     sync.Mutex
	queue  []Message
	signal chan struct{}
	drops  uint64
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(msg Message) {
	m.mu.Lock()
	if len(m.queue) >= mailboxSize {
		for i, queued := range m.queue {
			if queued.MessageType() == TypeAudio {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				m.drops++
				break
			}
		}
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

func (m *mailbox) take() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.queue
	m.queue = nil
	return batch
}

// Worker runs a WorkerState on its own goroutine.
type Worker struct {
	state  *WorkerState
	inbox  *mailbox
	outbox chan Message
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	posted    atomic.Uint64
	handled   atomic.Uint64
	emitted   atomic.Uint64
	discarded atomic.Uint64
	applied   atomic.Uint64
}

// StartWorker starts a worker. It stops when ctx is cancelled or
// Terminate is called.
func StartWorker(ctx context.Context, factory BackendFactory) *Worker {
	ctx, cancel := context.WithCancel(ctx)
	w := &Worker{
		state:  NewWorkerState(ctx, factory),
		inbox:  newMailbox(),
		outbox: make(chan Message, outboxSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.outbox)
	applog.Debugf("Worker: Started")

	for {
		select {
		case <-ctx.Done():
			applog.Debugf("Worker: Stopped")
			return
		case <-w.inbox.signal:
			for _, msg := range w.inbox.take() {
				if ctx.Err() != nil {
					return
				}
				for _, reply := range w.state.Handle(msg) {
					w.emit(reply)
				}
				w.handled.Add(1)
			}
		}
	}
}

// emit posts reply, discarding the oldest queued reply when the consumer
// is behind. Newer results supersede older ones.
func (w *Worker) emit(reply Message) {
	for {
		select {
		case w.outbox <- reply:
			w.emitted.Add(1)
			return
		default:
		}
		select {
		case <-w.outbox:
			w.discarded.Add(1)
		default:
		}
	}
}

// Post enqueues msg without blocking.
func (w *Worker) Post(msg Message) {
	w.posted.Add(1)
	w.inbox.push(msg)
}

// Backlog returns the number of posted messages not yet handled. Evicted
// audio does not count.
func (w *Worker) Backlog() int {
	done := w.handled.Load() + w.inbox.dropped()
	posted := w.posted.Load()
	if done >= posted {
		return 0
	}
	return int(posted - done)
}

// settled reports whether every posted message was handled and every reply
// was either consumed or discarded.
func (w *Worker) settled() bool {
	return w.Backlog() == 0 && w.applied.Load()+w.discarded.Load() >= w.emitted.Load()
}

// Results returns the worker's replies. It is closed when the worker stops.
func (w *Worker) Results() <-chan Message { return w.outbox }

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Terminate stops the worker immediately. Queued messages are discarded.
func (w *Worker) Terminate() {
	w.once.Do(w.cancel)
}
