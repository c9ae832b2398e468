// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"tempo/internal/tempo"
)

// fakeBackend records what the worker feeds it and returns canned output.
type fakeBackend struct {
	mu      sync.Mutex
	method  tempo.Method
	state   tempo.InitState
	est     *tempo.Estimate
	feedErr error
	tickErr error
	panics  int
	chunks  []tempo.Chunk
	ticks   []float64
}

func (f *fakeBackend) Method() tempo.Method { return f.method }

func (f *fakeBackend) InitState() tempo.InitState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeBackend) Feed(chunk tempo.Chunk, _ tempo.Params) (*tempo.BeatEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunk)
	if f.feedErr != nil {
		return nil, f.feedErr
	}
	f.state = tempo.StateReady
	return nil, nil
}

func (f *fakeBackend) Tick(nowSec float64, _ tempo.Params) (*tempo.Estimate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, nowSec)
	if f.panics > 0 {
		f.panics--
		panic("estimator exploded")
	}
	if f.tickErr != nil {
		return nil, f.tickErr
	}
	if f.est == nil {
		return nil, nil
	}
	est := *f.est
	return &est, nil
}

func (f *fakeBackend) set(fn func(*fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) samples() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.chunks {
		n += len(c.Samples)
	}
	return n
}

func (f *fakeBackend) chunkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}

// fakeFactory hands out one fakeBackend per method and remembers them.
type fakeFactory struct {
	mu       sync.Mutex
	created  []*fakeBackend
	template tempo.Estimate
}

func (ff *fakeFactory) factory() BackendFactory {
	return func(_ context.Context, method tempo.Method) tempo.Backend {
		ff.mu.Lock()
		defer ff.mu.Unlock()
		est := ff.template
		b := &fakeBackend{method: method, est: &est}
		ff.created = append(ff.created, b)
		return b
	}
}

func (ff *fakeFactory) last() *fakeBackend {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.created) == 0 {
		return nil
	}
	return ff.created[len(ff.created)-1]
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.created)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func enabledConfig(method tempo.Method) Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Method = method
	return cfg
}
