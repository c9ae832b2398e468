// SPDX-License-Identifier: MIT
package tempo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrBackoff is returned while a failed initialisation is cooling down.
	ErrBackoff = errors.New("tempo: backend initialisation in backoff")
	// ErrNotReady is returned when a backend is asked for work before its
	// kernel has loaded.
	ErrNotReady = errors.New("tempo: backend not ready")
)

// InitState is the lifecycle of a lazily loaded backend kernel.
type InitState int

const (
	StateUninitialized InitState = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s InitState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

const (
	backoffBase      = 1500 * time.Millisecond
	backoffMax       = 30 * time.Second
	backoffDoublings = 4
)

// BackoffDelay returns the retry delay after failCount consecutive
// failures: min(30s, 1.5s * 2^min(failCount-1, 4)).
func BackoffDelay(failCount int) time.Duration {
	if failCount < 1 {
		return 0
	}
	d := backoffBase << min(failCount-1, backoffDoublings)
	return min(d, backoffMax)
}

// Loader constructs a backend kernel.
type Loader[T any] func(ctx context.Context) (T, error)

// InitGate memoises a Loader. Concurrent callers share one in-flight load;
// a failed load blocks retries until its backoff deadline passes.
type InitGate[T any] struct {
	load  Loader[T]
	now   func() time.Time
	group singleflight.Group

	mu           sync.Mutex
	state        InitState
	value        T
	failCount    int
	backoffUntil time.Time
	lastErr      error
}

// NewInitGate wraps load. now defaults to time.Now.
func NewInitGate[T any](load Loader[T], now func() time.Time) *InitGate[T] {
	if now == nil {
		now = time.Now
	}
	return &InitGate[T]{load: load, now: now}
}

// Ensure returns the loaded kernel, loading it if needed. During backoff it
// fails fast with an error wrapping ErrBackoff.
func (g *InitGate[T]) Ensure(ctx context.Context) (T, error) {
	var zero T

	g.mu.Lock()
	switch g.state {
	case StateReady:
		v := g.value
		g.mu.Unlock()
		return v, nil
	case StateFailed:
		if now := g.now(); now.Before(g.backoffUntil) {
			until := g.backoffUntil.Sub(now)
			g.mu.Unlock()
			return zero, fmt.Errorf("%w: retry in %s", ErrBackoff, until.Round(time.Millisecond))
		}
	}
	g.state = StateInitializing
	g.mu.Unlock()

	v, err, _ := g.group.Do("load", func() (any, error) {
		g.mu.Lock()
		if g.state == StateReady {
			v := g.value
			g.mu.Unlock()
			return v, nil
		}
		g.mu.Unlock()

		loaded, err := g.load(ctx)

		g.mu.Lock()
		defer g.mu.Unlock()
		if err != nil {
			g.failCount++
			g.backoffUntil = g.now().Add(BackoffDelay(g.failCount))
			g.state = StateFailed
			g.lastErr = err
			return nil, err
		}
		g.value = loaded
		g.state = StateReady
		g.failCount = 0
		g.lastErr = nil
		return loaded, nil
	})
	if err != nil {
		return zero, fmt.Errorf("load backend: %w", err)
	}
	return v.(T), nil
}

// State returns the current lifecycle state.
func (g *InitGate[T]) State() InitState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// FailCount returns the number of consecutive failed loads.
func (g *InitGate[T]) FailCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failCount
}

// LastError returns the error of the most recent failed load.
func (g *InitGate[T]) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

// Reset drops the loaded kernel and any backoff.
func (g *InitGate[T]) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	var zero T
	g.value = zero
	g.state = StateUninitialized
	g.failCount = 0
	g.backoffUntil = time.Time{}
	g.lastErr = nil
}
