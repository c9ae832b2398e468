// SPDX-License-Identifier: MIT
/*
Package dsp holds the signal plumbing shared by the tempo backends:

- SampleRing, a fixed-capacity sliding window of mono samples
- nearest-neighbour and linear resampling
- Spectrum, a windowed magnitude FFT with pre-allocated workspace
- onset detection functions and autocorrelation tempo picking

Nothing in this package is safe for concurrent use. Every instance is owned
by the single analysis worker goroutine.
*/
package dsp

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRate is returned when a sample rate or window length cannot
// produce a usable buffer.
var ErrInvalidRate = errors.New("dsp: invalid sample rate or window length")

// RingCapacity is the number of samples a window of windowSec holds at
// sampleRate.
func RingCapacity(sampleRate, windowSec float64) int {
	return int(math.Round(sampleRate * windowSec))
}

// SampleRing is a lossy sliding window over the most recent samples. Once
// full, each push silently overwrites the oldest samples.
type SampleRing struct {
	buffer     []float32
	writeIndex int
	filled     int
	sampleRate float64
	windowSec  float64
}

// NewSampleRing allocates a ring holding windowSec seconds at sampleRate.
func NewSampleRing(sampleRate, windowSec float64) (*SampleRing, error) {
	r := &SampleRing{}
	if _, err := r.Configure(sampleRate, windowSec); err != nil {
		return nil, err
	}
	return r, nil
}

// Configure resizes the ring for a new sample rate or window length. When
// either changes the buffer is reallocated and its contents discarded.
// Calling it with the current values is a no-op. Reports whether the buffer
// was reallocated.
func (r *SampleRing) Configure(sampleRate, windowSec float64) (bool, error) {
	if r.buffer != nil && sampleRate == r.sampleRate && windowSec == r.windowSec {
		return false, nil
	}
	capacity := RingCapacity(sampleRate, windowSec)
	if math.IsNaN(sampleRate) || math.IsNaN(windowSec) || capacity <= 0 {
		return false, fmt.Errorf("%w: %.1f Hz x %.2f s", ErrInvalidRate, sampleRate, windowSec)
	}

	r.buffer = make([]float32, capacity)
	r.writeIndex = 0
	r.filled = 0
	r.sampleRate = sampleRate
	r.windowSec = windowSec
	return true, nil
}

// Push copies chunk into the ring with wraparound.
func (r *SampleRing) Push(chunk []float32) {
	capacity := len(r.buffer)
	n := len(chunk)
	if capacity == 0 || n == 0 {
		return
	}

	// Only the newest capacity samples can survive.
	if n >= capacity {
		copy(r.buffer, chunk[n-capacity:])
		r.writeIndex = 0
		r.filled = capacity
		return
	}

	first := copy(r.buffer[r.writeIndex:], chunk)
	if first < n {
		copy(r.buffer, chunk[first:])
	}
	r.writeIndex = (r.writeIndex + n) % capacity
	r.filled = min(r.filled+n, capacity)
}

// ReadWindow returns a copy of the filled samples in chronological order.
func (r *SampleRing) ReadWindow() []float32 {
	return r.ReadWindowInto(make([]float32, r.filled))
}

// ReadWindowInto writes the filled samples into dst, growing it if needed,
// and returns the filled prefix.
func (r *SampleRing) ReadWindowInto(dst []float32) []float32 {
	if cap(dst) < r.filled {
		dst = make([]float32, r.filled)
	}
	dst = dst[:r.filled]
	if r.filled == 0 {
		return dst
	}

	capacity := len(r.buffer)
	start := (r.writeIndex - r.filled + capacity) % capacity
	n := copy(dst, r.buffer[start:min(start+r.filled, capacity)])
	if n < r.filled {
		copy(dst[n:], r.buffer[:r.filled-n])
	}
	return dst
}

// Reset discards all samples but keeps the allocation.
func (r *SampleRing) Reset() {
	r.writeIndex = 0
	r.filled = 0
}

// Capacity returns the ring size in samples.
func (r *SampleRing) Capacity() int { return len(r.buffer) }

// Filled returns how many valid samples the ring holds.
func (r *SampleRing) Filled() int { return r.filled }

// FillRatio returns Filled/Capacity in [0,1].
func (r *SampleRing) FillRatio() float64 {
	if len(r.buffer) == 0 {
		return 0
	}
	return float64(r.filled) / float64(len(r.buffer))
}

// SampleRate returns the rate the ring was sized for.
func (r *SampleRing) SampleRate() float64 { return r.sampleRate }

// WindowSec returns the window length the ring was sized for.
func (r *SampleRing) WindowSec() float64 { return r.windowSec }

// DurationSec returns the duration of the filled samples.
func (r *SampleRing) DurationSec() float64 {
	if r.sampleRate <= 0 {
		return 0
	}
	return float64(r.filled) / r.sampleRate
}
