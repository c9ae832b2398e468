// SPDX-License-Identifier: MIT
/*
Package tempo implements the two tempo estimation backends and the
estimate conditioning shared by them:

- SpectralBackend analyses a multi-second window on each tick
- StreamingBackend runs an online tracker on every 512-sample hop
- StabilityTracker scores a rolling BPM history with median/MAD
- SmoothingFilter applies asymmetric attack/release to the BPM
- BeatPhase and BeatPulse turn a beat time into a 0..1 clock
- InitGate guards backend construction with memoisation and backoff

Backends are owned by the analysis worker and are not safe for concurrent
use, except InitGate which may be awaited from several goroutines.
*/
package tempo

import (
	"fmt"
	"strings"

	"tempo/internal/dsp"
)

// Method selects the estimation backend.
type Method int

const (
	MethodSpectral Method = iota
	MethodStreaming
)

// String returns the wire name of the method.
func (m Method) String() string {
	switch m {
	case MethodStreaming:
		return "streaming"
	default:
		return "spectral"
	}
}

// ParseMethod accepts the wire names plus the names of the algorithms
// behind them.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "spectral", "multifeature", "degara":
		return MethodSpectral, nil
	case "streaming", "aubio", "online":
		return MethodStreaming, nil
	default:
		return MethodSpectral, fmt.Errorf("unknown tempo method: '%s'", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(b []byte) error {
	parsed, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Variant selects the onset features of the spectral rhythm extractor.
type Variant int

const (
	// VariantMultiFeature combines flux, HFC and energy onsets and derives
	// confidence from their agreement.
	VariantMultiFeature Variant = iota
	// VariantDegara uses spectral flux only.
	VariantDegara
)

// String returns the config name of the variant.
func (v Variant) String() string {
	if v == VariantDegara {
		return "degara"
	}
	return "multifeature"
}

// ParseVariant converts a config name to a Variant.
func ParseVariant(name string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "multifeature":
		return VariantMultiFeature, nil
	case "degara":
		return VariantDegara, nil
	default:
		return VariantMultiFeature, fmt.Errorf("unknown spectral variant: '%s'", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(b []byte) error {
	parsed, err := ParseVariant(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Absolute tempo limits. Anything outside is never a valid estimate.
const (
	AbsoluteMinBPM = 30.0
	AbsoluteMaxBPM = 260.0

	// BandMarginBPM widens the configured range for history acceptance.
	BandMarginBPM = 10.0
)

// Chunk is a block of mono samples stamped with the transport time of its
// first sample.
type Chunk struct {
	SampleRate float64
	TimeSec    float64
	Samples    []float32
}

// EndSec returns the transport time just after the last sample.
func (c Chunk) EndSec() float64 {
	if c.SampleRate <= 0 {
		return c.TimeSec
	}
	return c.TimeSec + float64(len(c.Samples))/c.SampleRate
}

// Params are the per-tick settings a backend reads from the current config.
type Params struct {
	MinTempo  float64
	MaxTempo  float64
	WindowSec float64
	Variant   Variant
	Resample  dsp.ResampleMode
}

// Band returns the widened acceptance range [min-10, max+10].
func (p Params) Band() (lo, hi float64) {
	return p.MinTempo - BandMarginBPM, p.MaxTempo + BandMarginBPM
}

// InBand reports whether bpm lies in the widened acceptance range.
func (p Params) InBand(bpm float64) bool {
	lo, hi := p.Band()
	return bpm > 0 && bpm >= lo && bpm <= hi
}

// BeatEvent reports a beat the streaming tracker placed.
type BeatEvent struct {
	TimeSec float64
}

// Estimate is the conditioned output of one backend tick.
type Estimate struct {
	OK          bool
	BPM         float64 // 0 when unknown
	Confidence  float64 // [0,1], backend defined scale
	Stability   float64 // [0,1]
	LastBeatSec float64
	HasBeat     bool
	HopSec      float64 // streaming only
}

// Backend is a tempo estimator owned by the analysis worker.
type Backend interface {
	Method() Method
	// Feed hands a chunk to the backend. The streaming backend may report
	// the latest beat it placed while consuming the chunk.
	Feed(chunk Chunk, p Params) (*BeatEvent, error)
	// Tick produces an estimate at transport time nowSec. A nil estimate
	// with a nil error means there is not enough data yet.
	Tick(nowSec float64, p Params) (*Estimate, error)
	// InitState reports the backend's initialisation state.
	InitState() InitState
}

func clamp01(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
