// SPDX-License-Identifier: MIT
/*
Package analysis runs tempo estimation on a worker goroutine and publishes
its results through the Analyzer facade.

The facade is called from the audio callback. It never blocks: frames are
mixed to mono, throttled, and posted to the worker's mailbox. The worker
owns the backend and all DSP state, and answers with result, error and
info messages. The facade turns results into an immutable Snapshot that
readers load atomically.
*/
package analysis

import (
	"math"

	"tempo/internal/dsp"
	"tempo/internal/tempo"
)

// Config ranges.
const (
	MinWindowSec        = 4.0
	MaxWindowSec        = 20.0
	MinUpdateIntervalMs = 250.0
	MaxUpdateIntervalMs = 5000.0
	MinMinTempo         = 30.0
	MaxMinTempo         = 220.0
	MinMaxTempo         = 60.0
	MaxMaxTempo         = 260.0
	MinInputFps         = 5
	MaxInputFps         = 60
)

// Config is the tempo subsystem configuration. It is replaced as a whole,
// never mutated in place.
type Config struct {
	Enabled          bool             `json:"enabled" yaml:"enabled"`
	WindowSec        float64          `json:"windowSec" yaml:"window_sec" validate:"gte=4,lte=20"`
	UpdateIntervalMs float64          `json:"updateIntervalMs" yaml:"update_interval_ms" validate:"gte=250,lte=5000"`
	MinTempo         float64          `json:"minTempo" yaml:"min_tempo" validate:"gte=30,lte=220"`
	MaxTempo         float64          `json:"maxTempo" yaml:"max_tempo" validate:"gte=60,lte=260"`
	Method           tempo.Method     `json:"method" yaml:"method"`
	Variant          tempo.Variant    `json:"variant" yaml:"variant"`
	InputFps         int              `json:"inputFps" yaml:"input_fps" validate:"gte=5,lte=60"`
	Resample         dsp.ResampleMode `json:"resample" yaml:"resample"`
}

// DefaultConfig returns the defaults. The subsystem starts disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:          false,
		WindowSec:        8,
		UpdateIntervalMs: 1000,
		MinTempo:         60,
		MaxTempo:         190,
		Method:           tempo.MethodSpectral,
		Variant:          tempo.VariantMultiFeature,
		InputFps:         30,
		Resample:         dsp.ResampleNearest,
	}
}

// Clamp returns c with every numeric field forced into its range. NaN
// fields take the default. MaxTempo is raised to MinTempo if it is lower.
func (c Config) Clamp() Config {
	def := DefaultConfig()
	c.WindowSec = clampFloat(c.WindowSec, MinWindowSec, MaxWindowSec, def.WindowSec)
	c.UpdateIntervalMs = clampFloat(c.UpdateIntervalMs, MinUpdateIntervalMs, MaxUpdateIntervalMs, def.UpdateIntervalMs)
	c.MinTempo = clampFloat(c.MinTempo, MinMinTempo, MaxMinTempo, def.MinTempo)
	c.MaxTempo = clampFloat(c.MaxTempo, MinMaxTempo, MaxMaxTempo, def.MaxTempo)
	if c.MaxTempo < c.MinTempo {
		c.MaxTempo = c.MinTempo
	}
	c.InputFps = min(max(c.InputFps, MinInputFps), MaxInputFps)
	if c.Method != tempo.MethodStreaming {
		c.Method = tempo.MethodSpectral
	}
	if c.Variant != tempo.VariantDegara {
		c.Variant = tempo.VariantMultiFeature
	}
	if c.Resample != dsp.ResampleLinear {
		c.Resample = dsp.ResampleNearest
	}
	return c
}

// Params returns the backend view of the config.
func (c Config) Params() tempo.Params {
	return tempo.Params{
		MinTempo:  c.MinTempo,
		MaxTempo:  c.MaxTempo,
		WindowSec: c.WindowSec,
		Variant:   c.Variant,
		Resample:  c.Resample,
	}
}

func clampFloat(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Max(lo, math.Min(hi, v))
}

// ConfigPatch is a partial config update. Nil fields are left unchanged.
type ConfigPatch struct {
	Enabled          *bool             `json:"enabled,omitempty"`
	WindowSec        *float64          `json:"windowSec,omitempty"`
	UpdateIntervalMs *float64          `json:"updateIntervalMs,omitempty"`
	MinTempo         *float64          `json:"minTempo,omitempty"`
	MaxTempo         *float64          `json:"maxTempo,omitempty"`
	Method           *tempo.Method     `json:"method,omitempty"`
	Variant          *tempo.Variant    `json:"variant,omitempty"`
	InputFps         *int              `json:"inputFps,omitempty"`
	Resample         *dsp.ResampleMode `json:"resample,omitempty"`
}

// Apply returns c with the patch's set fields replaced.
func (p ConfigPatch) Apply(c Config) Config {
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.WindowSec != nil {
		c.WindowSec = *p.WindowSec
	}
	if p.UpdateIntervalMs != nil {
		c.UpdateIntervalMs = *p.UpdateIntervalMs
	}
	if p.MinTempo != nil {
		c.MinTempo = *p.MinTempo
	}
	if p.MaxTempo != nil {
		c.MaxTempo = *p.MaxTempo
	}
	if p.Method != nil {
		c.Method = *p.Method
	}
	if p.Variant != nil {
		c.Variant = *p.Variant
	}
	if p.InputFps != nil {
		c.InputFps = *p.InputFps
	}
	if p.Resample != nil {
		c.Resample = *p.Resample
	}
	return c
}

// PatchFrom returns a patch that sets every field of c.
func PatchFrom(c Config) ConfigPatch {
	return ConfigPatch{
		Enabled:          &c.Enabled,
		WindowSec:        &c.WindowSec,
		UpdateIntervalMs: &c.UpdateIntervalMs,
		MinTempo:         &c.MinTempo,
		MaxTempo:         &c.MaxTempo,
		Method:           &c.Method,
		Variant:          &c.Variant,
		InputFps:         &c.InputFps,
		Resample:         &c.Resample,
	}
}
