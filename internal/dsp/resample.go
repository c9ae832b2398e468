// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"math"
	"strings"
)

// ResampleMode selects how a window is converted to the analysis rate.
type ResampleMode int

const (
	// ResampleNearest maps each output sample to the nearest earlier input
	// sample. There is no anti-alias filter before decimation, so content
	// above the target Nyquist folds back. This is the default.
	ResampleNearest ResampleMode = iota
	// ResampleLinear interpolates between neighbouring input samples. Still
	// unfiltered, but with less zipper noise on upsampling.
	ResampleLinear
)

// String returns the config name of the mode.
func (m ResampleMode) String() string {
	switch m {
	case ResampleLinear:
		return "linear"
	default:
		return "nearest"
	}
}

// ParseResampleMode converts a config name to a ResampleMode.
func ParseResampleMode(name string) (ResampleMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "nearest":
		return ResampleNearest, nil
	case "linear":
		return ResampleLinear, nil
	default:
		return ResampleNearest, fmt.Errorf("unknown resampler mode: '%s'", name)
	}
}

// ResampledLength returns round(inLen * dstRate/srcRate).
func ResampledLength(inLen int, srcRate, dstRate float64) int {
	if inLen <= 0 || srcRate <= 0 || dstRate <= 0 {
		return 0
	}
	return int(math.Round(float64(inLen) * dstRate / srcRate))
}

// Resample converts in from srcRate to dstRate using mode. Matching rates
// return a copy.
func Resample(mode ResampleMode, in []float32, srcRate, dstRate float64) []float32 {
	if mode == ResampleLinear {
		return ResampleLinearInterp(in, srcRate, dstRate)
	}
	return ResampleNearestIndex(in, srcRate, dstRate)
}

// ResampleNearestIndex resamples with srcIndex = floor(i*inLen/outLen),
// clamped to inLen-1.
func ResampleNearestIndex(in []float32, srcRate, dstRate float64) []float32 {
	inLen := len(in)
	if srcRate == dstRate {
		out := make([]float32, inLen)
		copy(out, in)
		return out
	}
	outLen := ResampledLength(inLen, srcRate, dstRate)
	if outLen == 0 {
		return nil
	}

	out := make([]float32, outLen)
	for i := range out {
		src := int(math.Floor(float64(i) * float64(inLen) / float64(outLen)))
		if src > inLen-1 {
			src = inLen - 1
		}
		out[i] = in[src]
	}
	return out
}

// ResampleLinearInterp resamples with linear interpolation between the two
// input samples around each output position.
func ResampleLinearInterp(in []float32, srcRate, dstRate float64) []float32 {
	inLen := len(in)
	if srcRate == dstRate {
		out := make([]float32, inLen)
		copy(out, in)
		return out
	}
	outLen := ResampledLength(inLen, srcRate, dstRate)
	if outLen == 0 {
		return nil
	}

	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * float64(inLen) / float64(outLen)
		idx := int(pos)
		if idx >= inLen-1 {
			out[i] = in[inLen-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx] + (in[idx+1]-in[idx])*frac
	}
	return out
}

// MarshalText implements encoding.TextMarshaler.
func (m ResampleMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ResampleMode) UnmarshalText(b []byte) error {
	parsed, err := ParseResampleMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
