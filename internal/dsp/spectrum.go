// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"math/cmplx"
	"strings"

	"tempo/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the analysis window applied before each FFT.
type WindowFunc int

// Available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

// ParseWindowFunc converts a name (case-insensitive) to a WindowFunc.
// Unknown names return Hann and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown window function name: '%s'", name)
	}
}

// windowCoefficients returns the coefficients of windowType for size points.
func windowCoefficients(size int, windowType WindowFunc) []float64 {
	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
	return coeffs
}

// spectrumWorkspace holds buffers reused on every frame.
type spectrumWorkspace struct {
	input     []float64
	fftOutput []complex128
	magnitude []float64
	window    []float64
}

// Spectrum computes windowed magnitude spectra of fixed-size frames.
type Spectrum struct {
	fft       *fourier.FFT
	size      int
	workspace spectrumWorkspace
}

// NewSpectrum creates a Spectrum for frames of size samples. size must be
// a power of two.
func NewSpectrum(size int, windowType WindowFunc) (*Spectrum, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", size)
	}

	bins := size/2 + 1
	return &Spectrum{
		fft:  fourier.NewFFT(size),
		size: size,
		workspace: spectrumWorkspace{
			input:     make([]float64, size),
			fftOutput: make([]complex128, bins),
			magnitude: make([]float64, bins),
			window:    windowCoefficients(size, windowType),
		},
	}, nil
}

// Magnitudes windows frame, runs the FFT and returns size/2+1 magnitudes.
// Short frames are zero padded. The returned slice is owned by the
// Spectrum and overwritten by the next call.
func (s *Spectrum) Magnitudes(frame []float64) []float64 {
	ws := &s.workspace
	for i := range s.size {
		if i < len(frame) {
			ws.input[i] = frame[i] * ws.window[i]
		} else {
			ws.input[i] = 0
		}
	}

	s.fft.Coefficients(ws.fftOutput, ws.input)
	for i, c := range ws.fftOutput {
		ws.magnitude[i] = cmplx.Abs(c)
	}
	return ws.magnitude
}

// Size returns the frame size in samples.
func (s *Spectrum) Size() int { return s.size }

// Bins returns the number of magnitude bins per frame.
func (s *Spectrum) Bins() int { return len(s.workspace.magnitude) }
