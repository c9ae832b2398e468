// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"math/rand/v2"
)

// clickLength is the duration of one synthetic click in seconds.
const clickLength = 0.01

// GenerateClickTrack renders durationSec of decaying noise-free clicks at
// bpm, starting with a click at t=0.
func GenerateClickTrack(bpm, sampleRate, durationSec float64) []float32 {
	size := int(durationSec * sampleRate)
	buffer := make([]float32, size)
	if bpm <= 0 {
		return buffer
	}

	period := 60 / bpm
	clickSamples := int(clickLength * sampleRate)
	for beat := 0; ; beat++ {
		start := int(math.Round(float64(beat) * period * sampleRate))
		if start >= size {
			break
		}
		for j := 0; j < clickSamples && start+j < size; j++ {
			t := float64(j) / sampleRate
			env := math.Exp(-t / (clickLength / 4))
			buffer[start+j] = float32(0.9 * env * math.Sin(2*math.Pi*1000*t))
		}
	}
	return buffer
}

// GenerateSilence returns durationSec of zeros.
func GenerateSilence(sampleRate, durationSec float64) []float32 {
	return make([]float32, int(durationSec*sampleRate))
}

// GenerateSineWave returns size samples of a 0.9 amplitude sine.
func GenerateSineWave(size int, sampleRate, frequency float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * 0.9)
	}
	return buffer
}

// GenerateNoise returns size samples of uniform noise in [-amp, amp],
// reproducible for a given seed.
func GenerateNoise(size int, amp float64, seed uint64) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = float32((rng.Float64()*2 - 1) * amp)
	}
	return buffer
}

// Chunk splits samples into consecutive slices of size; the last may be
// shorter. The slices alias samples.
func Chunk(samples []float32, size int) [][]float32 {
	if size <= 0 {
		return nil
	}
	chunks := make([][]float32, 0, (len(samples)+size-1)/size)
	for start := 0; start < len(samples); start += size {
		chunks = append(chunks, samples[start:min(start+size, len(samples))])
	}
	return chunks
}

// FindPeakBin returns the index of the largest magnitude in
// [startBin, endBin], clamped to the slice.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
