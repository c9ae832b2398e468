// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"tempo/internal/config"
	"tempo/internal/tempo"
	"tempo/pkg/utils"
)

// writeStereoWAV writes samples to both channels of a 16-bit file.
func writeStereoWAV(t *testing.T, path string, sampleRate int, samples []float32) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           make([]int, 2*len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		v := int(float64(s) * math.MaxInt16)
		buf.Data[2*i] = v
		buf.Data[2*i+1] = v
	}

	enc := wav.NewEncoder(file, sampleRate, 16, 2, 1)
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestAnalyzeClickTrack(t *testing.T) {
	const bpm = 128.0
	path := filepath.Join(t.TempDir(), "clicks.wav")
	writeStereoWAV(t, path, 48000, utils.GenerateClickTrack(bpm, 48000, 10))

	cfg := config.Default()
	cfg.Tempo.Method = tempo.MethodStreaming

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	final, err := Analyze(ctx, &out, &cfg, path, time.Second)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !final.OK || math.Abs(final.BPM-bpm) >= 2 {
		t.Errorf("final = ok %v bpm %.2f, want ok near %v", final.OK, final.BPM, bpm)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	// Header, ten one-second rows, blank line, summary.
	if len(lines) != 13 {
		t.Errorf("output has %d lines, want 13:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[len(lines)-1], "Final tempo: 128") {
		t.Errorf("summary = %q", lines[len(lines)-1])
	}
}

func TestAnalyzeSilence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.wav")
	writeStereoWAV(t, path, 44100, utils.GenerateSilence(44100, 3))

	cfg := config.Default()
	var out bytes.Buffer
	final, err := Analyze(context.Background(), &out, &cfg, path, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if final.OK {
		t.Errorf("silence produced a tempo: %+v", final)
	}
	if !strings.Contains(out.String(), "No stable tempo found (spectral)") {
		t.Errorf("output missing summary:\n%s", out.String())
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	cfg := config.Default()
	if _, err := Analyze(context.Background(), &bytes.Buffer{}, &cfg, filepath.Join(t.TempDir(), "none.wav"), time.Second); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clicks.wav")
	writeStereoWAV(t, path, 44100, utils.GenerateClickTrack(120, 44100, 2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := config.Default()
	_, err := Analyze(ctx, &bytes.Buffer{}, &cfg, path, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
