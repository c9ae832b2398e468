// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "tempo/internal/log"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag.
const wavFormatPCM = 1

var errAlreadyRecording = errors.New("already recording")

// RecordingFilename returns a timestamped WAV path inside dir.
func RecordingFilename(dir string, now time.Time) string {
	return filepath.Join(dir, "recording-"+now.UTC().Format("02-01-2006-150405")+".wav")
}

// StartRecording writes captured input to filename as integer PCM at the
// configured bit depth, all input channels interleaved.
func (e *Engine) StartRecording(filename string) error {
	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	if atomic.LoadInt32(&e.isRecording) == 1 {
		return errAlreadyRecording
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create recording directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	e.outputFile = file

	bitDepth := e.recording.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	numChannels := e.config.InputChannels

	e.wavEncoder = wav.NewEncoder(file, int(e.config.SampleRate),
		bitDepth, numChannels, wavFormatPCM)

	e.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  int(e.config.SampleRate),
		},
		Data:           make([]int, e.config.FramesPerBuffer*numChannels),
		SourceBitDepth: bitDepth,
	}
	e.sampleScale = float64(int64(1)<<(bitDepth-1) - 1)

	atomic.StoreInt32(&e.isRecording, 1)
	applog.Infof("Engine: Recording to %s (%d-bit)", filename, bitDepth)

	return nil
}

// writeRecording converts one interleaved buffer to integer PCM and
// appends it. Called from the audio callback only.
func (e *Engine) writeRecording(buffer []float32) {
	if e.wavEncoder == nil || len(buffer) > cap(e.sampleBuf.Data) {
		return
	}

	e.sampleBuf.Data = e.sampleBuf.Data[:len(buffer)]
	for i, sample := range buffer {
		e.sampleBuf.Data[i] = int(float64(min(max(sample, -1), 1)) * e.sampleScale)
	}

	if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
		applog.Errorf("Engine: Error writing to WAV file: %v", err)
	}
}

func (e *Engine) StopRecording() error {
	e.recordMu.Lock()
	defer e.recordMu.Unlock()

	if atomic.LoadInt32(&e.isRecording) == 0 {
		return nil
	}

	atomic.StoreInt32(&e.isRecording, 0)

	if e.wavEncoder != nil {
		if err := e.wavEncoder.Close(); err != nil {
			return err
		}
		e.wavEncoder = nil
	}

	if e.outputFile != nil {
		if err := e.outputFile.Close(); err != nil {
			return err
		}
		e.outputFile = nil
	}

	return nil
}

// IsRecording reports whether input is being written to disk.
func (e *Engine) IsRecording() bool {
	return atomic.LoadInt32(&e.isRecording) == 1
}

func (e *Engine) Close() error {
	if err := e.StopInputStream(); err != nil {
		return err
	}

	if err := e.StopRecording(); err != nil {
		return err
	}

	return nil
}
