// SPDX-License-Identifier: MIT
/*
Package audio captures live input with PortAudio and hands it to the tempo
analyzer, and reads WAV files for offline analysis.

The capture callback is the hot path:
- Input is deinterleaved into pre-allocated per-channel buffers
- An optional peak gate replaces quiet buffers with silence
- Frames are stamped with transport time (frames counted / sample rate)
- Recording to WAV is switched with an atomic flag

Thread Safety:
- The callback runs on a locked OS thread and never allocates
- Gate and recording state are atomics, safe to change from any goroutine
*/
package audio

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"tempo/internal/analysis"
	"tempo/internal/config"
	applog "tempo/internal/log"
)

// FrameSink receives captured frames. *analysis.Analyzer satisfies it.
// The frame's buffers are reused after OnAudioFrame returns.
type FrameSink interface {
	OnAudioFrame(frame analysis.AudioFrame, opts analysis.FrameOptions)
}

type Engine struct {
	// Core configuration and state.
	config     config.AudioConfig
	recording  config.RecordingConfig
	sink       FrameSink
	frameOpts  analysis.FrameOptions
	framesSeen uint64 // Transport clock in frames, owned by the callback

	// Audio input handling.
	inputBuffer  []float32   // Interleaved copy of the callback input
	channels     [][]float32 // Deinterleaved input, one slice per channel
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	// Noise gate for signal conditioning.
	gateEnabled   atomic.Bool
	gateThreshold atomic.Uint32 // math.Float32bits of the peak threshold
	gatedFrames   atomic.Uint64

	// Recording state and buffers.
	recordMu    sync.Mutex // Guards the encoder against the callback
	isRecording int32      // Atomic flag for thread-safe state
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer // Reusable buffer for format conversion
	sampleScale float64
}

// NewEngine resolves the configured input device and prepares an engine
// that delivers frames to sink.
func NewEngine(cfg *config.Config, sink FrameSink) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}

	engine := newEngine(cfg, sink)
	engine.inputDevice = inputDevice
	if cfg.Audio.LowLatency {
		engine.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		engine.inputLatency = inputDevice.DefaultHighInputLatency
	}

	applog.Infof("Engine: Using input device '%s' (%d ch @ %.0f Hz, %d frames/buffer)",
		inputDevice.Name, cfg.Audio.InputChannels, cfg.Audio.SampleRate, cfg.Audio.FramesPerBuffer)
	return engine, nil
}

// newEngine allocates every buffer the callback needs.
func newEngine(cfg *config.Config, sink FrameSink) *Engine {
	frames := cfg.Audio.FramesPerBuffer
	numChannels := cfg.Audio.InputChannels

	channels := make([][]float32, numChannels)
	for ch := range channels {
		channels[ch] = make([]float32, frames)
	}

	engine := &Engine{
		config:      cfg.Audio,
		recording:   cfg.Recording,
		sink:        sink,
		frameOpts:   analysis.FrameOptions{MaxFps: cfg.Tempo.MaxFps},
		inputBuffer: make([]float32, frames*numChannels),
		channels:    channels,
	}
	engine.SetGateThreshold(cfg.Audio.GateThreshold)
	if cfg.Audio.GateEnabled {
		engine.EnableGate()
	}
	return engine
}

func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.config.InputChannels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.FramesPerBuffer,
		SampleRate:      e.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	applog.Debugf("Engine: Input stream started")
	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}

		if err := e.inputStream.Close(); err != nil {
			return err
		}

		e.inputStream = nil
		applog.Debugf("Engine: Input stream stopped")
	}

	return nil
}

// TransportTime returns the time of the next frame in seconds. It is only
// meaningful while the stream is stopped or from the callback goroutine.
func (e *Engine) TransportTime() float64 {
	return float64(e.framesSeen) / e.config.SampleRate
}

// GatedFrames returns the number of buffers the gate replaced with silence.
func (e *Engine) GatedFrames() uint64 { return e.gatedFrames.Load() }

// processInputStream is the core audio processing callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	n := copy(e.inputBuffer, in)
	e.processBuffer(e.inputBuffer[:n])
}

// processBuffer records, deinterleaves, gates and delivers one interleaved
// buffer. The frame's TimeSec is the transport time of its first sample.
func (e *Engine) processBuffer(buffer []float32) {
	numChannels := len(e.channels)
	if numChannels == 0 {
		return
	}
	frames := len(buffer) / numChannels

	// TryLock skips the write while StartRecording or StopRecording runs.
	if atomic.LoadInt32(&e.isRecording) == 1 && e.recordMu.TryLock() {
		e.writeRecording(buffer[:frames*numChannels])
		e.recordMu.Unlock()
	}

	for ch := range e.channels {
		e.channels[ch] = e.channels[ch][:cap(e.channels[ch])]
	}
	if frames > len(e.channels[0]) {
		frames = len(e.channels[0])
	}
	for i := range frames {
		base := i * numChannels
		for ch := range numChannels {
			e.channels[ch][i] = buffer[base+ch]
		}
	}
	for ch := range e.channels {
		e.channels[ch] = e.channels[ch][:frames]
	}

	if e.gateEnabled.Load() && peak(buffer[:frames*numChannels]) <= e.GetGateThreshold() {
		for ch := range e.channels {
			clear(e.channels[ch])
		}
		e.gatedFrames.Add(1)
	}

	timeSec := e.TransportTime()
	e.framesSeen += uint64(frames)

	if e.sink != nil && frames > 0 {
		e.sink.OnAudioFrame(analysis.AudioFrame{
			SampleRate: e.config.SampleRate,
			TimeSec:    timeSec,
			Channels:   e.channels,
		}, e.frameOpts)
	}
}
