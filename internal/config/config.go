// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults and limits for the application config.
const (
	// Audio defaults
	DefaultDeviceID        = MinDeviceID // System default input device
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultFramesPerBuffer = 512         // ~11.6ms at 44.1kHz
	DefaultInputChannels   = 1           // Mono
	DefaultChannelMode     = "mix"       // Average all channels
	DefaultGateThreshold   = 0.01        // Peak below this is treated as silence

	// Tempo defaults not covered by analysis.DefaultConfig
	DefaultMaxFps = 60.0 // Render-rate cap for spectral posts

	// Recording defaults
	DefaultRecordingDir = "./recordings"
	DefaultBitDepth     = 16

	// Transport defaults
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz
	DefaultWSAddress        = "127.0.0.1:8080"
	DefaultPublishInterval  = 16 * time.Millisecond // ~60Hz

	// Hardware limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer
)
