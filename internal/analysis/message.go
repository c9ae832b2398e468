// SPDX-License-Identifier: MIT
package analysis

import "tempo/internal/tempo"

// MessageType tags worker protocol messages.
type MessageType string

const (
	TypeConfig MessageType = "config"
	TypeAudio  MessageType = "audio"
	TypeResult MessageType = "result"
	TypeError  MessageType = "error"
	TypeInfo   MessageType = "info"
)

// Message is anything that crosses the worker boundary.
type Message interface {
	MessageType() MessageType
}

// ConfigMessage replaces the worker's config. The worker clamps it again.
type ConfigMessage struct {
	Type MessageType `json:"type"`
	Config
}

// AudioMessage carries one block of mono PCM. The worker owns PCM.
type AudioMessage struct {
	Type       MessageType `json:"type"`
	SampleRate float64     `json:"sampleRate"`
	TimeSec    float64     `json:"timeSec"`
	PCM        []float32   `json:"pcm"`
}

// ResultMessage is one analysis tick's output.
type ResultMessage struct {
	Type                      MessageType  `json:"type"`
	OK                        bool         `json:"ok"`
	BPM                       float64      `json:"bpm"`
	Confidence01              float64      `json:"confidence01"`
	Stability01               float64      `json:"stability01"`
	BeatPhase                 float64      `json:"beatPhase"`
	BeatPulse                 float64      `json:"beatPulse"`
	Method                    tempo.Method `json:"method"`
	SuggestedUpdateIntervalMs float64      `json:"suggestedUpdateIntervalMs"`
	HopSec                    float64      `json:"hopSec,omitempty"`
}

// ErrorMessage reports a non-fatal worker failure.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// InfoMessage is advisory.
type InfoMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func (ConfigMessage) MessageType() MessageType { return TypeConfig }
func (AudioMessage) MessageType() MessageType  { return TypeAudio }
func (ResultMessage) MessageType() MessageType { return TypeResult }
func (ErrorMessage) MessageType() MessageType  { return TypeError }
func (InfoMessage) MessageType() MessageType   { return TypeInfo }

// NewConfigMessage wraps cfg.
func NewConfigMessage(cfg Config) ConfigMessage {
	return ConfigMessage{Type: TypeConfig, Config: cfg}
}

// NewAudioMessage wraps pcm without copying it.
func NewAudioMessage(sampleRate, timeSec float64, pcm []float32) AudioMessage {
	return AudioMessage{Type: TypeAudio, SampleRate: sampleRate, TimeSec: timeSec, PCM: pcm}
}

func newError(msg string) ErrorMessage { return ErrorMessage{Type: TypeError, Message: msg} }
func newInfo(msg string) InfoMessage   { return InfoMessage{Type: TypeInfo, Message: msg} }
