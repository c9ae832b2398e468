// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"tempo/internal/analysis"
)

var ErrUnsupportedWAV = errors.New("unsupported WAV file")

// FileSource reads a PCM WAV file as a sequence of analysis frames.
type FileSource struct {
	file *os.File
	dec  *wav.Decoder

	sampleRate  float64
	numChannels int
	bitDepth    int
	scale       float32
	offset      int // 8-bit WAV is unsigned

	buf        *audio.IntBuffer
	channels   [][]float32
	framesRead uint64
}

// OpenFile opens path and prepares to read framesPerBuffer frames at a time.
func OpenFile(path string, framesPerBuffer int) (*FileSource, error) {
	if framesPerBuffer < 1 {
		return nil, fmt.Errorf("invalid frames per buffer: %d", framesPerBuffer)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrUnsupportedWAV, path)
	}
	dec.ReadInfo()
	if dec.WavAudioFormat != wavFormatPCM {
		file.Close()
		return nil, fmt.Errorf("%w: audio format %d, want integer PCM", ErrUnsupportedWAV, dec.WavAudioFormat)
	}

	numChannels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if numChannels < 1 || dec.SampleRate == 0 || bitDepth < 8 || bitDepth > 32 || bitDepth%8 != 0 {
		file.Close()
		return nil, fmt.Errorf("%w: %d channels, %d Hz, %d-bit", ErrUnsupportedWAV, numChannels, dec.SampleRate, bitDepth)
	}

	channels := make([][]float32, numChannels)
	for ch := range channels {
		channels[ch] = make([]float32, framesPerBuffer)
	}

	s := &FileSource{
		file:        file,
		dec:         dec,
		sampleRate:  float64(dec.SampleRate),
		numChannels: numChannels,
		bitDepth:    bitDepth,
		scale:       1 / float32(int64(1)<<(bitDepth-1)),
		buf: &audio.IntBuffer{
			Format:         dec.Format(),
			Data:           make([]int, framesPerBuffer*numChannels),
			SourceBitDepth: bitDepth,
		},
		channels: channels,
	}
	if bitDepth == 8 {
		s.offset = 128
	}
	return s, nil
}

func (s *FileSource) SampleRate() float64 { return s.sampleRate }
func (s *FileSource) NumChannels() int    { return s.numChannels }
func (s *FileSource) BitDepth() int       { return s.bitDepth }

// Duration returns the length of the audio data.
func (s *FileSource) Duration() (time.Duration, error) {
	return s.dec.Duration()
}

// Position returns the transport time of the next frame in seconds.
func (s *FileSource) Position() float64 {
	return float64(s.framesRead) / s.sampleRate
}

// Next returns the next frame. The frame's buffers are reused by the next
// call. At the end of the file it returns io.EOF.
func (s *FileSource) Next() (analysis.AudioFrame, error) {
	s.buf.Data = s.buf.Data[:cap(s.buf.Data)]
	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil {
		return analysis.AudioFrame{}, fmt.Errorf("failed to decode PCM: %w", err)
	}
	frames := n / s.numChannels
	if frames == 0 {
		return analysis.AudioFrame{}, io.EOF
	}

	for ch := range s.channels {
		s.channels[ch] = s.channels[ch][:frames]
	}
	for i := range frames {
		base := i * s.numChannels
		for ch := range s.numChannels {
			s.channels[ch][i] = float32(s.buf.Data[base+ch]-s.offset) * s.scale
		}
	}

	frame := analysis.AudioFrame{
		SampleRate: s.sampleRate,
		TimeSec:    s.Position(),
		Channels:   s.channels,
	}
	s.framesRead += uint64(frames)
	return frame, nil
}

func (s *FileSource) Close() error {
	return s.file.Close()
}
