// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tempo/internal/config"
	"tempo/internal/tempo"
)

func TestParseArgsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	opts, err := ParseArgs(nil)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opts.Command != CommandLive {
		t.Errorf("Command = %q, want live", opts.Command)
	}
	if opts.Config.Audio.SampleRate != config.DefaultSampleRate {
		t.Errorf("SampleRate = %v, want default", opts.Config.Audio.SampleRate)
	}
	if opts.Monitor {
		t.Error("monitor should be off by default")
	}
}

func TestParseArgsFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	content := "audio:\n  sample_rate: 96000\n  input_channels: 2\ntempo:\n  method: streaming\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	opts, err := ParseArgs([]string{
		"--config", path,
		"-s", "48000",
		"--channel-mode", "left",
		"--gate", "0.05",
		"--ws", "127.0.0.1:9999",
		"--udp", "127.0.0.1:7000",
		"-r", "-o", "/tmp/takes",
		"-m",
	})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	cfg := opts.Config

	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("SampleRate = %v, want flag value 48000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.InputChannels != 2 {
		t.Errorf("InputChannels = %d, want file value 2", cfg.Audio.InputChannels)
	}
	if cfg.Tempo.Method != tempo.MethodStreaming {
		t.Errorf("Method = %s, want file value streaming", cfg.Tempo.Method)
	}
	if cfg.Audio.ChannelMode != "left" {
		t.Errorf("ChannelMode = %q, want left", cfg.Audio.ChannelMode)
	}
	if !cfg.Audio.GateEnabled || cfg.Audio.GateThreshold != 0.05 {
		t.Errorf("gate = %v/%v, want on/0.05", cfg.Audio.GateEnabled, cfg.Audio.GateThreshold)
	}
	if !cfg.Transport.WSEnabled || cfg.Transport.WSAddress != "127.0.0.1:9999" {
		t.Errorf("ws = %v %q", cfg.Transport.WSEnabled, cfg.Transport.WSAddress)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "127.0.0.1:7000" {
		t.Errorf("udp = %v %q", cfg.Transport.UDPEnabled, cfg.Transport.UDPTargetAddress)
	}
	if !cfg.Recording.Enabled || cfg.Recording.OutputDir != "/tmp/takes" {
		t.Errorf("recording = %v %q", cfg.Recording.Enabled, cfg.Recording.OutputDir)
	}
	if !opts.Monitor {
		t.Error("-m should enable the monitor")
	}
}

func TestParseArgsMethodFlag(t *testing.T) {
	t.Chdir(t.TempDir())

	opts, err := ParseArgs([]string{"--method", "aubio"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opts.Config.Tempo.Method != tempo.MethodStreaming {
		t.Errorf("Method = %s, want streaming", opts.Config.Tempo.Method)
	}

	if _, err := ParseArgs([]string{"--method", "neural"}); err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestParseArgsList(t *testing.T) {
	t.Chdir(t.TempDir())

	opts, err := ParseArgs([]string{"list", "-i"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opts.Command != CommandList || !opts.Interactive {
		t.Errorf("got %q interactive=%v", opts.Command, opts.Interactive)
	}
}

func TestParseArgsAnalyze(t *testing.T) {
	t.Chdir(t.TempDir())

	opts, err := ParseArgs([]string{"analyze", "song.wav", "--every", "500ms", "-b", "1024"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opts.Command != CommandAnalyze || opts.File != "song.wav" {
		t.Errorf("got %q %q", opts.Command, opts.File)
	}
	if opts.Every != 500*time.Millisecond {
		t.Errorf("Every = %v, want 500ms", opts.Every)
	}
	if opts.Config.Audio.FramesPerBuffer != 1024 {
		t.Errorf("FramesPerBuffer = %d, want 1024", opts.Config.Audio.FramesPerBuffer)
	}
}

func TestParseArgsErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		args []string
	}{
		{"analyze without file", []string{"analyze"}},
		{"analyze zero every", []string{"analyze", "a.wav", "--every", "0s"}},
		{"invalid flag value", []string{"--channel-mode", "center"}},
		{"sample rate out of range", []string{"-s", "1000"}},
		{"unknown flag", []string{"--nope"}},
		{"missing config file", []string{"--config", "missing.yaml"}},
		{"stray argument", []string{"extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseArgs(tt.args); err == nil {
				t.Errorf("ParseArgs(%v) succeeded, want error", tt.args)
			}
		})
	}
}

func TestParseArgsHelp(t *testing.T) {
	t.Chdir(t.TempDir())

	opts, err := ParseArgs([]string{"--help"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opts != nil {
		t.Errorf("--help should return nil options, got %+v", opts)
	}
}
