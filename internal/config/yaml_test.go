// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tempo/internal/dsp"
	applog "tempo/internal/log"
	"tempo/internal/tempo"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if !cfg.Tempo.Enabled {
		t.Error("expected tempo analysis enabled by default in the application config")
	}
	if cfg.Tempo.Method != tempo.MethodSpectral {
		t.Errorf("expected spectral default, got %s", cfg.Tempo.Method)
	}
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Audio.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("FramesPerBuffer = %d, want %d", cfg.Audio.FramesPerBuffer, DefaultFramesPerBuffer)
	}
}

func TestLoadConfig_SearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log_level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestLoadConfig_TempoSection(t *testing.T) {
	path := writeTempConfig(t, `
tempo:
  enabled: true
  method: streaming
  variant: degara
  window_sec: 12
  update_interval_ms: 500
  min_tempo: 80
  max_tempo: 160
  input_fps: 20
  resample: linear
  max_fps: 30
transport:
  udp_send_interval: 50ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	got := cfg.Tempo
	if got.Method != tempo.MethodStreaming {
		t.Errorf("Method = %s, want streaming", got.Method)
	}
	if got.Variant != tempo.VariantDegara {
		t.Errorf("Variant = %s, want degara", got.Variant)
	}
	if got.WindowSec != 12 || got.UpdateIntervalMs != 500 {
		t.Errorf("window/interval = %v/%v, want 12/500", got.WindowSec, got.UpdateIntervalMs)
	}
	if got.MinTempo != 80 || got.MaxTempo != 160 {
		t.Errorf("tempo range = %v-%v, want 80-160", got.MinTempo, got.MaxTempo)
	}
	if got.InputFps != 20 || got.MaxFps != 30 {
		t.Errorf("fps = %d/%v, want 20/30", got.InputFps, got.MaxFps)
	}
	if got.Resample != dsp.ResampleLinear {
		t.Errorf("Resample = %v, want linear", got.Resample)
	}
	if cfg.Transport.UDPSendInterval != 50*time.Millisecond {
		t.Errorf("UDPSendInterval = %v, want 50ms", cfg.Transport.UDPSendInterval)
	}
	// Unset keys keep their defaults.
	if cfg.Audio.SampleRate != DefaultSampleRate {
		t.Errorf("SampleRate = %v, want default", cfg.Audio.SampleRate)
	}
}

func TestLoadConfig_UnknownMethod(t *testing.T) {
	path := writeTempConfig(t, "tempo:\n  method: neural\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for unknown tempo method")
	}
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"window too short", "tempo:\n  window_sec: 2\n", "tempo.window_sec must be greater than or equal to 4"},
		{"max tempo too high", "tempo:\n  max_tempo: 300\n", "tempo.max_tempo must be less than or equal to 260"},
		{"bad channel mode", "audio:\n  channel_mode: center\n", "audio.channel_mode must be one of"},
		{"bad sample rate", "audio:\n  sample_rate: 1000\n", "audio.sample_rate must be greater than or equal to 8000"},
		{"bad udp address", "transport:\n  udp_target_address: nope\n", "transport.udp_target_address must be a host:port address"},
		{"bad log level", "log_level: loud\n", "log_level must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeTempConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestValidate_ReportsAllFailures(t *testing.T) {
	cfg := Default()
	cfg.Audio.InputChannels = 0
	cfg.Recording.BitDepth = 12

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"audio.input_channels", "recording.bit_depth"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_LOG_LEVEL", "ERROR")
	t.Setenv("ENV_TEMPO_METHOD", "aubio")
	t.Setenv("ENV_UDP_ENABLED", "1")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.2:7000")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "100ms")
	t.Setenv("ENV_WS_ADDRESS", "0.0.0.0:9000")

	cfg := Default()
	if err := cfg.applyEnvOverrides(); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}

	if !cfg.Debug {
		t.Error("Debug not overridden")
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error", cfg.LogLevel)
	}
	if cfg.Tempo.Method != tempo.MethodStreaming {
		t.Errorf("Method = %s, want streaming", cfg.Tempo.Method)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "10.0.0.2:7000" {
		t.Errorf("UDP = %v %q", cfg.Transport.UDPEnabled, cfg.Transport.UDPTargetAddress)
	}
	if cfg.Transport.UDPSendInterval != 100*time.Millisecond {
		t.Errorf("UDPSendInterval = %v", cfg.Transport.UDPSendInterval)
	}
	if !cfg.Transport.WSEnabled || cfg.Transport.WSAddress != "0.0.0.0:9000" {
		t.Errorf("WS = %v %q", cfg.Transport.WSEnabled, cfg.Transport.WSAddress)
	}
}

func TestApplyEnvOverrides_IgnoresBadValues(t *testing.T) {
	t.Setenv("ENV_DEBUG", "maybe")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "soon")

	cfg := Default()
	if err := cfg.applyEnvOverrides(); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}
	if cfg.Debug {
		t.Error("unparsable ENV_DEBUG should be ignored")
	}
	if cfg.Transport.UDPSendInterval != DefaultUDPSendInterval {
		t.Errorf("unparsable ENV_UDP_SEND_INTERVAL should be ignored, got %v", cfg.Transport.UDPSendInterval)
	}
}

func TestApplyEnvOverrides_UnknownMethod(t *testing.T) {
	t.Setenv("ENV_TEMPO_METHOD", "neural")
	cfg := Default()
	if err := cfg.applyEnvOverrides(); err == nil {
		t.Error("expected error for unknown ENV_TEMPO_METHOD")
	}
}

func TestLogLevelValue(t *testing.T) {
	tests := []struct {
		debug bool
		level string
		want  applog.LogLevel
	}{
		{false, "info", applog.LevelInfo},
		{false, "warn", applog.LevelWarn},
		{false, "error", applog.LevelError},
		{true, "error", applog.LevelDebug},
	}
	for _, tt := range tests {
		cfg := Config{Debug: tt.debug, LogLevel: tt.level}
		if got := cfg.LogLevelValue(); got != tt.want {
			t.Errorf("LogLevelValue(%v, %q) = %v, want %v", tt.debug, tt.level, got, tt.want)
		}
	}
}
