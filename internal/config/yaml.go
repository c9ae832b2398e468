// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"tempo/internal/analysis"
	applog "tempo/internal/log"
	"tempo/internal/tempo"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`                                                    // Enable debug logging.
	LogLevel  string          `yaml:"log_level" validate:"oneof=debug info warn warning error"` // Logging level.
	Audio     AudioConfig     `yaml:"audio"`                                                    // Audio input settings.
	Tempo     TempoConfig     `yaml:"tempo"`                                                    // Tempo analysis settings.
	Recording RecordingConfig `yaml:"recording"`                                                // Audio recording settings.
	Transport TransportConfig `yaml:"transport"`                                                // Snapshot transport settings.
}

// AudioConfig holds settings related to audio input.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device" validate:"gte=-1"`               // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate" validate:"gte=8000,lte=192000"`   // Sample rate in Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer" validate:"gte=64,lte=8192"` // Frames per callback.
	LowLatency      bool    `yaml:"low_latency"`                                  // Request low latency from the device.
	InputChannels   int     `yaml:"input_channels" validate:"gte=1,lte=32"`       // Channels to capture.
	ChannelMode     string  `yaml:"channel_mode" validate:"oneof=mix left right"` // Channel fed to the analyzer.
	GateEnabled     bool    `yaml:"gate_enabled"`                                 // Pass silence while the input is below the gate.
	GateThreshold   float64 `yaml:"gate_threshold" validate:"gte=0,lte=1"`        // Gate threshold as a peak amplitude.
}

// TempoConfig is the analysis subsystem config plus the host render cap.
type TempoConfig struct {
	analysis.Config `yaml:",inline"`
	MaxFps          float64 `yaml:"max_fps" validate:"gte=0,lte=240"` // Spectral post-rate cap (0 disables).
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`                             // Record the analysed input to WAV.
	OutputDir string `yaml:"output_dir" validate:"required"`      // Directory for recordings.
	BitDepth  int    `yaml:"bit_depth" validate:"oneof=16 24 32"` // Bit depth of recorded audio.
}

// TransportConfig holds settings related to publishing snapshots.
type TransportConfig struct {
	PublishInterval  time.Duration `yaml:"publish_interval" validate:"gt=0"`                     // Snapshot publish period.
	UDPEnabled       bool          `yaml:"udp_enabled"`                                          // Send snapshots over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address" validate:"required,hostname_port"` // Target for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval" validate:"gt=0"`                    // Interval between UDP packets.
	WSEnabled        bool          `yaml:"ws_enabled"`                                           // Serve snapshots over WebSocket.
	WSAddress        string        `yaml:"ws_address" validate:"required,hostname_port"`         // WebSocket listen address.
	LogEnabled       bool          `yaml:"log_enabled"`                                          // Log snapshots at debug level.
}

// validate is the shared validator instance for config validation.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report YAML keys instead of struct field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// Default returns the built-in configuration.
func Default() Config {
	tempoCfg := analysis.DefaultConfig()
	tempoCfg.Enabled = true

	return Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      false,
			InputChannels:   DefaultInputChannels,
			ChannelMode:     DefaultChannelMode,
			GateEnabled:     false,
			GateThreshold:   DefaultGateThreshold,
		},
		Tempo: TempoConfig{
			Config: tempoCfg,
			MaxFps: DefaultMaxFps,
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: DefaultRecordingDir,
			BitDepth:  DefaultBitDepth,
		},
		Transport: TransportConfig{
			PublishInterval:  DefaultPublishInterval,
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
			WSEnabled:        false,
			WSAddress:        DefaultWSAddress,
			LogEnabled:       false,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfig("config.yaml")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func findConfig(candidates ...string) string {
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Validate checks every field against its tag. All failures are reported.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, e := range verrs {
		errs = append(errs, fmt.Errorf("%s %s", fieldPath(e), formatValidationMessage(e)))
	}
	return errors.Join(errs...)
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ReplaceAll(ns, "Config.", "")
}

func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "hostname_port":
		return "must be a host:port address"
	default:
		return fmt.Sprintf("failed on '%s' validation", e.Tag())
	}
}

// LogLevelValue resolves the effective log level. Debug wins over LogLevel.
func (c *Config) LogLevelValue() applog.LogLevel {
	if c.Debug {
		return applog.LevelDebug
	}
	level, _ := applog.ParseLevel(c.LogLevel)
	return level
}

// ChannelSelection parses Audio.ChannelMode.
func (c *Config) ChannelSelection() analysis.ChannelMode {
	mode, err := analysis.ParseChannelMode(c.Audio.ChannelMode)
	if err != nil {
		return analysis.ChannelMix
	}
	return mode
}

// applyEnvOverrides applies ENV_ prefixed environment variables on top of the
// loaded values. Unparsable booleans and durations are ignored; an unknown
// tempo method is an error.
func (cfg *Config) applyEnvOverrides() error {
	// ENV_{...}
	// These are general overrides.

	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			applog.Infof("configuration: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
		applog.Infof("configuration: Overriding log_level from env: %s", cfg.LogLevel)
	}

	// ENV_TEMPO_{...}
	// These are specific to the analysis subsystem.

	// ENV_TEMPO_METHOD
	if val, ok := os.LookupEnv("ENV_TEMPO_METHOD"); ok {
		method, err := tempo.ParseMethod(val)
		if err != nil {
			return fmt.Errorf("ENV_TEMPO_METHOD: %w", err)
		}
		cfg.Tempo.Method = method
		applog.Infof("configuration: Overriding tempo.method from env: %s", method)
	}

	// ENV_UDP_{...} / ENV_WS_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			applog.Infof("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			applog.Infof("configuration: Overriding transport.udp_send_interval from env: %s", dur)
		}
	}
	// ENV_WS_ADDRESS
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		cfg.Transport.WSAddress = val
		cfg.Transport.WSEnabled = true
		applog.Infof("configuration: Overriding transport.ws_address from env: %s", val)
	}

	return nil
}
