// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tempo/internal/config"
	applog "tempo/internal/log"
	"tempo/internal/tempo"
	"tempo/pkg/build"
)

// Commands understood by main.
const (
	CommandLive    = ""
	CommandList    = "list"
	CommandAnalyze = "analyze"
)

// Options is the parsed command line: the command to run and the effective
// configuration.
type Options struct {
	Command     string
	Interactive bool          // list: pick a device with the TUI
	File        string        // analyze: WAV file
	Every       time.Duration // analyze: timeline spacing in audio time
	Monitor     bool          // live: show the tempo meter
	Config      *config.Config
}

// flagValues holds flag targets before they are applied to the config.
type flagValues struct {
	configPath      string
	deviceID        int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	channelMode     string
	gate            float64
	method          string
	record          bool
	outputDir       string
	wsAddress       string
	udpAddress      string
	verbose         bool
}

// ParseArgs parses args (without the program name), loads the config file
// and applies flag overrides.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	flags := &flagValues{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Real-time tempo and beat tracking",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(flags.configPath)
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			options.Config = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandLive
			return nil
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandList
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&options.Interactive, "interactive", "i", false,
		"Pick the input device and sample rate interactively")
	rootCmd.AddCommand(listCmd)

	// Analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Track the tempo of a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if options.Every <= 0 {
				return fmt.Errorf("--every must be positive, got %s", options.Every)
			}
			options.Command = CommandAnalyze
			options.File = args[0]
			return nil
		},
	}
	analyzeCmd.Flags().DurationVarP(&options.Every, "every", "e", time.Second,
		"Timeline spacing, measured in audio time")
	rootCmd.AddCommand(analyzeCmd)

	rootCmd.Flags().BoolVarP(&options.Monitor, "monitor", "m", false,
		"Show the live tempo meter")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "",
		"Path to the YAML configuration file (default: ./config.yaml if present)")

	// Audio Device Configuration
	pf.IntVarP(&flags.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&flags.channels, "channels", "c", config.DefaultInputChannels,
		"Number of channels to capture (1=mono, 2=stereo)")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")
	pf.StringVar(&flags.channelMode, "channel-mode", config.DefaultChannelMode,
		"Channel fed to the analyzer: mix, left or right")
	pf.Float64Var(&flags.gate, "gate", 0,
		"Enable the noise gate with this peak threshold (0-1)")

	// Tempo Configuration
	pf.StringVar(&flags.method, "method", tempo.MethodSpectral.String(),
		"Tempo method: spectral or streaming")

	// Recording Configuration
	pf.BoolVarP(&flags.record, "record", "r", false,
		"Record audio from the specified input device")
	pf.StringVarP(&flags.outputDir, "output", "o", config.DefaultRecordingDir,
		"Directory for recordings, named recording-DD-MM-YYYY-HHMMSS.wav")

	// Transport Configuration
	pf.StringVar(&flags.wsAddress, "ws", "",
		"Serve snapshots over WebSocket on this address")
	pf.StringVar(&flags.udpAddress, "udp", "",
		"Send snapshot packets over UDP to this address")

	// Debug Configuration
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	// --help and --version run no command and load no config.
	if options.Config == nil {
		return nil, nil
	}
	return options, nil
}

// apply copies the flags the user set onto cfg. Unset flags leave the
// file and environment values alone.
func (f *flagValues) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("device") {
		cfg.Audio.InputDevice = f.deviceID
	}
	if changed("channels") {
		cfg.Audio.InputChannels = f.channels
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if changed("channel-mode") {
		cfg.Audio.ChannelMode = f.channelMode
	}
	if changed("gate") {
		cfg.Audio.GateEnabled = f.gate > 0
		cfg.Audio.GateThreshold = f.gate
	}
	if changed("method") {
		method, err := tempo.ParseMethod(f.method)
		if err != nil {
			return err
		}
		cfg.Tempo.Method = method
	}
	if changed("record") {
		cfg.Recording.Enabled = f.record
	}
	if changed("output") {
		cfg.Recording.OutputDir = f.outputDir
	}
	if changed("ws") {
		cfg.Transport.WSEnabled = true
		cfg.Transport.WSAddress = f.wsAddress
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = f.udpAddress
	}
	if changed("verbose") {
		cfg.Debug = f.verbose
	}

	applog.Debugf("CLI: Effective configuration: %+v", *cfg)
	return nil
}
