// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"gopkg.in/yaml.v3"

	"tempo/cmd"
	"tempo/internal/audio"
	"tempo/internal/config"
	applog "tempo/internal/log"
	"tempo/internal/tui"
	"tempo/pkg/build"
)

// main is the entry point for the tempo tracker.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Initialize PortAudio
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Start the analyzer worker and snapshot transports
//   - Begin input stream processing
//   - Start recording if enabled
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop recording if active
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds run without ldflags and keep "unknown" metadata.
	if err := build.Initialize(); err != nil {
		applog.Debugf("main: %v", err)
	}

	options, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if options == nil {
		return // --help or --version
	}
	applog.SetLevel(options.Config.LogLevelValue())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Offline analysis needs neither PortAudio nor a real-time scheduler.
	if options.Command == cmd.CommandAnalyze {
		if _, err := cmd.Analyze(ctx, os.Stdout, options.Config, options.File, options.Every); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	if err := run(ctx, options); err != nil {
		applog.Errorf("%v", err)
		os.Exit(1)
	}
}

// run executes the commands that need PortAudio.
func run(ctx context.Context, options *cmd.Options) error {
	// One thread for the audio callback, one for the worker, UI and I/O.
	runtime.GOMAXPROCS(2)

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	if options.Command == cmd.CommandList {
		return listDevices(options)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	return cmd.Live(ctx, options)

	// ==================== SHUTDOWN PHASE (Cold Path) ====================
	// Deferred in Live: recording, engine, transports, analyzer.
}

// listDevices prints the device list, or runs the picker and prints the
// audio config section for the chosen device.
func listDevices(options *cmd.Options) error {
	if !options.Interactive {
		return audio.ListDevices(os.Stdout)
	}

	choice, ok, err := tui.RunDevicePicker(nil)
	if err != nil || !ok {
		return err
	}

	section := struct {
		Audio config.AudioConfig `yaml:"audio"`
	}{Audio: options.Config.Audio}
	section.Audio.InputDevice = choice.Device.ID
	section.Audio.SampleRate = choice.SampleRate
	section.Audio.InputChannels = max(min(choice.Device.MaxInputChannels, 2), 1)

	out, err := yaml.Marshal(section)
	if err != nil {
		return err
	}
	fmt.Printf("# Add to config.yaml\n%s", out)
	return nil
}
