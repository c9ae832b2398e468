// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"time"

	"tempo/internal/analysis"
	"tempo/internal/audio"
	applog "tempo/internal/log"
	"tempo/internal/tui"
)

const monitorInterval = 33 * time.Millisecond

// Live captures from the configured input device and tracks its tempo
// until ctx is done or the monitor is closed.
func Live(ctx context.Context, opts *Options) error {
	cfg := opts.Config

	analyzer := analysis.NewAnalyzer(cfg.Tempo.Config, analysis.Options{Channel: cfg.ChannelSelection()})
	defer analyzer.Dispose()

	outputs, err := NewOutputs(cfg.Transport, analyzer)
	if err != nil {
		return err
	}
	defer outputs.Close()

	engine, err := audio.NewEngine(cfg, analyzer)
	if err != nil {
		return err
	}

	// The first call to StartInputStream begins the callback: from here on
	// frames flow into the analyzer on the audio thread.
	if err := engine.StartInputStream(); err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			applog.Errorf("Live: Error closing audio engine: %v", err)
		}
	}()

	var recording string
	if cfg.Recording.Enabled {
		recording = audio.RecordingFilename(cfg.Recording.OutputDir, time.Now())
		if err := engine.StartRecording(recording); err != nil {
			return err
		}
	}

	outputs.Start()

	if opts.Monitor {
		err = tui.RunMonitor(analyzer, monitorInterval)
	} else {
		applog.Infof("Live: Tracking tempo (%s), press Ctrl+C to stop", cfg.Tempo.Method)
		<-ctx.Done()
	}

	if recording != "" {
		if stopErr := engine.StopRecording(); stopErr != nil {
			applog.Errorf("Live: Error stopping recording: %v", stopErr)
		} else {
			fmt.Printf("\nRecording saved to: %s\n", recording)
		}
	}
	if gated := engine.GatedFrames(); gated > 0 {
		applog.Debugf("Live: Gate silenced %d buffers", gated)
	}
	return err
}
