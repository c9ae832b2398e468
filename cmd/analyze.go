// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"tempo/internal/analysis"
	"tempo/internal/audio"
	"tempo/internal/config"
	applog "tempo/internal/log"
)

// Analyze streams a WAV file through an analyzer and writes a snapshot
// timeline to w, one line per every of audio, then the final snapshot.
// The worker is drained after every post so no audio is dropped.
func Analyze(ctx context.Context, w io.Writer, cfg *config.Config, path string, every time.Duration) (analysis.Snapshot, error) {
	src, err := audio.OpenFile(path, cfg.Audio.FramesPerBuffer)
	if err != nil {
		return analysis.Snapshot{}, err
	}
	defer src.Close()

	if d, err := src.Duration(); err == nil {
		applog.Infof("Analyze: %s (%d ch @ %.0f Hz, %d-bit, %s)",
			path, src.NumChannels(), src.SampleRate(), src.BitDepth(), d.Round(time.Millisecond))
	}

	tempoCfg := cfg.Tempo.Config
	tempoCfg.Enabled = true
	analyzer := analysis.NewAnalyzer(tempoCfg, analysis.Options{Channel: cfg.ChannelSelection()})
	defer analyzer.Dispose()

	opts := analysis.FrameOptions{MaxFps: cfg.Tempo.MaxFps}
	step := every.Seconds()
	nextReport := step
	posted := analyzer.PostedFrames()

	fmt.Fprintf(w, "%8s  %7s  %5s  %5s  %s\n", "time", "bpm", "conf", "stab", "state")
	for {
		if err := ctx.Err(); err != nil {
			return analyzer.GetSnapshot(), err
		}
		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return analyzer.GetSnapshot(), err
		}
		analyzer.OnAudioFrame(frame, opts)

		if n := analyzer.PostedFrames(); n != posted {
			posted = n
			if err := analyzer.Drain(ctx); err != nil {
				return analyzer.GetSnapshot(), err
			}
		}

		for src.Position() >= nextReport {
			writeTimelineRow(w, nextReport, analyzer.GetSnapshot())
			nextReport += step
		}
	}

	if err := analyzer.Drain(ctx); err != nil {
		return analyzer.GetSnapshot(), err
	}
	final := analyzer.GetSnapshot()
	if final.OK {
		fmt.Fprintf(w, "\nFinal tempo: %.1f BPM (confidence %.2f, stability %.2f, %s)\n",
			final.BPM, final.Confidence01, final.Stability01, final.Method)
	} else {
		fmt.Fprintf(w, "\nNo stable tempo found (%s)\n", final.Method)
	}
	return final, nil
}

func writeTimelineRow(w io.Writer, atSec float64, snap analysis.Snapshot) {
	state := "-"
	switch {
	case snap.LastError != "":
		state = "error: " + snap.LastError
	case snap.OK:
		state = "ok"
	}
	bpm := math.NaN()
	if snap.OK {
		bpm = snap.BPM
	}
	fmt.Fprintf(w, "%7.2fs  %7.2f  %5.2f  %5.2f  %s\n", atSec, bpm, snap.Confidence01, snap.Stability01, state)
}
