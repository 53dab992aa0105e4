// SPDX-License-Identifier: MIT
package cmd

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/spf13/cobra"

	"audiolens/internal/analysis"
	"audiolens/internal/config"
	applog "audiolens/internal/log"
	"audiolens/internal/render"
	"audiolens/internal/source"
)

// analysisLine is one JSON line of the analyze command.
type analysisLine struct {
	Time     float64           `json:"t"` // Seconds into the file.
	Snapshot analysis.Snapshot `json:"snapshot"`
}

func newAnalyzeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file>",
		Short: "Print one JSON snapshot per analysis interval of a file",
		Long: "Plays the file through the analyser as fast as possible and prints a\n" +
			"JSON line for every analysis interval of audio.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			return analyzeFile(cmd.OutOrStdout(), cfg, args[0])
		},
	}
}

func newRenderCommand(opts *options) *cobra.Command {
	var (
		output string
		at     time.Duration
	)
	c := &cobra.Command{
		Use:   "render <file>",
		Short: "Render the spectrum of a file at an offset to PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			if err := renderFile(cfg, args[0], output, at); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Spectrum saved to: %s\n", output)
			return nil
		},
	}
	c.Flags().StringVarP(&output, "output", "o", "spectrum.png", "Output PNG path")
	c.Flags().DurationVar(&at, "at", 0, "Offset into the file")
	return c
}

// analyzeFile writes a JSON line per interval. Samples are pushed straight
// into the analyser, so a file takes far less than its duration.
func analyzeFile(w io.Writer, cfg *config.Config, path string) error {
	fp, err := openFile(cfg, path, false)
	if err != nil {
		return err
	}
	defer fp.Close()

	clipRate := float64(fp.SampleRate())
	step := max(int(cfg.Analyzer.Interval.Seconds()*clipRate), 1)
	enc := json.NewEncoder(w)
	lines := 0
	for {
		more := fp.Advance(step)
		frame, err := fp.Frame()
		if err != nil {
			return err
		}
		line := analysisLine{
			Time:     fp.Position().Seconds(),
			Snapshot: analyzeFrame(frame),
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		lines++
		if !more {
			break
		}
	}
	applog.Debugf("Analyze: %d snapshots from %s", lines, path)
	return nil
}

func analyzeFrame(frame source.Frame) analysis.Snapshot {
	return analysis.Analyze(frame.Time, frame.Freq, frame.SampleRate,
		analysis.DecibelRange{Min: frame.MinDecibels, Max: frame.MaxDecibels})
}

// renderFile draws the frame at offset at into a PNG at output.
func renderFile(cfg *config.Config, path, output string, at time.Duration) error {
	if at < 0 {
		return fmt.Errorf("offset must not be negative, got %s", at)
	}
	fp, err := openFile(cfg, path, false)
	if err != nil {
		return err
	}
	defer fp.Close()

	samples := int(at.Seconds() * float64(fp.SampleRate()))
	samples = max(samples, cfg.Analyzer.FFTSize)
	fp.Advance(samples)

	frame, err := fp.Frame()
	if err != nil {
		return err
	}
	img := image.NewRGBA(image.Rect(0, 0, cfg.Render.Width, cfg.Render.Height))
	if err := render.Draw(img, frame, render.StyleFromConfig(cfg.Render)); err != nil {
		return err
	}
	return render.WritePNG(output, img)
}
