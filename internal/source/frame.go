// SPDX-License-Identifier: MIT

// Package source supplies the spectral frames the analysis engine samples:
// a ring-buffered Analyser fed by a producer, plus tone and file players
// that feed one at real-time pace.
package source

import (
	"errors"
	"fmt"
	"io"

	"audiolens/internal/config"
	"audiolens/internal/fft"
)

var (
	// ErrClosed is returned by Frame once the source has been closed.
	ErrClosed = errors.New("source: closed")
	// ErrUnsupportedFormat is returned by Decode for unknown file types.
	ErrUnsupportedFormat = errors.New("source: unsupported audio format")
)

// Frame is one pull of the time and frequency buffers. Both buffers have
// the same length, the analyser's frequency bin count. Freq holds decibel
// values within [MinDecibels, MaxDecibels].
type Frame struct {
	Time        []float32
	Freq        []float32
	SampleRate  float64
	MinDecibels float64
	MaxDecibels float64
}

// BinCount returns the length of the frequency buffer.
func (f Frame) BinCount() int {
	return len(f.Freq)
}

// FrameSource is anything that can hand out a fresh Frame on demand.
// Returned buffers are owned by the caller.
type FrameSource interface {
	Frame() (Frame, error)
}

// Source is a FrameSource that holds resources.
type Source interface {
	FrameSource
	io.Closer
}

// OptionsFromConfig converts analyser settings to processor options.
func OptionsFromConfig(cfg config.AnalyzerConfig) (fft.Options, error) {
	windowType, err := fft.ParseWindowFunc(cfg.Window)
	if err != nil {
		return fft.Options{}, fmt.Errorf("analyzer.window: %w", err)
	}
	return fft.Options{
		Window:                windowType,
		SmoothingTimeConstant: cfg.SmoothingTimeConstant,
		MinDecibels:           cfg.MinDecibels,
		MaxDecibels:           cfg.MaxDecibels,
	}, nil
}
