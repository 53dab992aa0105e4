// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"

	"audiolens/internal/audio"
	"audiolens/internal/config"
	"audiolens/internal/engine"
	applog "audiolens/internal/log"
	"audiolens/internal/source"
)

// liveSource is a started frame source. done is closed when a non-looping
// file has finished and is nil for endless sources.
type liveSource struct {
	source.Source
	done    <-chan struct{}
	cleanup func() error
}

func (s *liveSource) Close() error {
	err := s.Source.Close()
	if s.cleanup != nil {
		if cErr := s.cleanup(); err == nil {
			err = cErr
		}
	}
	return err
}

// openSource builds and starts the configured source. Failing to obtain an
// input device is reported as engine.ErrSourceUnavailable.
func openSource(cfg *config.Config) (*liveSource, error) {
	switch cfg.Source.Kind {
	case config.SourceTone:
		a, err := source.NewAnalyserFromConfig(cfg.Analyzer, cfg.Source.SampleRate)
		if err != nil {
			return nil, err
		}
		tone, err := source.NewTonePlayer(a, source.ToneOptionsFromConfig(cfg.Source))
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		applog.Infof("Source: Tone %.1f Hz @ %.0f Hz", cfg.Source.ToneFrequency, cfg.Source.SampleRate)
		return &liveSource{Source: tone}, nil

	case config.SourceFile:
		fp, err := openFile(cfg, cfg.Source.File, cfg.Source.Loop)
		if err != nil {
			return nil, err
		}
		fp.Start()
		ls := &liveSource{Source: fp}
		if !cfg.Source.Loop {
			ls.done = fp.Done()
		}
		return ls, nil

	case config.SourceInput:
		return openInput(cfg)

	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

// openFile decodes path into a player that has not been started.
func openFile(cfg *config.Config, path string, loop bool) (*source.FilePlayer, error) {
	clip, err := source.Decode(path)
	if err != nil {
		return nil, err
	}
	a, err := source.NewAnalyserFromConfig(cfg.Analyzer, float64(clip.SampleRate))
	if err != nil {
		return nil, err
	}
	fp, err := source.NewFilePlayer(clip, a, cfg.Source.FramesPerBuffer, loop)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return fp, nil
}

func openInput(cfg *config.Config) (*liveSource, error) {
	if err := audio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrSourceUnavailable, err)
	}
	fail := func(err error) (*liveSource, error) {
		_ = audio.Terminate()
		return nil, fmt.Errorf("%w: %v", engine.ErrSourceUnavailable, err)
	}

	a, err := source.NewAnalyserFromConfig(cfg.Analyzer, cfg.Source.SampleRate)
	if err != nil {
		_ = audio.Terminate()
		return nil, err
	}
	capture, err := audio.NewCapture(cfg.Source, cfg.Recording, a)
	if err != nil {
		_ = a.Close()
		return fail(err)
	}
	if err := capture.Start(); err != nil {
		_ = capture.Close()
		return fail(err)
	}

	if cfg.Recording.Enabled {
		path, err := audio.NewRecordingPath(cfg.Recording.OutputDir, timeNow())
		if err == nil {
			err = capture.StartRecording(path)
		}
		if err != nil {
			_ = capture.Close()
			_ = audio.Terminate()
			return nil, fmt.Errorf("start recording: %w", err)
		}
	}
	return &liveSource{Source: capture, cleanup: audio.Terminate}, nil
}

func listDevices(w io.Writer) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices(w)
}
