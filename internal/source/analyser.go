// SPDX-License-Identifier: MIT
package source

import (
	"fmt"
	"sync"

	"audiolens/internal/config"
	"audiolens/internal/fft"
)

// Analyser keeps the most recent fftSize mono samples written by a producer
// and turns them into a Frame on request. It is safe for one producer and
// any number of readers.
type Analyser struct {
	mu         sync.Mutex
	processor  *fft.Processor
	sampleRate float64
	ring       []float32 // Last fftSize samples, oldest at pos.
	pos        int
	window     []float32 // Linearised ring, reused between frames.
	mono       []float32 // Downmix scratch for WriteInterleaved.
	closed     bool
}

var _ Source = (*Analyser)(nil)

// NewAnalyser creates an analyser for the given FFT size and sample rate.
func NewAnalyser(fftSize int, sampleRate float64, opts fft.Options) (*Analyser, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}
	processor, err := fft.NewProcessor(fftSize, opts)
	if err != nil {
		return nil, err
	}
	return &Analyser{
		processor:  processor,
		sampleRate: sampleRate,
		ring:       make([]float32, fftSize),
		window:     make([]float32, fftSize),
	}, nil
}

// NewAnalyserFromConfig builds an analyser from the analyzer section.
func NewAnalyserFromConfig(cfg config.AnalyzerConfig, sampleRate float64) (*Analyser, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewAnalyser(cfg.FFTSize, sampleRate, opts)
}

// Write appends mono samples. Writes after Close are dropped.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.writeLocked(samples)
}

func (a *Analyser) writeLocked(samples []float32) {
	n := len(a.ring)
	if len(samples) >= n {
		copy(a.ring, samples[len(samples)-n:])
		a.pos = 0
		return
	}
	copied := copy(a.ring[a.pos:], samples)
	if copied < len(samples) {
		copy(a.ring, samples[copied:])
	}
	a.pos = (a.pos + len(samples)) % n
}

// WriteInterleaved averages interleaved frames of the given channel count
// down to mono and appends them.
func (a *Analyser) WriteInterleaved(samples []float32, channels int) {
	if channels <= 1 {
		a.Write(samples)
		return
	}
	frames := len(samples) / channels

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if cap(a.mono) < frames {
		a.mono = make([]float32, frames)
	}
	mono := a.mono[:frames]
	gain := 1 / float32(channels)
	for i := range mono {
		var sum float32
		for ch := range channels {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum * gain
	}
	a.writeLocked(mono)
}

// Frame returns the current time and frequency buffers. The time buffer is
// the most recent BinCount samples; the frequency buffer is the smoothed dB
// spectrum of the last FFTSize samples.
func (a *Analyser) Frame() (Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return Frame{}, ErrClosed
	}

	n := len(a.ring)
	copy(a.window, a.ring[a.pos:])
	copy(a.window[n-a.pos:], a.ring[:a.pos])

	bins := a.processor.BinCount()
	freq := make([]float32, bins)
	if err := a.processor.Process(a.window, freq); err != nil {
		return Frame{}, err
	}
	timeData := make([]float32, bins)
	copy(timeData, a.window[n-bins:])

	opts := a.processor.Options()
	return Frame{
		Time:        timeData,
		Freq:        freq,
		SampleRate:  a.sampleRate,
		MinDecibels: opts.MinDecibels,
		MaxDecibels: opts.MaxDecibels,
	}, nil
}

// Reset clears the sample history and smoothing state.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	a.pos = 0
	a.processor.Reset()
}

// SampleRate returns the rate the samples are written at.
func (a *Analyser) SampleRate() float64 {
	return a.sampleRate
}

// FFTSize returns the number of samples the spectrum covers.
func (a *Analyser) FFTSize() int {
	return a.processor.FFTSize()
}

// BinCount returns the length of both frame buffers.
func (a *Analyser) BinCount() int {
	return a.processor.BinCount()
}

// Close marks the analyser closed. It is safe to call more than once.
func (a *Analyser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}
