// SPDX-License-Identifier: MIT

// Package fft turns a block of time-domain samples into the decibel
// spectrum a frame source hands to the analysis engine: window, real FFT,
// magnitude scaling, temporal smoothing and dB encoding clamped to a fixed
// floor and ceiling.
package fft

import (
	"fmt"
	"math"
	"math/cmplx"

	"audiolens/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Options configures a Processor.
type Options struct {
	Window                WindowFunc
	SmoothingTimeConstant float64 // In [0, 1). 0 disables smoothing.
	MinDecibels           float64
	MaxDecibels           float64
}

// Pre-allocated buffers for FFT calculations.
type workspace struct {
	input     []float64    // Windowed input signal.
	fftOutput []complex128 // FFT complex results, fftSize/2+1 values.
	smoothed  []float64    // Smoothed linear magnitudes, one per output bin.
	window    []float64    // Pre-calculated window coefficients.
}

// Processor computes dB spectra of fixed size. It keeps the smoothing state
// between calls and is not safe for concurrent use; source.Analyser
// serialises access.
type Processor struct {
	fftCalculator *fourier.FFT
	fftSize       int
	opts          Options
	workspace     workspace
}

// NewProcessor creates a processor for blocks of fftSize samples. The
// output has fftSize/2 bins; the Nyquist bin is dropped.
func NewProcessor(fftSize int, opts Options) (*Processor, error) {
	if !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", fftSize)
	}
	if opts.SmoothingTimeConstant < 0 || opts.SmoothingTimeConstant >= 1 {
		return nil, fmt.Errorf("smoothing time constant must be within [0, 1), got %g", opts.SmoothingTimeConstant)
	}
	if !(opts.MinDecibels < opts.MaxDecibels) {
		return nil, fmt.Errorf("min decibels (%g) must be below max decibels (%g)", opts.MinDecibels, opts.MaxDecibels)
	}

	outputSize := fftSize/2 + 1
	return &Processor{
		fftCalculator: fourier.NewFFT(fftSize),
		fftSize:       fftSize,
		opts:          opts,
		workspace: workspace{
			input:     make([]float64, fftSize),
			fftOutput: make([]complex128, outputSize),
			smoothed:  make([]float64, outputSize),
			window:    windowCoefficients(fftSize, opts.Window),
		},
	}, nil
}

// Process writes the dB spectrum of samples into dst, which must hold
// BinCount values. samples shorter than the FFT size are zero-padded;
// extra samples are ignored. Every output value lies in
// [MinDecibels, MaxDecibels]; silence maps to MinDecibels.
func (p *Processor) Process(samples []float32, dst []float32) error {
	if len(dst) != p.BinCount() {
		return fmt.Errorf("destination slice length %d does not match bin count %d", len(dst), p.BinCount())
	}

	ws := &p.workspace
	for i := range p.fftSize {
		if i < len(samples) {
			ws.input[i] = float64(samples[i]) * ws.window[i]
		} else {
			ws.input[i] = 0
		}
	}

	p.fftCalculator.Coefficients(ws.fftOutput, ws.input)

	tau := p.opts.SmoothingTimeConstant
	scale := 1 / float64(p.fftSize)
	for i := range dst {
		magnitude := cmplx.Abs(ws.fftOutput[i]) * scale
		s := tau*ws.smoothed[i] + (1-tau)*magnitude
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		ws.smoothed[i] = s
		dst[i] = float32(p.toDecibels(s))
	}
	return nil
}

func (p *Processor) toDecibels(magnitude float64) float64 {
	if magnitude <= 0 {
		return p.opts.MinDecibels
	}
	db := 20 * math.Log10(magnitude)
	return math.Min(math.Max(db, p.opts.MinDecibels), p.opts.MaxDecibels)
}

// Reset clears the smoothing state.
func (p *Processor) Reset() {
	clear(p.workspace.smoothed)
}

// BinCount is the number of output bins, fftSize/2.
func (p *Processor) BinCount() int {
	return p.fftSize / 2
}

// FFTSize returns the configured FFT size (number of points).
func (p *Processor) FFTSize() int {
	return p.fftSize
}

// Options returns the configuration the processor was built with.
func (p *Processor) Options() Options {
	return p.opts
}

// FrequencyForBin returns the centre frequency of bin i at sampleRate,
// i*(sampleRate/2)/BinCount, or 0 outside [0, BinCount).
func (p *Processor) FrequencyForBin(i int, sampleRate float64) float64 {
	if i < 0 || i >= p.BinCount() {
		return 0
	}
	return float64(i) * sampleRate / float64(p.fftSize)
}
