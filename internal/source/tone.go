// SPDX-License-Identifier: MIT
package source

import (
	"fmt"
	"math"
	"sync"
	"time"

	"audiolens/internal/config"
)

// Relative levels of the 2nd and 3rd harmonics added to the tone.
var toneHarmonics = [...]float64{1, 0.5, 0.25}

// pulseDecay is the envelope decay rate in 1/s when pulsing is enabled.
const pulseDecay = 12.0

// ToneOptions configures a TonePlayer.
type ToneOptions struct {
	Frequency float64 // Fundamental in Hz.
	Amplitude float64 // Peak amplitude in (0, 1].
	PulseBPM  float64 // Decaying amplitude pulses per minute, 0 for a steady tone.
}

// ToneOptionsFromConfig extracts tone settings from the source section.
func ToneOptionsFromConfig(cfg config.SourceConfig) ToneOptions {
	return ToneOptions{
		Frequency: cfg.ToneFrequency,
		Amplitude: cfg.ToneAmplitude,
		PulseBPM:  cfg.TonePulseBPM,
	}
}

// TonePlayer synthesises a harmonic tone into an Analyser. Samples are
// generated lazily up to the wall-clock position each time a frame is
// pulled, so the analyser always holds the last fftSize samples in real time.
type TonePlayer struct {
	analyser *Analyser
	opts     ToneOptions

	mu      sync.Mutex
	now     func() time.Time
	start   time.Time
	written int64
	buf     []float32
}

var _ Source = (*TonePlayer)(nil)

// NewTonePlayer creates a player writing into a.
func NewTonePlayer(a *Analyser, opts ToneOptions) (*TonePlayer, error) {
	nyquist := a.SampleRate() / 2
	if opts.Frequency <= 0 || opts.Frequency >= nyquist {
		return nil, fmt.Errorf("tone frequency must be within (0, %g), got %g", nyquist, opts.Frequency)
	}
	if opts.Amplitude <= 0 || opts.Amplitude > 1 {
		return nil, fmt.Errorf("tone amplitude must be within (0, 1], got %g", opts.Amplitude)
	}
	if opts.PulseBPM < 0 {
		return nil, fmt.Errorf("tone pulse rate must not be negative, got %g", opts.PulseBPM)
	}
	p := &TonePlayer{
		analyser: a,
		opts:     opts,
		now:      time.Now,
		buf:      make([]float32, a.FFTSize()),
	}
	p.start = p.now()
	return p, nil
}

// Frame advances the tone to the current time and returns the analyser frame.
func (p *TonePlayer) Frame() (Frame, error) {
	p.advance()
	return p.analyser.Frame()
}

func (p *TonePlayer) advance() {
	p.mu.Lock()
	defer p.mu.Unlock()

	sr := p.analyser.SampleRate()
	due := int64(p.now().Sub(p.start).Seconds() * sr)
	// Older samples would be overwritten anyway.
	if horizon := due - int64(len(p.buf)); p.written < horizon {
		p.written = horizon
	}
	for p.written < due {
		n := min(int(due-p.written), len(p.buf))
		p.fill(p.buf[:n], p.written)
		p.analyser.Write(p.buf[:n])
		p.written += int64(n)
	}
}

// fill writes samples starting at absolute sample index offset.
func (p *TonePlayer) fill(dst []float32, offset int64) {
	sr := p.analyser.SampleRate()
	var norm float64
	for _, h := range toneHarmonics {
		norm += h
	}
	for i := range dst {
		t := float64(offset+int64(i)) / sr
		var v float64
		for k, h := range toneHarmonics {
			v += h * math.Sin(2*math.Pi*p.opts.Frequency*float64(k+1)*t)
		}
		dst[i] = float32(p.opts.Amplitude * p.envelope(t) * v / norm)
	}
}

func (p *TonePlayer) envelope(t float64) float64 {
	if p.opts.PulseBPM == 0 {
		return 1
	}
	period := 60 / p.opts.PulseBPM
	return math.Exp(-pulseDecay * math.Mod(t, period))
}

// Close closes the underlying analyser.
func (p *TonePlayer) Close() error {
	return p.analyser.Close()
}
