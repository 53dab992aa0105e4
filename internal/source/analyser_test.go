// SPDX-License-Identifier: MIT
package source

import (
	"errors"
	"testing"

	"audiolens/internal/config"
	"audiolens/internal/fft"
	"audiolens/pkg/utils"
)

const (
	testFFTSize    = 256
	testSampleRate = 8000
)

var testOptions = fft.Options{
	Window:      fft.Blackman,
	MinDecibels: -90,
	MaxDecibels: -10,
}

func newTestAnalyser(t testing.TB) *Analyser {
	t.Helper()
	a, err := NewAnalyser(testFFTSize, testSampleRate, testOptions)
	if err != nil {
		t.Fatalf("NewAnalyser: %v", err)
	}
	return a
}

func ramp(n int, start float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)
	}
	return out
}

func TestAnalyser_FrameShape(t *testing.T) {
	a := newTestAnalyser(t)
	frame, err := a.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if len(frame.Time) != testFFTSize/2 || len(frame.Freq) != testFFTSize/2 {
		t.Fatalf("buffer lengths = %d/%d, want %d", len(frame.Time), len(frame.Freq), testFFTSize/2)
	}
	if frame.SampleRate != testSampleRate || frame.MinDecibels != -90 || frame.MaxDecibels != -10 {
		t.Errorf("frame metadata = %+v", frame)
	}
	for i, v := range frame.Freq {
		if v != -90 {
			t.Fatalf("silent bin %d = %f, want -90", i, v)
		}
	}
}

func TestAnalyser_TimeBufferIsMostRecent(t *testing.T) {
	tests := []struct {
		name   string
		writes []int
	}{
		{"Single large write", []int{1000}},
		{"Wrapping writes", []int{100, 100, 100, 37}},
		{"Exact size", []int{testFFTSize}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyser(t)
			var total int
			for _, n := range tt.writes {
				a.Write(ramp(n, float32(total)))
				total += n
			}
			frame, err := a.Frame()
			if err != nil {
				t.Fatalf("Frame: %v", err)
			}
			first := float32(total - testFFTSize/2)
			for i, v := range frame.Time {
				if v != first+float32(i) {
					t.Fatalf("Time[%d] = %f, want %f", i, v, first+float32(i))
				}
			}
		})
	}
}

func TestAnalyser_FreshBuffers(t *testing.T) {
	a := newTestAnalyser(t)
	a.Write(utils.GenerateSineWave(testFFTSize, testSampleRate, 1000, 1))

	first, _ := a.Frame()
	want := first.Time[0]
	first.Time[0] = 42
	first.Freq[0] = 42

	second, _ := a.Frame()
	if second.Time[0] != want {
		t.Errorf("Time[0] = %f after caller mutation, want %f", second.Time[0], want)
	}
	if &first.Freq[0] == &second.Freq[0] {
		t.Error("Frame reused the frequency buffer")
	}
}

func TestAnalyser_SinePeak(t *testing.T) {
	a := newTestAnalyser(t)
	// 1000 Hz at 8000 Hz with 256 points is bin 32.
	a.Write(utils.GenerateSineWave(testFFTSize, testSampleRate, 1000, 1))
	frame, err := a.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if peak := utils.FindPeakBin(frame.Freq, 1, frame.BinCount()-1); peak != 32 {
		t.Errorf("peak bin = %d, want 32", peak)
	}
}

func TestAnalyser_WriteInterleaved(t *testing.T) {
	a := newTestAnalyser(t)
	stereo := make([]float32, 2*testFFTSize)
	for i := range testFFTSize {
		stereo[2*i] = 0.5
		stereo[2*i+1] = -0.25
	}
	a.WriteInterleaved(stereo, 2)

	frame, _ := a.Frame()
	for i, v := range frame.Time {
		if v != 0.125 {
			t.Fatalf("Time[%d] = %f, want 0.125", i, v)
		}
	}
}

func TestAnalyser_Close(t *testing.T) {
	a := newTestAnalyser(t)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	a.Write(ramp(10, 0))
	if _, err := a.Frame(); !errors.Is(err, ErrClosed) {
		t.Errorf("Frame after Close error = %v, want ErrClosed", err)
	}
}

func TestAnalyser_Reset(t *testing.T) {
	a := newTestAnalyser(t)
	a.Write(utils.GenerateSineWave(testFFTSize, testSampleRate, 1000, 1))
	a.Reset()
	frame, _ := a.Frame()
	for i, v := range frame.Time {
		if v != 0 {
			t.Fatalf("Time[%d] = %f after Reset, want 0", i, v)
		}
	}
}

func TestNewAnalyserFromConfig(t *testing.T) {
	cfg := config.Default().Analyzer
	a, err := NewAnalyserFromConfig(cfg, 44100)
	if err != nil {
		t.Fatalf("NewAnalyserFromConfig: %v", err)
	}
	if a.FFTSize() != cfg.FFTSize || a.BinCount() != cfg.BinCount() {
		t.Errorf("sizes = %d/%d, want %d/%d", a.FFTSize(), a.BinCount(), cfg.FFTSize, cfg.BinCount())
	}

	cfg.Window = "kaiser"
	if _, err := NewAnalyserFromConfig(cfg, 44100); err == nil {
		t.Error("expected error for unknown window")
	}
	if _, err := NewAnalyser(testFFTSize, 0, testOptions); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func BenchmarkAnalyserFrame(b *testing.B) {
	a := newTestAnalyser(b)
	a.Write(utils.GenerateComplexWave(testFFTSize, testSampleRate))

	b.ReportAllocs()
	for b.Loop() {
		_, _ = a.Frame()
	}
}
