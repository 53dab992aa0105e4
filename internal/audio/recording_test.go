// SPDX-License-Identifier: MIT
package audio

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"audiolens/internal/config"
	"audiolens/internal/fft"
	"audiolens/internal/source"

	"github.com/go-audio/wav"
)

const (
	testSampleRate = 48000
	testFrameSize  = 256
	testChannels   = 2
)

var testBuffer = func() []float32 {
	buf := make([]float32, testFrameSize*testChannels)
	for i := range buf {
		buf[i] = float32(i%100)/100 - 0.5
	}
	return buf
}()

func newTestCapture(t testing.TB) *Capture {
	t.Helper()
	a, err := source.NewAnalyser(1024, testSampleRate, fft.Options{
		Window: fft.Blackman, MinDecibels: -90, MaxDecibels: -10,
	})
	if err != nil {
		t.Fatalf("NewAnalyser: %v", err)
	}
	return &Capture{
		config: config.SourceConfig{
			SampleRate:      testSampleRate,
			InputChannels:   testChannels,
			FramesPerBuffer: testFrameSize,
		},
		recording:   config.RecordingConfig{BitDepth: 16},
		analyser:    a,
		inputBuffer: make([]float32, testFrameSize*testChannels),
	}
}

func TestRecordingStartStopHotPath(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test_recording.wav")
	capture := newTestCapture(t)

	if err := capture.StartRecording(filename); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}

	if !capture.IsRecording() {
		t.Error("Capture should be in recording state")
	}
	if capture.outputFile == nil || capture.wavEncoder == nil || capture.sampleBuf == nil {
		t.Fatal("Recording resources should be initialized")
	}
	if capture.sampleBuf.Format.NumChannels != testChannels {
		t.Errorf("Buffer channels mismatch: got %d, want %d", capture.sampleBuf.Format.NumChannels, testChannels)
	}
	if len(capture.sampleBuf.Data) != testFrameSize*testChannels {
		t.Errorf("Buffer size mismatch: got %d, want %d", len(capture.sampleBuf.Data), testFrameSize*testChannels)
	}

	// Store reference to check file closure.
	outputFile := capture.outputFile

	if err := capture.StopRecording(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}
	if capture.IsRecording() {
		t.Error("Capture should not be in recording state after stopping")
	}
	if capture.outputFile != nil || capture.wavEncoder != nil {
		t.Error("Recording resources should be released after stopping")
	}
	if err := outputFile.Close(); err == nil {
		t.Error("File should already be closed")
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		t.Error("Recording file was not created")
	}
}

func TestRecordingWritesSamples(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "samples.wav")
	capture := newTestCapture(t)

	if err := capture.StartRecording(filename); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	for range 4 {
		capture.processInputStream(testBuffer)
	}
	if err := capture.StopRecording(); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	f, err := os.Open(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode recording: %v", err)
	}
	if int(d.NumChans) != testChannels || int(d.SampleRate) != testSampleRate || d.BitDepth != 16 {
		t.Errorf("header = %d ch, %d Hz, %d bit", d.NumChans, d.SampleRate, d.BitDepth)
	}
	if len(buf.Data) != 4*len(testBuffer) {
		t.Fatalf("recorded %d samples, want %d", len(buf.Data), 4*len(testBuffer))
	}
	if want := int(testBuffer[1] * 32767); buf.Data[1] != want {
		t.Errorf("sample 1 = %d, want %d", buf.Data[1], want)
	}
}

func TestRecordingErrorCases(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		desc          string
		filename      string
		isRecording   int32
		bitDepth      int
		expectError   bool
		errorContains string
	}{
		{"Already recording", "valid.wav", 1, 16, true, "already recording"},
		{"Invalid path", "/nonexistent/path/file.wav", 0, 16, true, ""},
		{"Unsupported depth", "depth.wav", 0, 12, true, "bit depth"},
		{"Valid path", "test.wav", 0, 24, false, ""},
		{"Stop when not recording", "", 0, 16, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			var err error
			capture := newTestCapture(t)
			capture.recording.BitDepth = tt.bitDepth

			atomic.StoreInt32(&capture.isRecording, tt.isRecording) // Set recording state

			if tt.desc == "Stop when not recording" {
				err = capture.StopRecording()
			} else {
				filename := tt.filename
				if !filepath.IsAbs(filename) {
					filename = filepath.Join(dir, tt.filename)
				}

				err = capture.StartRecording(filename)
				if err == nil {
					_ = capture.StopRecording()
				}
			}

			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if tt.errorContains != "" && err != nil {
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Error %q does not contain %q", err.Error(), tt.errorContains)
				}
			}
		})
	}
}

func TestNewRecordingPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "recordings")
	path, err := NewRecordingPath(dir, time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewRecordingPath: %v", err)
	}
	if want := filepath.Join(dir, "audiolens-20240309-140506.wav"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("directory not created: %v", err)
	}
}

func TestCloseCaptureWithRecording(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test_close.wav")
	capture := newTestCapture(t)

	if err := capture.StartRecording(filename); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	if err := capture.Close(); err != nil {
		t.Fatalf("Failed to close capture: %v", err)
	}
	if capture.IsRecording() {
		t.Error("Capture should not be in recording state after Close()")
	}
	if capture.outputFile != nil || capture.wavEncoder != nil {
		t.Error("Recording resources should be released after Close()")
	}
	if _, err := capture.Frame(); err != source.ErrClosed {
		t.Errorf("Frame after Close error = %v, want ErrClosed", err)
	}
}

func TestProcessInputStreamNoAllocsHotPath(t *testing.T) {
	capture := newTestCapture(t)
	capture.processInputStream(testBuffer)

	allocs := testing.AllocsPerRun(100, func() {
		capture.processInputStream(testBuffer)
	})
	if allocs > 0 {
		t.Errorf("Capture hot path allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func TestProcessInputStreamDownmix(t *testing.T) {
	capture := newTestCapture(t)
	stereo := make([]float32, testFrameSize*testChannels)
	for i := range testFrameSize {
		stereo[2*i] = 0.2
		stereo[2*i+1] = 0.4
	}
	capture.processInputStream(stereo)

	frame, err := capture.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	last := frame.Time[len(frame.Time)-1]
	if d := last - 0.3; d > 1e-6 || d < -1e-6 {
		t.Errorf("downmixed sample = %f, want 0.3", last)
	}
}

func BenchmarkRecordingStartStopHotPath(b *testing.B) {
	capture := newTestCapture(b)
	dir := b.TempDir()

	b.ReportAllocs()
	for b.Loop() {
		filename := filepath.Join(dir, "bench.wav")
		_ = os.Remove(filename) // Ensure clean state for each iteration
		_ = capture.StartRecording(filename)
		_ = capture.StopRecording()
	}
}

func BenchmarkProcessInputStreamHotPath(b *testing.B) {
	capture := newTestCapture(b)

	b.ReportAllocs()
	for b.Loop() {
		capture.processInputStream(testBuffer)
	}
}
