// SPDX-License-Identifier: MIT
package source

import (
	"errors"
	"testing"
	"time"
)

func newTestClip(n int) *Clip {
	return &Clip{Name: "test", Samples: ramp(n, 1), SampleRate: testSampleRate, Channels: 1}
}

func TestNewFilePlayer_Validation(t *testing.T) {
	a := newTestAnalyser(t)
	tests := []struct {
		name  string
		clip  *Clip
		block int
	}{
		{"Nil clip", nil, 64},
		{"Empty clip", &Clip{SampleRate: testSampleRate}, 64},
		{"Rate mismatch", &Clip{Samples: ramp(10, 0), SampleRate: 44100}, 64},
		{"Zero block", newTestClip(10), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFilePlayer(tt.clip, a, tt.block, false); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFilePlayer_AdvanceToEnd(t *testing.T) {
	p, err := NewFilePlayer(newTestClip(300), newTestAnalyser(t), 128, false)
	if err != nil {
		t.Fatalf("NewFilePlayer: %v", err)
	}

	if !p.Advance(128) || !p.Advance(128) {
		t.Fatal("Advance reported end too early")
	}
	select {
	case <-p.Done():
		t.Fatal("Done closed before end of clip")
	default:
	}
	if p.Advance(128) {
		t.Error("Advance past the end should report false")
	}
	select {
	case <-p.Done():
	default:
		t.Fatal("Done not closed at end of clip")
	}

	frame, _ := p.Frame()
	// The last sample of ramp(300, 1) is 300.
	if last := frame.Time[len(frame.Time)-1]; last != 300 {
		t.Errorf("last sample = %f, want 300", last)
	}
	if got := p.Position(); got != time.Duration(300)*time.Second/testSampleRate {
		t.Errorf("Position = %s", got)
	}
	if p.SampleRate() != testSampleRate {
		t.Errorf("SampleRate = %d, want %d", p.SampleRate(), testSampleRate)
	}
}

func TestFilePlayer_Loop(t *testing.T) {
	p, err := NewFilePlayer(newTestClip(100), newTestAnalyser(t), 64, true)
	if err != nil {
		t.Fatalf("NewFilePlayer: %v", err)
	}
	for range 10 {
		if !p.Advance(64) {
			t.Fatal("looping player reported end")
		}
	}
	// 640 samples played: six full passes plus 40.
	frame, _ := p.Frame()
	if last := frame.Time[len(frame.Time)-1]; last != 40 {
		t.Errorf("last sample = %f, want 40", last)
	}
}

func TestFilePlayer_PumpReachesDone(t *testing.T) {
	// 400 samples at 8 kHz play in 50 ms.
	p, err := NewFilePlayer(newTestClip(400), newTestAnalyser(t), 100, false)
	if err != nil {
		t.Fatalf("NewFilePlayer: %v", err)
	}
	p.Start()
	p.Start()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Done")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := p.Frame(); !errors.Is(err, ErrClosed) {
		t.Errorf("Frame after Close error = %v, want ErrClosed", err)
	}
}

func TestFilePlayer_CloseStopsPump(t *testing.T) {
	p, err := NewFilePlayer(newTestClip(testSampleRate*60), newTestAnalyser(t), 100, false)
	if err != nil {
		t.Fatalf("NewFilePlayer: %v", err)
	}
	p.Start()

	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the pump")
	}
}
