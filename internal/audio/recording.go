// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	applog "audiolens/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// NewRecordingPath creates dir if needed and returns a timestamped WAV
// path inside it.
func NewRecordingPath(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recording directory: %w", err)
	}
	return filepath.Join(dir, "audiolens-"+now.Format("20060102-150405")+".wav"), nil
}

// StartRecording writes the raw interleaved input to a WAV file.
func (c *Capture) StartRecording(filename string) error {
	if atomic.LoadInt32(&c.isRecording) == 1 {
		return fmt.Errorf("already recording")
	}

	bitDepth := c.recording.BitDepth
	if bitDepth != 16 && bitDepth != 24 {
		return fmt.Errorf("unsupported recording bit depth: %d", bitDepth)
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	c.recMu.Lock()
	c.outputFile = file
	c.wavEncoder = wav.NewEncoder(file, int(c.config.SampleRate),
		bitDepth, c.config.InputChannels, 1)
	c.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: c.config.InputChannels,
			SampleRate:  int(c.config.SampleRate),
		},
		Data:           make([]int, c.config.FramesPerBuffer*c.config.InputChannels),
		SourceBitDepth: bitDepth,
	}
	c.sampleScale = float32(int(1)<<(bitDepth-1) - 1)
	c.recMu.Unlock()

	atomic.StoreInt32(&c.isRecording, 1)
	applog.Infof("Capture: Recording to %s (%d-bit)", filename, bitDepth)

	return nil
}

// writeRecording converts float samples to integers and encodes them.
func (c *Capture) writeRecording(samples []float32) {
	c.recMu.Lock()
	defer c.recMu.Unlock()
	if c.wavEncoder == nil {
		return
	}

	if cap(c.sampleBuf.Data) < len(samples) {
		c.sampleBuf.Data = make([]int, len(samples))
	}
	c.sampleBuf.Data = c.sampleBuf.Data[:len(samples)]
	for i, sample := range samples {
		sample = min(max(sample, -1), 1)
		c.sampleBuf.Data[i] = int(sample * c.sampleScale)
	}

	if err := c.wavEncoder.Write(c.sampleBuf); err != nil {
		applog.Errorf("Capture: Error writing to WAV file: %v", err)
	}
}

// StopRecording finalises the WAV file. It is a no-op when not recording.
func (c *Capture) StopRecording() error {
	if !atomic.CompareAndSwapInt32(&c.isRecording, 1, 0) {
		return nil
	}

	c.recMu.Lock()
	defer c.recMu.Unlock()

	if c.wavEncoder != nil {
		if err := c.wavEncoder.Close(); err != nil {
			return err
		}
		c.wavEncoder = nil
	}

	if c.outputFile != nil {
		if err := c.outputFile.Close(); err != nil {
			return err
		}
		c.outputFile = nil
	}

	return nil
}

// IsRecording reports whether input is being written to disk.
func (c *Capture) IsRecording() bool {
	return atomic.LoadInt32(&c.isRecording) == 1
}
