// SPDX-License-Identifier: MIT

/*
Package audio captures live input through PortAudio into a source.Analyser.

Thread Safety:
  - The stream callback only downmixes into the analyser and, while
    recording, converts into a pre-allocated buffer
  - Recording state is an atomic flag; the encoder is guarded by a mutex
    so StopRecording never races an in-flight callback
*/
package audio

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"audiolens/internal/config"
	applog "audiolens/internal/log"
	"audiolens/internal/source"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
)

// Capture is a live input source.
type Capture struct {
	config    config.SourceConfig
	recording config.RecordingConfig
	analyser  *source.Analyser

	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputBuffer  []float32
	inputStream  *portaudio.Stream

	isRecording int32 // Atomic flag for thread-safe state
	recMu       sync.Mutex
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer // Reusable buffer for format conversion
	sampleScale float32

	closeOnce sync.Once
}

var _ source.Source = (*Capture)(nil)

// NewCapture resolves the configured input device. The analyser must run at
// cfg.SampleRate.
func NewCapture(cfg config.SourceConfig, rec config.RecordingConfig, a *source.Analyser) (*Capture, error) {
	if a.SampleRate() != cfg.SampleRate {
		return nil, fmt.Errorf("analyser sample rate %g does not match capture sample rate %g", a.SampleRate(), cfg.SampleRate)
	}
	inputDevice, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}

	c := &Capture{
		config:      cfg,
		recording:   rec,
		analyser:    a,
		inputDevice: inputDevice,
		inputBuffer: make([]float32, cfg.FramesPerBuffer*cfg.InputChannels),
	}
	if cfg.LowLatency {
		c.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		c.inputLatency = inputDevice.DefaultHighInputLatency
	}
	return c, nil
}

// Start opens and starts the input stream.
func (c *Capture) Start() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: c.config.InputChannels,
			Device:   c.inputDevice,
			Latency:  c.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: c.config.FramesPerBuffer,
		SampleRate:      c.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, c.processInputStream)
	if err != nil {
		return err
	}
	c.inputStream = stream

	if err := c.inputStream.Start(); err != nil {
		c.inputStream.Close()
		c.inputStream = nil
		return err
	}

	applog.Infof("Capture: Streaming from %s (%d ch @ %.0f Hz, latency %s)",
		c.inputDevice.Name, c.config.InputChannels, c.config.SampleRate, c.inputLatency)
	return nil
}

// Stop stops and closes the input stream if one is open.
func (c *Capture) Stop() error {
	if c.inputStream == nil {
		return nil
	}
	if err := c.inputStream.Stop(); err != nil {
		return err
	}
	if err := c.inputStream.Close(); err != nil {
		return err
	}
	c.inputStream = nil
	return nil
}

// processInputStream is the PortAudio callback. It uses pre-allocated
// buffers only.
func (c *Capture) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	n := copy(c.inputBuffer, in)
	c.analyser.WriteInterleaved(c.inputBuffer[:n], c.config.InputChannels)

	if atomic.LoadInt32(&c.isRecording) == 1 {
		c.writeRecording(c.inputBuffer[:n])
	}
}

// Frame returns the analyser frame for the most recent input.
func (c *Capture) Frame() (source.Frame, error) {
	return c.analyser.Frame()
}

// Close stops recording and the stream, then closes the analyser.
func (c *Capture) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if recErr := c.StopRecording(); recErr != nil {
			err = recErr
		}
		if streamErr := c.Stop(); streamErr != nil && err == nil {
			err = streamErr
		}
		_ = c.analyser.Close()
	})
	return err
}
