// SPDX-License-Identifier: MIT
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "audiolens/internal/log"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// Clip is a fully decoded mono recording with samples in [-1, 1].
type Clip struct {
	Name       string
	Samples    []float32
	SampleRate int
	Channels   int // Channel count before the downmix.
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Decode reads a WAV, MP3 or FLAC file chosen by extension.
func Decode(path string) (*Clip, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav", ".mp3", ".flac":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	var clip *Clip
	switch ext {
	case ".wav":
		clip, err = DecodeWAV(f)
	case ".mp3":
		clip, err = DecodeMP3(f)
	case ".flac":
		clip, err = DecodeFLAC(f)
	}
	if err != nil {
		return nil, err
	}

	clip.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	applog.Infof("Source: Loaded %s (%d Hz, %d channels, %s)",
		clip.Name, clip.SampleRate, clip.Channels, clip.Duration().Round(time.Millisecond))
	return clip, nil
}

// DecodeWAV decodes a PCM WAV stream.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("failed to decode WAV: invalid file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}

	channels := int(d.NumChans)
	depth := int(d.BitDepth)
	if channels <= 0 || depth <= 0 {
		return nil, fmt.Errorf("failed to decode WAV: %d channels at %d bits", channels, depth)
	}
	scale := float32(int64(1) << (depth - 1))
	offset := 0
	if depth == 8 {
		// 8-bit PCM is unsigned.
		offset = 128
	}

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range samples {
		var sum float32
		for ch := range channels {
			sum += float32(buf.Data[i*channels+ch]-offset) / scale
		}
		samples[i] = sum / float32(channels)
	}
	return &Clip{Samples: samples, SampleRate: int(d.SampleRate), Channels: channels}, nil
}

// DecodeMP3 decodes an MP3 stream. The decoder always yields 16-bit
// little-endian stereo.
func DecodeMP3(r io.Reader) (*Clip, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	const channels = 2
	frames := len(pcm) / (2 * channels)
	samples := make([]float32, frames)
	for i := range samples {
		left := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		right := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
		samples[i] = (float32(left) + float32(right)) / (2 * 32768)
	}
	return &Clip{Samples: samples, SampleRate: d.SampleRate(), Channels: channels}, nil
}

// DecodeFLAC decodes a FLAC stream frame by frame.
func DecodeFLAC(r io.Reader) (*Clip, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	channels := int(stream.Info.NChannels)
	depth := int(stream.Info.BitsPerSample)
	if channels <= 0 || depth <= 0 {
		return nil, fmt.Errorf("failed to decode FLAC: %d channels at %d bits", channels, depth)
	}
	scale := float32(int64(1)<<(depth-1)) * float32(channels)

	samples := make([]float32, 0, stream.Info.NSamples)
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode FLAC: %w", err)
		}
		for i := range int(frame.BlockSize) {
			var sum float32
			for ch := range channels {
				sum += float32(frame.Subframes[ch].Samples[i])
			}
			samples = append(samples, sum/scale)
		}
	}
	return &Clip{Samples: samples, SampleRate: int(stream.Info.SampleRate), Channels: channels}, nil
}
