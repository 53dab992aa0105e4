// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"audiolens/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Analyser and source limits.
const (
	MinDeviceID   = -1 // -1 selects the system default input device.
	MinFFTSize    = 256
	MaxFFTSize    = 32768
	MinSampleRate = 8000
	MaxSampleRate = 192000
)

// Source kinds.
const (
	SourceInput = "input"
	SourceFile  = "file"
	SourceTone  = "tone"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (verbose logging).
	LogLevel  string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`  // Spectral analysis and scheduling settings.
	Source    SourceConfig    `yaml:"source"`    // Where frames come from.
	Render    RenderConfig    `yaml:"render"`    // Spectrum plot settings.
	Transport TransportConfig `yaml:"transport"` // Snapshot consumers on the network.
	Recording RecordingConfig `yaml:"recording"` // Recording of live input.
}

// AnalyzerConfig is fixed for the lifetime of a connection. Changing FFTSize
// requires a new connection because the source buffers change length.
type AnalyzerConfig struct {
	FFTSize               int           `yaml:"fft_size"`                // Power of two, >= 256. Bin count is FFTSize/2.
	SmoothingTimeConstant float64       `yaml:"smoothing_time_constant"` // Temporal smoothing of magnitudes in [0, 1).
	MinDecibels           float64       `yaml:"min_decibels"`            // Floor of the dB encoding.
	MaxDecibels           float64       `yaml:"max_decibels"`            // Ceiling of the dB encoding.
	Interval              time.Duration `yaml:"interval"`                // Analysis tick period.
	RenderFPS             int           `yaml:"render_fps"`              // Display refresh rate used when no host clock is attached.
	Window                string        `yaml:"window"`                  // FFT window name ("Blackman", "Hann", ...).
}

// SourceConfig selects and parameterises the frame source.
type SourceConfig struct {
	Kind            string  `yaml:"kind"`              // "input", "file" or "tone".
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	InputChannels   int     `yaml:"input_channels"`    // Channels captured before the mono downmix.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency.
	SampleRate      float64 `yaml:"sample_rate"`       // Capture/tone sample rate in Hz. Files use their own rate.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames written to the analyser per block.
	File            string  `yaml:"file"`              // Path to a WAV, MP3 or FLAC file when kind is "file".
	Loop            bool    `yaml:"loop"`              // Restart the file at EOF.
	ToneFrequency   float64 `yaml:"tone_frequency"`    // Fundamental of the tone source in Hz.
	ToneAmplitude   float64 `yaml:"tone_amplitude"`    // Peak amplitude of the tone source.
	TonePulseBPM    float64 `yaml:"tone_pulse_bpm"`    // Amplitude pulse rate of the tone source (0 disables).
}

// RenderConfig holds settings for the spectrum renderer.
type RenderConfig struct {
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	Color     string `yaml:"color"`      // Line colour as #RRGGBB.
	Title     string `yaml:"title"`      // Title label drawn in the top-left corner.
	FrameOut  string `yaml:"frame_out"`  // Optional PNG path rewritten every frame.
	Glow      bool   `yaml:"glow"`       // Draw the soft halo under the line.
	LineWidth int    `yaml:"line_width"` // Stroke width in pixels.
}

// TransportConfig holds settings related to sending snapshots over the network.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve snapshots on ws://addr/ws.
	WebSocketAddr    string        `yaml:"websocket_addr"`     // Listen address, e.g. ":8080".
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send snapshot packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port, e.g. "127.0.0.1:9090".
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
	MDNSEnabled      bool          `yaml:"mdns_enabled"`       // Advertise the WebSocket feed via mDNS.
	MDNSName         string        `yaml:"mdns_name"`          // Advertised instance name.
}

// RecordingConfig holds settings for recording the live input.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record the capture to a WAV file.
	OutputDir string `yaml:"output_dir"` // Directory for recordings.
	BitDepth  int    `yaml:"bit_depth"`  // 16 or 24.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Analyzer: AnalyzerConfig{
			FFTSize:               4096,
			SmoothingTimeConstant: 0.3,
			MinDecibels:           -90,
			MaxDecibels:           -10,
			Interval:              250 * time.Millisecond,
			RenderFPS:             60,
			Window:                "Blackman",
		},
		Source: SourceConfig{
			Kind:            SourceTone,
			InputDevice:     MinDeviceID,
			InputChannels:   1,
			SampleRate:      44100,
			FramesPerBuffer: 512,
			ToneFrequency:   440,
			ToneAmplitude:   0.5,
		},
		Render: RenderConfig{
			Width:     800,
			Height:    300,
			Color:     "#1DB954",
			Title:     "Spectrum",
			Glow:      true,
			LineWidth: 2,
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddr:    ":8080",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  250 * time.Millisecond,
			MDNSName:         "audiolens",
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: "./recordings",
			BitDepth:  16,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"config.yaml", "audiolens.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every section and reports the first offending key.
func (c *Config) Validate() error {
	if err := c.Analyzer.Validate(); err != nil {
		return err
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("render.width and render.height must be positive, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if c.Transport.MDNSEnabled && !c.Transport.WebSocketEnabled {
		return fmt.Errorf("transport.mdns_enabled requires transport.websocket_enabled")
	}
	if c.Recording.Enabled && c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 {
		return fmt.Errorf("recording.bit_depth must be 16 or 24, got %d", c.Recording.BitDepth)
	}
	return nil
}

// Validate checks the analyser invariants.
func (a AnalyzerConfig) Validate() error {
	if !bitint.IsPowerOfTwo(a.FFTSize) {
		return fmt.Errorf("analyzer.fft_size must be a power of two, got %d (nearest %d)",
			a.FFTSize, bitint.NextPowerOfTwo(a.FFTSize))
	}
	if a.FFTSize < MinFFTSize || a.FFTSize > MaxFFTSize {
		return fmt.Errorf("analyzer.fft_size must be within [%d, %d], got %d", MinFFTSize, MaxFFTSize, a.FFTSize)
	}
	if a.SmoothingTimeConstant < 0 || a.SmoothingTimeConstant >= 1 {
		return fmt.Errorf("analyzer.smoothing_time_constant must be within [0, 1), got %g", a.SmoothingTimeConstant)
	}
	if a.MinDecibels >= a.MaxDecibels {
		return fmt.Errorf("analyzer.min_decibels (%g) must be below analyzer.max_decibels (%g)", a.MinDecibels, a.MaxDecibels)
	}
	if a.Interval <= 0 {
		return fmt.Errorf("analyzer.interval must be positive, got %s", a.Interval)
	}
	if a.RenderFPS <= 0 {
		return fmt.Errorf("analyzer.render_fps must be positive, got %d", a.RenderFPS)
	}
	return nil
}

// BinCount is the length of both frame buffers.
func (a AnalyzerConfig) BinCount() int {
	return a.FFTSize / 2
}

// Validate checks the source selection.
func (s SourceConfig) Validate() error {
	switch s.Kind {
	case SourceInput, SourceTone:
		if s.SampleRate < MinSampleRate || s.SampleRate > MaxSampleRate {
			return fmt.Errorf("source.sample_rate must be within [%d, %d], got %g", MinSampleRate, MaxSampleRate, s.SampleRate)
		}
	case SourceFile:
		if s.File == "" {
			return fmt.Errorf("source.file must be set when source.kind is %q", SourceFile)
		}
	default:
		return fmt.Errorf("source.kind must be one of %q, %q, %q, got %q", SourceInput, SourceFile, SourceTone, s.Kind)
	}
	if s.FramesPerBuffer <= 0 {
		return fmt.Errorf("source.frames_per_buffer must be positive, got %d", s.FramesPerBuffer)
	}
	if s.Kind == SourceInput && s.InputChannels <= 0 {
		return fmt.Errorf("source.input_channels must be positive, got %d", s.InputChannels)
	}
	if s.InputDevice < MinDeviceID {
		return fmt.Errorf("source.input_device must be >= %d, got %d", MinDeviceID, s.InputDevice)
	}
	return nil
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
// Malformed values are ignored so a bad variable never masks the file.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok && val != "" {
		c.LogLevel = val
	}

	// ENV_FFT_SIZE
	if val, ok := os.LookupEnv("ENV_FFT_SIZE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			c.Analyzer.FFTSize = iVal
		}
	}
	// ENV_ANALYSIS_INTERVAL
	if val, ok := os.LookupEnv("ENV_ANALYSIS_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Analyzer.Interval = dur
		}
	}

	// ENV_WS_ADDR
	if val, ok := os.LookupEnv("ENV_WS_ADDR"); ok && val != "" {
		c.Transport.WebSocketEnabled = true
		c.Transport.WebSocketAddr = val
	}
	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
	}
}
