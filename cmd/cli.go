// SPDX-License-Identifier: MIT

// Package cmd wires configuration, sources, the engine and its consumers
// behind the audiolens command line.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"audiolens/internal/config"
	applog "audiolens/internal/log"
	"audiolens/pkg/build"
)

// options holds raw flag values. They override the config file only when
// the flag was given explicitly.
type options struct {
	configPath string
	logLevel   string
	verbose    bool

	source     string
	file       string
	loop       bool
	device     int
	channels   int
	sampleRate float64
	tone       float64
	lowLatency bool

	fftSize  int
	interval time.Duration
	window   string

	frameOut string
	width    int
	height   int
	title    string

	noTUI     bool
	wsAddr    string
	udpTarget string
	mdns      bool
	record    bool
}

// Execute parses args and runs the selected command until ctx is done.
func Execute(ctx context.Context, args []string) error {
	root := newRootCommand(&options{})
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand(opts *options) *cobra.Command {
	buildInfo := build.GetBuildInfo()

	runLiveE := func(cmd *cobra.Command, args []string) error {
		cfg, err := opts.config(cmd)
		if err != nil {
			return err
		}
		return runLive(cmd.Context(), cfg, !opts.noTUI)
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: runLiveE,
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Analyse the configured source live (default)",
		Args:  cobra.NoArgs,
		RunE:  runLiveE,
	})
	rootCmd.AddCommand(newAnalyzeCommand(opts))
	rootCmd.AddCommand(newRenderCommand(opts))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listDevices(cmd.OutOrStdout())
		},
	})

	pf := rootCmd.PersistentFlags()

	// General
	pf.StringVar(&opts.configPath, "config", "", "Path to a YAML config file (default: ./config.yaml if present)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Show verbose output (debug logging)")

	// Source
	pf.StringVar(&opts.source, "source", "", "Frame source: input, file or tone")
	pf.StringVarP(&opts.file, "file", "f", "", "WAV, MP3 or FLAC file for the file source")
	pf.BoolVar(&opts.loop, "loop", false, "Restart the file at the end")
	pf.IntVarP(&opts.device, "device", "d", config.MinDeviceID,
		"Input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&opts.channels, "channels", "c", 1, "Number of input channels to capture (1=mono, 2=stereo)")
	pf.Float64VarP(&opts.sampleRate, "sample-rate", "s", 0, "Sample rate, measured in Hertz (Hz)")
	pf.Float64Var(&opts.tone, "tone", 0, "Fundamental of the tone source in Hz")
	pf.BoolVarP(&opts.lowLatency, "low-latency", "l", false, "Use the device's low input latency")

	// Analyser
	pf.IntVar(&opts.fftSize, "fft-size", 0, "FFT size, a power of two >= 256")
	pf.DurationVar(&opts.interval, "interval", 0, "Analysis tick interval")
	pf.StringVar(&opts.window, "window", "", "FFT window function")

	// Rendering
	pf.StringVar(&opts.frameOut, "frame-out", "", "Write the spectrum to this PNG every frame")
	pf.IntVar(&opts.width, "width", 0, "Spectrum width in pixels")
	pf.IntVar(&opts.height, "height", 0, "Spectrum height in pixels")
	pf.StringVar(&opts.title, "title", "", "Spectrum title")

	// Consumers
	pf.BoolVar(&opts.noTUI, "no-tui", false, "Log snapshots instead of showing the terminal meter")
	pf.StringVar(&opts.wsAddr, "ws", "", "Serve snapshots over WebSocket on this address, e.g. :8080")
	pf.StringVar(&opts.udpTarget, "udp", "", "Send snapshot packets to this UDP address")
	pf.BoolVar(&opts.mdns, "mdns", false, "Advertise the WebSocket feed via mDNS")
	pf.BoolVarP(&opts.record, "record", "r", false, "Record the live input to WAV")

	return rootCmd
}

// config loads the config file, applies explicitly set flags and
// configures logging.
func (o *options) config(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("log-level", func() { cfg.LogLevel = o.logLevel })
	set("verbose", func() { cfg.Debug = o.verbose })
	set("source", func() { cfg.Source.Kind = o.source })
	set("file", func() {
		cfg.Source.File = o.file
		if !flags.Changed("source") {
			cfg.Source.Kind = config.SourceFile
		}
	})
	set("loop", func() { cfg.Source.Loop = o.loop })
	set("device", func() { cfg.Source.InputDevice = o.device })
	set("channels", func() { cfg.Source.InputChannels = o.channels })
	set("sample-rate", func() { cfg.Source.SampleRate = o.sampleRate })
	set("tone", func() { cfg.Source.ToneFrequency = o.tone })
	set("low-latency", func() { cfg.Source.LowLatency = o.lowLatency })
	set("fft-size", func() { cfg.Analyzer.FFTSize = o.fftSize })
	set("interval", func() { cfg.Analyzer.Interval = o.interval })
	set("window", func() { cfg.Analyzer.Window = o.window })
	set("frame-out", func() { cfg.Render.FrameOut = o.frameOut })
	set("width", func() { cfg.Render.Width = o.width })
	set("height", func() { cfg.Render.Height = o.height })
	set("title", func() { cfg.Render.Title = o.title })
	set("ws", func() {
		cfg.Transport.WebSocketEnabled = o.wsAddr != ""
		cfg.Transport.WebSocketAddr = o.wsAddr
	})
	set("udp", func() {
		cfg.Transport.UDPEnabled = o.udpTarget != ""
		cfg.Transport.UDPTargetAddress = o.udpTarget
	})
	set("mdns", func() { cfg.Transport.MDNSEnabled = o.mdns })
	set("record", func() { cfg.Recording.Enabled = o.record })

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	configureLogging(cfg)
	return cfg, nil
}

func configureLogging(cfg *config.Config) {
	level, ok := applog.ParseLevel(cfg.LogLevel)
	if !ok {
		applog.Warnf("Config: Unknown log level %q, using %s", cfg.LogLevel, level)
	}
	if cfg.Debug {
		level = applog.LevelDebug
	}
	applog.SetLevel(level)
}
