// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"audiolens/internal/analysis"
	"audiolens/internal/config"
	"audiolens/internal/engine"
	applog "audiolens/internal/log"
	"audiolens/internal/render"
	"audiolens/internal/transport"
	"audiolens/internal/transport/udp"
	"audiolens/internal/tui"
)

var timeNow = time.Now

// runLive is the hot path: connect the source, fan snapshots out to the
// configured consumers and block until ctx is done, the file ends or the
// user quits the meter.
func runLive(ctx context.Context, cfg *config.Config, useTUI bool) error {
	src, err := openSource(cfg)
	if err != nil {
		return err
	}

	opts := []engine.Option{engine.WithStyle(render.StyleFromConfig(cfg.Render))}
	if cfg.Render.FrameOut != "" {
		opts = append(opts, engine.WithRenderHook(frameWriter(cfg.Render.FrameOut)))
	}
	h, err := engine.Connect(src, cfg.Analyzer, opts...)
	if err != nil {
		_ = src.Close()
		return err
	}

	out, err := startOutputs(cfg, h)
	if err != nil {
		_ = engine.Disconnect(h)
		_ = src.Close()
		return err
	}
	shutdown := func() error {
		errs := []error{engine.Disconnect(h), out.Close(), src.Close()}
		return errors.Join(errs...)
	}

	if cfg.Render.FrameOut != "" {
		surface := image.NewRGBA(image.Rect(0, 0, cfg.Render.Width, cfg.Render.Height))
		if err := h.AttachDisplay(surface, engine.NewDisplayClock(cfg.Analyzer.RenderFPS)); err != nil {
			return errors.Join(err, shutdown())
		}
	}
	if !useTUI {
		defer h.OnSnapshot(logSnapshot)()
	}

	if err := h.Enable(); err != nil {
		return errors.Join(err, shutdown())
	}

	if useTUI {
		// Log lines would tear the alternate screen.
		applog.SetOutput(io.Discard)
		err = tui.Run(h, src, cfg.Render.Title)
		applog.SetOutput(os.Stderr)
		return errors.Join(err, shutdown())
	}

	applog.Infof("Run: Analysing (handle %s); press Ctrl+C to stop", h.ID())
	select {
	case <-ctx.Done():
		applog.Infof("Run: Shutting down")
	case <-src.done:
		applog.Infof("Run: End of file")
	}
	return shutdown()
}

// frameWriter returns a render hook that rewrites path with every frame.
// Write failures are logged once.
func frameWriter(path string) func(engine.RenderEvent) {
	var failed atomic.Bool
	return func(ev engine.RenderEvent) {
		if ev.Err != nil {
			return
		}
		if err := render.WritePNG(path, ev.Surface); err != nil && failed.CompareAndSwap(false, true) {
			applog.Errorf("Run: Writing frame to %s failed: %v", path, err)
		}
	}
}

func logSnapshot(s analysis.Snapshot) {
	tempo, key := tui.Placeholder, tui.Placeholder
	if bpm, ok := s.TempoBPM(); ok {
		tempo = tui.FormatValue(bpm, "%.0f")
	}
	if pc, ok := s.KeyClass(); ok {
		key = pc.String()
	}
	applog.Infof("Snapshot: rms=%.3f peak=%.3f lufs=%s dbfs=%s range=%s tempo=%s key=%s",
		s.RMS, s.Peak,
		tui.FormatValue(s.Lufs, "%.1f"), tui.FormatValue(s.Dbfs, "%.1f"),
		tui.FormatValue(s.DynamicRange, "%.1f"), tempo, key)
}

// outputs are the network consumers of one handle.
type outputs struct {
	unsubscribe func()
	publisher   *transport.Publisher
	advertiser  *transport.Advertiser
	udpPub      *udp.Publisher
	sender      *udp.Sender
}

func startOutputs(cfg *config.Config, h *engine.Handle) (out *outputs, err error) {
	out = &outputs{}
	defer func() {
		if err != nil {
			_ = out.Close()
			out = nil
		}
	}()

	var transports []transport.Transport
	if cfg.Debug {
		transports = append(transports, transport.NewLoggingTransport())
	}
	if cfg.Transport.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr)
		if err != nil {
			return out, err
		}
		transports = append(transports, ws)

		if cfg.Transport.MDNSEnabled {
			port := ws.Addr().(*net.TCPAddr).Port
			if out.advertiser, err = transport.Advertise(cfg.Transport.MDNSName, port); err != nil {
				_ = ws.Close()
				return out, err
			}
		}
	}
	if len(transports) > 0 {
		out.publisher = transport.NewPublisher(h.ID(), transports...)
		out.unsubscribe = h.OnSnapshot(out.publisher.Publish)
	}

	if cfg.Transport.UDPEnabled {
		if out.sender, err = udp.NewSender(cfg.Transport.UDPTargetAddress); err != nil {
			return out, err
		}
		if out.udpPub, err = udp.NewPublisher(cfg.Transport.UDPSendInterval, out.sender, h); err != nil {
			return out, err
		}
		out.udpPub.Start()
	}
	return out, nil
}

// Close stops the consumers in reverse start order.
func (o *outputs) Close() error {
	var errs []error
	if o.udpPub != nil {
		errs = append(errs, o.udpPub.Close())
	}
	if o.sender != nil {
		errs = append(errs, o.sender.Close())
	}
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	if o.publisher != nil {
		errs = append(errs, o.publisher.Close())
	}
	if o.advertiser != nil {
		errs = append(errs, o.advertiser.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close outputs: %w", err)
	}
	return nil
}
