// SPDX-License-Identifier: MIT

// Package engine samples a frame source on two independent schedules: an
// analysis tick that derives a snapshot and hands it to subscribers, and a
// render tick that redraws the spectrum while analysis is active.
package engine

import (
	"errors"
	"fmt"
	"image/draw"
	"reflect"
	"sync"
	"sync/atomic"

	"audiolens/internal/analysis"
	"audiolens/internal/config"
	applog "audiolens/internal/log"
	"audiolens/internal/render"
	"audiolens/internal/source"

	"github.com/google/uuid"
)

var (
	// ErrSourceUnavailable is returned by Connect when there is no frame
	// source or it cannot produce a frame.
	ErrSourceUnavailable = errors.New("engine: frame source unavailable")
	// ErrDisconnected is returned by operations on a closed handle.
	ErrDisconnected = errors.New("engine: handle disconnected")
	// ErrRenderSuppressed is returned by Render after a render failure.
	ErrRenderSuppressed = errors.New("engine: rendering suppressed after failure")
)

// SnapshotFunc receives one snapshot per analysis tick. It runs on the
// analysis goroutine and must not call Disable, Close or Disconnect.
type SnapshotFunc func(analysis.Snapshot)

// RenderEvent describes one render performed by the render loop.
type RenderEvent struct {
	Surface draw.Image
	Final   bool // Last render after Disable.
	Err     error
}

// Option configures a Handle.
type Option func(*Handle)

// WithStyle sets the render style. Invalid styles fall back to the default.
func WithStyle(style render.Style) Option {
	return func(h *Handle) { h.style = style }
}

// WithAnalysisClock replaces the ticker driving the analysis loop.
func WithAnalysisClock(factory ClockFactory) Option {
	return func(h *Handle) { h.newClock = factory }
}

// WithRenderHook is called after every render the render loop performs.
// It runs on the render goroutine.
func WithRenderHook(fn func(RenderEvent)) Option {
	return func(h *Handle) { h.renderHook = fn }
}

// Stats counts what a handle has done since Connect.
type Stats struct {
	Ticks          uint64 // Analysis ticks executed.
	Skipped        uint64 // Ticks dropped because the previous one overran.
	Delivered      uint64 // Snapshots handed to subscribers.
	Discarded      uint64 // Snapshots dropped because analysis stopped meanwhile.
	SourceErrors   uint64 // Frames the source failed to produce.
	Renders        uint64 // Successful renders.
	RenderFailures uint64
}

type stats struct {
	ticks, skipped, delivered, discarded atomic.Uint64
	sourceErrors, renders, renderFails   atomic.Uint64
}

type subscriber struct {
	id uint64
	fn SnapshotFunc
}

type display struct {
	surface draw.Image
	clock   Clock
}

// Handle is one connection between a frame source and the engine.
type Handle struct {
	id       uuid.UUID
	src      source.FrameSource
	cfg      config.AnalyzerConfig
	style    render.Style
	newClock ClockFactory

	renderHook func(RenderEvent)
	renderMu   sync.Mutex
	renderer   *render.Renderer
	renderFail atomic.Bool

	// lifecycle serialises Enable, Disable, AttachDisplay and Close.
	lifecycle sync.Mutex
	state     atomic.Int32
	closed    atomic.Bool
	stop      chan struct{}
	wg        sync.WaitGroup
	display   *display

	// deliverMu is held while results are published; Disable takes it
	// after leaving Active so no delivery can begin afterwards.
	deliverMu      sync.Mutex
	subMu          sync.Mutex
	subs           []subscriber
	nextSub        uint64
	last           atomic.Pointer[analysis.Snapshot]
	sourceErrShown atomic.Bool

	stats stats
}

// Connect validates cfg, probes src for one frame and returns an Idle
// handle. A nil source (including a typed nil pointer), or one that cannot
// produce a frame of the configured size, yields ErrSourceUnavailable.
func Connect(src source.FrameSource, cfg config.AnalyzerConfig, opts ...Option) (*Handle, error) {
	if isNil(src) {
		return nil, ErrSourceUnavailable
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid analyzer config: %w", err)
	}

	frame, err := src.Frame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if frame.BinCount() != cfg.BinCount() || len(frame.Time) != cfg.BinCount() {
		return nil, fmt.Errorf("%w: source yields %d/%d samples, want %d",
			ErrSourceUnavailable, len(frame.Time), frame.BinCount(), cfg.BinCount())
	}

	h := &Handle{
		id:       uuid.New(),
		src:      src,
		cfg:      cfg,
		style:    render.DefaultStyle(),
		newClock: NewTickerClock,
	}
	for _, opt := range opts {
		opt(h)
	}

	renderer, err := render.NewRenderer(h.style)
	if err != nil {
		applog.Warnf("Engine: Invalid render style (%v), using default", err)
		h.style = render.DefaultStyle()
		renderer, _ = render.NewRenderer(h.style)
	}
	h.renderer = renderer
	h.state.Store(int32(Idle))

	applog.Infof("Engine: Connected handle %s (fft %d, interval %s)", h.id, cfg.FFTSize, cfg.Interval)
	return h, nil
}

// Disconnect halts both loops and releases h. It is idempotent and
// accepts a nil handle.
func Disconnect(h *Handle) error {
	if h == nil {
		return nil
	}
	return h.Close()
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string {
	return h.id.String()
}

// State returns the current scheduler state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Config returns the analyser settings the handle was connected with.
func (h *Handle) Config() config.AnalyzerConfig {
	return h.cfg
}

// OnSnapshot registers fn for every subsequent snapshot. The returned
// function unregisters it.
func (h *Handle) OnSnapshot(fn SnapshotFunc) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	h.subMu.Lock()
	h.nextSub++
	id := h.nextSub
	h.subs = append(h.subs, subscriber{id: id, fn: fn})
	h.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.subMu.Lock()
			defer h.subMu.Unlock()
			for i, s := range h.subs {
				if s.id == id {
					h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Last returns the most recent snapshot while analysis is active. After
// Disable the previous result is stale and ok is false.
func (h *Handle) Last() (snapshot analysis.Snapshot, ok bool) {
	if s := h.last.Load(); s != nil {
		return *s, true
	}
	return analysis.Snapshot{}, false
}

// Render pulls a fresh frame and draws it onto surface. A source error is
// counted and returned without affecting later calls. The first drawing
// failure is logged and every later call returns ErrRenderSuppressed;
// analysis is unaffected.
func (h *Handle) Render(surface draw.Image) error {
	if h.closed.Load() {
		return ErrDisconnected
	}
	if h.renderFail.Load() {
		return ErrRenderSuppressed
	}

	h.renderMu.Lock()
	defer h.renderMu.Unlock()

	frame, err := h.src.Frame()
	if err != nil {
		h.sourceFailed(err)
		return fmt.Errorf("engine: render frame: %w", err)
	}
	if err := h.renderer.Draw(surface, frame); err != nil {
		h.stats.renderFails.Add(1)
		if h.renderFail.CompareAndSwap(false, true) {
			applog.Errorf("Engine: Render failed on handle %s, suppressing further renders: %v", h.id, err)
		}
		return err
	}
	h.stats.renders.Add(1)
	return nil
}

// Stats returns a copy of the handle's counters.
func (h *Handle) Stats() Stats {
	return Stats{
		Ticks:          h.stats.ticks.Load(),
		Skipped:        h.stats.skipped.Load(),
		Delivered:      h.stats.delivered.Load(),
		Discarded:      h.stats.discarded.Load(),
		SourceErrors:   h.stats.sourceErrors.Load(),
		Renders:        h.stats.renders.Load(),
		RenderFailures: h.stats.renderFails.Load(),
	}
}

// Close disables analysis and releases the handle. Later calls are no-ops.
func (h *Handle) Close() error {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()
	if h.closed.Load() {
		return nil
	}
	h.disableLocked()
	h.closed.Store(true)
	if h.display != nil {
		h.display.clock.Stop()
	}

	h.subMu.Lock()
	h.subs = nil
	h.subMu.Unlock()

	applog.Infof("Engine: Disconnected handle %s", h.id)
	return nil
}

// sourceFailed counts a source error, logging only the first.
func (h *Handle) sourceFailed(err error) {
	h.stats.sourceErrors.Add(1)
	if h.sourceErrShown.CompareAndSwap(false, true) {
		applog.Warnf("Engine: Source failed on handle %s: %v", h.id, err)
	}
}

// analyze runs one analysis tick.
func (h *Handle) analyze() {
	h.stats.ticks.Add(1)

	frame, err := h.src.Frame()
	if err != nil {
		h.sourceFailed(err)
		return
	}

	snapshot := analysis.Analyze(frame.Time, frame.Freq, frame.SampleRate,
		analysis.DecibelRange{Min: frame.MinDecibels, Max: frame.MaxDecibels})

	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	if h.State() != Active {
		h.stats.discarded.Add(1)
		return
	}
	h.last.Store(&snapshot)

	h.subMu.Lock()
	subs := append([]subscriber(nil), h.subs...)
	h.subMu.Unlock()
	for _, s := range subs {
		s.fn(snapshot)
	}
	h.stats.delivered.Add(1)
}

func isNil(src source.FrameSource) bool {
	if src == nil {
		return true
	}
	v := reflect.ValueOf(src)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
