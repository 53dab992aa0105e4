// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"
	"image/draw"
	"time"

	applog "audiolens/internal/log"
)

// State is the scheduler state of a handle.
type State int32

const (
	Idle     State = iota // No loops running.
	Active                // Analysis and render ticks fire.
	Stopping              // Loops are finishing; no new results are published.
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Active:
		return "Active"
	case Stopping:
		return "Stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Enable starts the analysis loop and, if a display is attached, the
// render loop. Enabling an active handle is a no-op.
func (h *Handle) Enable() error {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()
	if h.closed.Load() {
		return ErrDisconnected
	}
	if h.State() == Active {
		return nil
	}

	h.stop = make(chan struct{})
	h.state.Store(int32(Active))

	h.wg.Add(1)
	go h.analysisLoop(h.newClock(h.cfg.Interval), h.stop)
	if h.display != nil {
		h.wg.Add(1)
		go h.renderLoop(h.display, h.stop)
	}

	applog.Infof("Engine: Analysis enabled on handle %s", h.id)
	return nil
}

// Disable stops both loops. It returns once they have exited, after the
// render loop has drawn its final frame; no snapshot is delivered after
// Disable returns.
func (h *Handle) Disable() {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()
	h.disableLocked()
}

func (h *Handle) disableLocked() {
	if h.State() != Active {
		return
	}
	h.state.Store(int32(Stopping))

	// Wait out a delivery that passed the state check before the store.
	h.deliverMu.Lock()
	h.last.Store(nil)
	h.deliverMu.Unlock()

	close(h.stop)
	h.wg.Wait()
	h.state.Store(int32(Idle))

	applog.Infof("Engine: Analysis disabled on handle %s", h.id)
}

// AttachDisplay makes the render loop draw onto surface on every tick of
// clock while the handle is active. The clock is owned by the handle from
// here on and stopped with it. Attaching while active starts rendering
// immediately.
func (h *Handle) AttachDisplay(surface draw.Image, clock Clock) error {
	if clock == nil {
		return fmt.Errorf("engine: display clock must not be nil")
	}

	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()
	if h.closed.Load() {
		return ErrDisconnected
	}
	if h.display != nil {
		return fmt.Errorf("engine: a display is already attached to handle %s", h.id)
	}

	h.display = &display{surface: surface, clock: clock}
	if h.State() == Active {
		h.wg.Add(1)
		go h.renderLoop(h.display, h.stop)
	}
	return nil
}

// analysisLoop runs one analysis per tick. When a tick takes longer than
// the interval, the tick that arrived meanwhile is skipped rather than run
// late.
func (h *Handle) analysisLoop(clock Clock, stop <-chan struct{}) {
	defer h.wg.Done()
	defer clock.Stop()

	ticks := clock.Ticks()
	for {
		select {
		case <-stop:
			return
		case <-ticks:
		}
		if h.State() != Active {
			continue
		}

		start := time.Now()
		h.analyze()
		if time.Since(start) < h.cfg.Interval {
			continue
		}
		select {
		case <-ticks:
			h.stats.skipped.Add(1)
			applog.Debugf("Engine: Analysis tick overran on handle %s, skipping next tick", h.id)
		default:
		}
	}
}

// renderLoop renders on each display tick while active, then once more
// after stop is closed.
func (h *Handle) renderLoop(d *display, stop <-chan struct{}) {
	defer h.wg.Done()

	ticks := d.clock.Ticks()
	for {
		select {
		case <-stop:
			h.renderFrame(d, true)
			return
		case <-ticks:
			if h.State() == Active {
				h.renderFrame(d, false)
			}
		}
	}
}

func (h *Handle) renderFrame(d *display, final bool) {
	err := h.Render(d.surface)
	if h.renderHook != nil {
		h.renderHook(RenderEvent{Surface: d.surface, Final: final, Err: err})
	}
}
