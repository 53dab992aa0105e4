// SPDX-License-Identifier: MIT
package source

import (
	"fmt"
	"sync"
	"time"

	applog "audiolens/internal/log"
)

// FilePlayer plays a decoded clip into an Analyser at real-time pace, one
// block per tick.
type FilePlayer struct {
	analyser *Analyser
	clip     *Clip
	block    int
	loop     bool

	mu  sync.Mutex
	pos int

	done      chan struct{}
	doneOnce  sync.Once
	stop      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

var _ Source = (*FilePlayer)(nil)

// NewFilePlayer creates a player for clip. The analyser must run at the
// clip's sample rate.
func NewFilePlayer(clip *Clip, a *Analyser, framesPerBuffer int, loop bool) (*FilePlayer, error) {
	if clip == nil || len(clip.Samples) == 0 {
		return nil, fmt.Errorf("clip is empty")
	}
	if float64(clip.SampleRate) != a.SampleRate() {
		return nil, fmt.Errorf("analyser sample rate %g does not match clip sample rate %d", a.SampleRate(), clip.SampleRate)
	}
	if framesPerBuffer <= 0 {
		return nil, fmt.Errorf("frames per buffer must be positive, got %d", framesPerBuffer)
	}
	return &FilePlayer{
		analyser: a,
		clip:     clip,
		block:    framesPerBuffer,
		loop:     loop,
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}, nil
}

// Start launches the pacing goroutine. Calling it again has no effect.
func (p *FilePlayer) Start() {
	p.startOnce.Do(func() {
		interval := time.Duration(float64(p.block) / float64(p.clip.SampleRate) * float64(time.Second))
		p.wg.Add(1)
		go p.pump(interval)
	})
}

func (p *FilePlayer) pump(interval time.Duration) {
	defer p.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !p.Advance(p.block) {
				applog.Infof("FilePlayer: Reached end of %s", p.clip.Name)
				return
			}
		case <-p.stop:
			return
		}
	}
}

// Advance writes the next n samples into the analyser. It rewinds at the
// end when looping and otherwise returns false once the clip is exhausted,
// closing Done.
func (p *FilePlayer) Advance(n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for n > 0 {
		if p.pos >= len(p.clip.Samples) {
			if !p.loop {
				p.doneOnce.Do(func() { close(p.done) })
				return false
			}
			p.pos = 0
		}
		end := min(p.pos+n, len(p.clip.Samples))
		p.analyser.Write(p.clip.Samples[p.pos:end])
		n -= end - p.pos
		p.pos = end
	}
	if p.pos >= len(p.clip.Samples) && !p.loop {
		p.doneOnce.Do(func() { close(p.done) })
		return false
	}
	return true
}

// Position returns the playback offset.
func (p *FilePlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.pos) * time.Second / time.Duration(p.clip.SampleRate)
}

// SampleRate returns the clip's sample rate in Hz.
func (p *FilePlayer) SampleRate() int {
	return p.clip.SampleRate
}

// Done is closed when a non-looping clip has been played to the end.
func (p *FilePlayer) Done() <-chan struct{} {
	return p.done
}

// Frame returns the analyser frame at the current playback position.
func (p *FilePlayer) Frame() (Frame, error) {
	return p.analyser.Frame()
}

// Close stops playback and closes the analyser.
func (p *FilePlayer) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
	return p.analyser.Close()
}
