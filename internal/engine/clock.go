// SPDX-License-Identifier: MIT
package engine

import "time"

// Clock delivers ticks until stopped. The analysis loop runs on one built
// from the configured interval; the render loop runs on a display clock.
type Clock interface {
	Ticks() <-chan time.Time
	Stop()
}

// ClockFactory builds a clock ticking every d.
type ClockFactory func(d time.Duration) Clock

type tickerClock struct {
	ticker *time.Ticker
}

// NewTickerClock returns a Clock backed by a time.Ticker. Ticks that the
// receiver is not ready for are dropped.
func NewTickerClock(d time.Duration) Clock {
	return &tickerClock{ticker: time.NewTicker(d)}
}

func (c *tickerClock) Ticks() <-chan time.Time { return c.ticker.C }
func (c *tickerClock) Stop()                   { c.ticker.Stop() }

// NewDisplayClock ticks at fps frames per second.
func NewDisplayClock(fps int) Clock {
	if fps <= 0 {
		fps = 60
	}
	return NewTickerClock(time.Second / time.Duration(fps))
}
