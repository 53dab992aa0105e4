// SPDX-License-Identifier: MIT

// Package transport carries analysis snapshots out of the process.
package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"audiolens/internal/analysis"
	applog "audiolens/internal/log"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// SnapshotMessage is the envelope type for analysis results.
const SnapshotMessage = "snapshot"

// Envelope wraps a snapshot for the wire.
type Envelope struct {
	Type      string            `json:"type"`
	Handle    string            `json:"handle"`
	Sequence  uint64            `json:"seq"`
	Timestamp int64             `json:"ts"` // Unix milliseconds.
	Snapshot  analysis.Snapshot `json:"snapshot"`
}

// Publisher wraps every snapshot of one handle in an Envelope and sends it
// to each transport. Publish matches the engine's snapshot callback.
type Publisher struct {
	handle     string
	transports []Transport
	seq        atomic.Uint64
	now        func() time.Time
	closeOnce  sync.Once
}

// NewPublisher creates a publisher for the handle with the given ID.
func NewPublisher(handleID string, transports ...Transport) *Publisher {
	return &Publisher{handle: handleID, transports: transports, now: time.Now}
}

// Publish sends s to every transport. Send errors are logged, not returned,
// so one failing transport never stalls the others.
func (p *Publisher) Publish(s analysis.Snapshot) {
	env := Envelope{
		Type:      SnapshotMessage,
		Handle:    p.handle,
		Sequence:  p.seq.Add(1),
		Timestamp: p.now().UnixMilli(),
		Snapshot:  s,
	}
	for _, t := range p.transports {
		if err := t.Send(env); err != nil {
			applog.Debugf("Publisher: Send failed (%T): %v", t, err)
		}
	}
}

// Close closes every transport and joins their errors.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		errs := make([]error, 0, len(p.transports))
		for _, t := range p.transports {
			errs = append(errs, t.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}
