// SPDX-License-Identifier: MIT

// Package udp publishes compact binary snapshot packets over UDP.
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"audiolens/internal/analysis"
	applog "audiolens/internal/log"
)

// SnapshotSource returns the most recent snapshot, if any. An engine
// handle satisfies it.
type SnapshotSource interface {
	Last() (analysis.Snapshot, bool)
}

// Flags in the packet's flag byte.
const (
	FlagTempo uint8 = 1 << iota
	FlagKey
)

// PacketSize is the fixed length of every packet.
const PacketSize = 4 + 8 + 6*4 + 1 + 1

// Interval used when none is configured, matching the analysis tick.
const DefaultInterval = 250 * time.Millisecond

var errShortPacket = errors.New("udp packet too short")

// Publisher periodically takes the latest snapshot from its source, packs
// it and sends it with a Sender. Ticks with no snapshot yet send nothing.
type Publisher struct {
	sender   *Sender
	source   SnapshotSource
	interval time.Duration
	now      func() time.Time

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32
	packet      [PacketSize]byte
}

// NewPublisher creates a Publisher. An interval <= 0 uses DefaultInterval.
func NewPublisher(interval time.Duration, sender *Sender, source SnapshotSource) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("udp publisher: snapshot source cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s, Packet: %d bytes)", interval, PacketSize)

	return &Publisher{
		sender:   sender,
		source:   source,
		interval: interval,
		now:      time.Now,
	}, nil
}

// Start launches the publishing goroutine. Calling Start while running is
// a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Local copies keep the goroutine off p.ticker and p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started")
		for {
			select {
			case <-ticker.C:
				p.publishLatest()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publishing goroutine and waits for it to exit. Safe to
// call more than once.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Publisher goroutine finished.")
	return nil
}

// Close stops the publisher. The sender is owned by the caller.
func (p *Publisher) Close() error {
	return p.Stop()
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| RMS               | float32        | 4            | Linear, 0..1            |
| Peak              | float32        | 4            | Linear, 0..1            |
| LUFS              | float32        | 4            | -Inf when silent        |
| dBFS              | float32        | 4            | -Inf when silent        |
| Dynamic Range     | float32        | 4            | dB                      |
| Tempo             | float32        | 4            | BPM, 0 when absent      |
| Flags             | uint8          | 1            | bit0 tempo, bit1 key    |
| Key               | int8           | 1            | Pitch class, -1 absent  |
+-----------------------------------------------------------------------------+

Visual Layout:

|<- 4 ->|<-- 8 -->|<------------- 6 * 4 ------------->|<- 1 ->|<- 1 ->|
+-------+---------+-----------------------------------+-------+-------+
|  Seq  |   Ts    | rms peak lufs dbfs range tempo    | Flags |  Key  |
+-------+---------+-----------------------------------+-------+-------+
*/

// Packet is a decoded UDP packet.
type Packet struct {
	Sequence  uint32
	Timestamp int64
	Snapshot  analysis.Snapshot
}

// Encode packs the snapshot into dst, which must hold PacketSize bytes.
func Encode(dst []byte, seq uint32, ts int64, s analysis.Snapshot) error {
	if len(dst) < PacketSize {
		return errShortPacket
	}
	be := binary.BigEndian
	be.PutUint32(dst[0:], seq)
	be.PutUint64(dst[4:], uint64(ts))

	tempo, hasTempo := s.TempoBPM()
	values := [6]float64{s.RMS, s.Peak, s.Lufs, s.Dbfs, s.DynamicRange, tempo}
	off := 12
	for _, v := range values {
		be.PutUint32(dst[off:], math.Float32bits(float32(v)))
		off += 4
	}

	var flags uint8
	key := int8(-1)
	if hasTempo {
		flags |= FlagTempo
	}
	if pc, ok := s.KeyClass(); ok {
		flags |= FlagKey
		key = int8(pc)
	}
	dst[off] = flags
	dst[off+1] = byte(key)
	return nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) (Packet, error) {
	if len(b) < PacketSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", errShortPacket, len(b))
	}
	be := binary.BigEndian
	pkt := Packet{
		Sequence:  be.Uint32(b[0:]),
		Timestamp: int64(be.Uint64(b[4:])),
	}
	var values [6]float64
	off := 12
	for i := range values {
		values[i] = float64(math.Float32frombits(be.Uint32(b[off:])))
		off += 4
	}
	pkt.Snapshot = analysis.Snapshot{
		RMS:          values[0],
		Peak:         values[1],
		Lufs:         values[2],
		Dbfs:         values[3],
		DynamicRange: values[4],
	}
	flags := b[off]
	if flags&FlagTempo != 0 {
		tempo := values[5]
		pkt.Snapshot.Tempo = &tempo
	}
	if flags&FlagKey != 0 {
		pc := analysis.PitchClass(int8(b[off+1]))
		pkt.Snapshot.Key = &pc
	}
	return pkt, nil
}

// publishLatest runs on every tick.
func (p *Publisher) publishLatest() {
	snap, ok := p.source.Last()
	if !ok {
		return
	}
	p.sequenceNum++
	if err := Encode(p.packet[:], p.sequenceNum, p.now().UnixNano(), snap); err != nil {
		applog.Errorf("UDPPublisher: Error packing snapshot: %v", err)
		return
	}
	if err := p.sender.Send(p.packet[:]); err == nil {
		applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, PacketSize)
	}
}
