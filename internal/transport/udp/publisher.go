// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"tempo/internal/analysis"
	applog "tempo/internal/log"
	"tempo/internal/tempo"
)

// PacketSize is the size in bytes of one snapshot packet.
const PacketSize = 4 + 8 + 1 + 5*4

// Packet flag bits.
const (
	FlagOK        = 1 << 0
	FlagStreaming = 1 << 1
)

var ErrShortPacket = errors.New("UDP packet too short")

// SnapshotSource provides the snapshot to publish.
type SnapshotSource interface {
	GetSnapshot() analysis.Snapshot
}

// Sender is the packet sink used by UDPPublisher. *UDPSender satisfies it.
type Sender interface {
	Send(data []byte) error
}

// UDPPublisher periodically fetches the tempo snapshot, packs it into a
// fixed binary format, and sends it over UDP.
// It runs in a separate goroutine managed by Start and Stop methods.
type UDPPublisher struct {
	sender   Sender
	source   SnapshotSource
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32
	packet      []byte // Reused for every packet
}

// NewUDPPublisher creates and initializes a new UDPPublisher.
// If the provided interval is invalid (<= 0), it defaults to 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, sender Sender, source SnapshotSource) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("UDPPublisher: snapshot source cannot be nil")
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	applog.Infof("UDPPublisher: Initializing (Interval: %s, Packet: %d bytes)", interval, PacketSize)

	return &UDPPublisher{
		sender:   sender,
		source:   source,
		interval: interval,
		packet:   make([]byte, 0, PacketSize),
	}, nil
}

// Start begins the periodic publishing process.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan

	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				applog.Debugf("UDPPublisher: Publisher goroutine received stop signal.")
				return
			}
		}
	}()
}

// Stop gracefully signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		applog.Debugf("UDPPublisher: Stop called but not running.")
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})

	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: Publisher goroutine finished after %d packets.", p.sequenceNum)
	return nil
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Flags             | uint8          | 1            | bit0 ok, bit1 streaming |
| BPM               | float32        | 4            | 0 when unknown          |
| Confidence        | float32        | 4            | 0..1                    |
| Stability         | float32        | 4            | 0..1                    |
| Beat Phase        | float32        | 4            | 0..1                    |
| Beat Pulse        | float32        | 4            | 0..1                    |
+-----------------------------------------------------------------------------+
*/

// Packet is a decoded snapshot packet.
type Packet struct {
	Sequence   uint32
	Timestamp  time.Time
	OK         bool
	Streaming  bool
	BPM        float32
	Confidence float32
	Stability  float32
	BeatPhase  float32
	BeatPulse  float32
}

// AppendPacket appends the wire form of snap to dst.
func AppendPacket(dst []byte, seq uint32, ts time.Time, snap analysis.Snapshot) []byte {
	var flags byte
	if snap.OK {
		flags |= FlagOK
	}
	if snap.Method == tempo.MethodStreaming {
		flags |= FlagStreaming
	}

	dst = binary.BigEndian.AppendUint32(dst, seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(ts.UnixNano()))
	dst = append(dst, flags)
	for _, v := range [...]float64{snap.BPM, snap.Confidence01, snap.Stability01, snap.BeatPhase, snap.BeatPulse} {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(v)))
	}
	return dst
}

// DecodePacket parses one snapshot packet.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < PacketSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}

	f32 := func(off int) float32 {
		return math.Float32frombits(binary.BigEndian.Uint32(b[off:]))
	}
	flags := b[12]
	return Packet{
		Sequence:   binary.BigEndian.Uint32(b[0:]),
		Timestamp:  time.Unix(0, int64(binary.BigEndian.Uint64(b[4:]))),
		OK:         flags&FlagOK != 0,
		Streaming:  flags&FlagStreaming != 0,
		BPM:        f32(13),
		Confidence: f32(17),
		Stability:  f32(21),
		BeatPhase:  f32(25),
		BeatPulse:  f32(29),
	}, nil
}

// buildAndSendPacket packs the current snapshot and sends it. Called on
// every tick; the snapshot is sent even when unchanged so receivers can
// detect loss from the sequence number.
func (p *UDPPublisher) buildAndSendPacket() {
	p.sequenceNum++
	p.packet = AppendPacket(p.packet[:0], p.sequenceNum, time.Now(), p.source.GetSnapshot())

	if err := p.sender.Send(p.packet); err == nil && applog.Enabled(applog.LevelDebug) {
		applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(p.packet))
	}
}

// Close implements the io.Closer interface. It gracefully stops the publisher goroutine.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
