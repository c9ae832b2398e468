// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"tempo/internal/analysis"
	"tempo/internal/tempo"
)

type fixedSource struct{ snap analysis.Snapshot }

func (s fixedSource) GetSnapshot() analysis.Snapshot { return s.snap }

type captureSender struct {
	mu      sync.Mutex
	packets [][]byte
}

func (c *captureSender) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, append([]byte(nil), data...))
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func TestPacketRoundTrip(t *testing.T) {
	snap := analysis.Snapshot{
		OK: true, BPM: 126.5, Confidence01: 0.75, Stability01: 0.5,
		BeatPhase: 0.25, BeatPulse: 1, Method: tempo.MethodStreaming,
	}
	ts := time.Unix(1700000000, 123456789)

	b := AppendPacket(nil, 42, ts, snap)
	if len(b) != PacketSize {
		t.Fatalf("packet is %d bytes, want %d", len(b), PacketSize)
	}

	p, err := DecodePacket(b)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	want := Packet{
		Sequence: 42, Timestamp: ts, OK: true, Streaming: true,
		BPM: 126.5, Confidence: 0.75, Stability: 0.5, BeatPhase: 0.25, BeatPulse: 1,
	}
	if !p.Timestamp.Equal(want.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", p.Timestamp, want.Timestamp)
	}
	p.Timestamp = want.Timestamp
	if p != want {
		t.Errorf("DecodePacket = %+v, want %+v", p, want)
	}
}

func TestPacketFlags(t *testing.T) {
	tests := []struct {
		name      string
		snap      analysis.Snapshot
		ok        bool
		streaming bool
	}{
		{"unknown", analysis.UnknownSnapshot(tempo.MethodSpectral), false, false},
		{"spectral ok", analysis.Snapshot{OK: true, Method: tempo.MethodSpectral}, true, false},
		{"streaming not ok", analysis.Snapshot{Method: tempo.MethodStreaming}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePacket(AppendPacket(nil, 1, time.Unix(0, 0), tt.snap))
			if err != nil {
				t.Fatal(err)
			}
			if p.OK != tt.ok || p.Streaming != tt.streaming {
				t.Errorf("flags = ok:%v streaming:%v, want ok:%v streaming:%v", p.OK, p.Streaming, tt.ok, tt.streaming)
			}
		})
	}
}

func TestDecodePacketShort(t *testing.T) {
	_, err := DecodePacket(make([]byte, PacketSize-1))
	if !errors.Is(err, ErrShortPacket) {
		t.Errorf("err = %v, want ErrShortPacket", err)
	}
}

func TestNewUDPPublisherValidation(t *testing.T) {
	if _, err := NewUDPPublisher(time.Millisecond, nil, fixedSource{}); err == nil {
		t.Error("expected error for nil sender")
	}
	if _, err := NewUDPPublisher(time.Millisecond, &captureSender{}, nil); err == nil {
		t.Error("expected error for nil source")
	}
	p, err := NewUDPPublisher(0, &captureSender{}, fixedSource{})
	if err != nil {
		t.Fatal(err)
	}
	if p.interval != 16*time.Millisecond {
		t.Errorf("interval = %v, want 16ms", p.interval)
	}
}

func TestUDPPublisherSequence(t *testing.T) {
	cs := &captureSender{}
	p, err := NewUDPPublisher(time.Millisecond, cs, fixedSource{analysis.Snapshot{OK: true, BPM: 100}})
	if err != nil {
		t.Fatal(err)
	}
	p.Start()
	deadline := time.Now().Add(2 * time.Second)
	for cs.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for packets")
		}
		time.Sleep(time.Millisecond)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	for i, b := range cs.packets {
		pkt, err := DecodePacket(b)
		if err != nil {
			t.Fatal(err)
		}
		if pkt.Sequence != uint32(i+1) {
			t.Errorf("packet %d sequence = %d", i, pkt.Sequence)
		}
		if pkt.BPM != 100 {
			t.Errorf("packet %d BPM = %v", i, pkt.BPM)
		}
	}
}

func TestUDPPublisherBuildDoesNotAllocate(t *testing.T) {
	p, err := NewUDPPublisher(time.Millisecond, &discardSender{}, fixedSource{analysis.Snapshot{BPM: 120}})
	if err != nil {
		t.Fatal(err)
	}
	allocs := testing.AllocsPerRun(100, p.buildAndSendPacket)
	if allocs > 0 {
		t.Errorf("buildAndSendPacket allocated %.0f times", allocs)
	}
}

type discardSender struct{}

func (discardSender) Send([]byte) error { return nil }

func TestUDPSenderLoopback(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer listener.Close()

	sender, err := NewUDPSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewUDPSender: %v", err)
	}
	if got := sender.Target().String(); got != listener.LocalAddr().String() {
		t.Errorf("Target() = %s, want %s", got, listener.LocalAddr())
	}

	packet := AppendPacket(nil, 7, time.Now(), analysis.Snapshot{OK: true, BPM: 140})
	if err := sender.Send(packet); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 64)
	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := listener.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	got, err := DecodePacket(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if got.Sequence != 7 || got.BPM != 140 || !got.OK {
		t.Errorf("got %+v", got)
	}

	if err := sender.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := sender.Send(packet); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Send after Close = %v, want ErrSenderClosed", err)
	}
	if err := sender.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestNewUDPSenderBadAddress(t *testing.T) {
	if _, err := NewUDPSender("no-port"); err == nil {
		t.Error("expected resolve error")
	}
}

func BenchmarkAppendPacket(b *testing.B) {
	buf := make([]byte, 0, PacketSize)
	snap := analysis.Snapshot{OK: true, BPM: 120, Confidence01: 0.5}
	ts := time.Now()
	for b.Loop() {
		buf = AppendPacket(buf[:0], 1, ts, snap)
	}
}
