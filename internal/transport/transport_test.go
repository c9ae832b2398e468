// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"tempo/internal/analysis"
	"tempo/internal/tempo"
)

type stubSource struct {
	mu   sync.Mutex
	snap analysis.Snapshot
}

func (s *stubSource) GetSnapshot() analysis.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubSource) set(snap analysis.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

type recordingTransport struct {
	mu       sync.Mutex
	sent     []any
	closed   bool
	closeErr error
}

func (r *recordingTransport) Send(data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, data)
	return nil
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return r.closeErr
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestPublisherSkipsUnchangedSnapshots(t *testing.T) {
	src := &stubSource{snap: analysis.UnknownSnapshot(tempo.MethodSpectral)}
	rt := &recordingTransport{}
	p := NewPublisher(src, time.Millisecond, rt)

	if !p.Publish() {
		t.Fatal("first Publish should send")
	}
	if p.Publish() {
		t.Error("unchanged snapshot should not be resent")
	}

	src.set(analysis.Snapshot{OK: true, BPM: 120, Method: tempo.MethodSpectral, LastUpdatedMs: 10})
	if !p.Publish() {
		t.Error("changed snapshot should be sent")
	}
	if rt.count() != 2 {
		t.Fatalf("sent %d snapshots, want 2", rt.count())
	}
	if got := rt.sent[1].(analysis.Snapshot); got.BPM != 120 {
		t.Errorf("second snapshot BPM = %v, want 120", got.BPM)
	}
}

func TestPublisherFansOut(t *testing.T) {
	src := &stubSource{snap: analysis.Snapshot{OK: true, BPM: 98}}
	a, b := &recordingTransport{}, &recordingTransport{}
	p := NewPublisher(src, time.Millisecond, a, b)
	p.Publish()

	if a.count() != 1 || b.count() != 1 {
		t.Errorf("counts = %d, %d, want 1, 1", a.count(), b.count())
	}
}

func TestPublisherStartStop(t *testing.T) {
	src := &stubSource{snap: analysis.Snapshot{BPM: 1}}
	rt := &recordingTransport{}
	p := NewPublisher(src, time.Millisecond, rt)

	p.Start()
	p.Start() // no-op
	for i := 2; i < 6; i++ {
		src.set(analysis.Snapshot{BPM: float64(i)})
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()
	p.Stop()

	n := rt.count()
	if n == 0 {
		t.Fatal("publisher never sent")
	}
	time.Sleep(5 * time.Millisecond)
	if rt.count() != n {
		t.Error("publisher kept sending after Stop")
	}
}

func TestPublisherDefaultInterval(t *testing.T) {
	p := NewPublisher(&stubSource{}, 0)
	if p.interval != 16*time.Millisecond {
		t.Errorf("interval = %v, want 16ms", p.interval)
	}
}

func TestPublisherCloseJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	a := &recordingTransport{closeErr: errA}
	b := &recordingTransport{}
	p := NewPublisher(&stubSource{}, time.Millisecond, a, b)
	p.Start()

	err := p.Close()
	if !errors.Is(err, errA) {
		t.Errorf("Close() = %v, want %v", err, errA)
	}
	if !a.closed || !b.closed {
		t.Error("Close should close every transport")
	}
}

func TestLoggingTransport(t *testing.T) {
	lt := NewLoggingTransport()
	if err := lt.Send(analysis.Snapshot{BPM: 120}); err != nil {
		t.Errorf("Send() = %v", err)
	}
	if err := lt.Send(make(chan int)); err != nil {
		t.Errorf("Send(unmarshalable) = %v", err)
	}
	if err := lt.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
