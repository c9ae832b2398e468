// SPDX-License-Identifier: MIT
/*
Package transport fans tempo snapshots out to visual clients.

A Publisher pulls the analyzer's snapshot on a ticker and hands every new
one to each configured Transport. Transports never block the publisher:
slow consumers lose messages rather than delaying the others.
*/
package transport

import (
	"errors"
	"sync"
	"time"

	"tempo/internal/analysis"
	applog "tempo/internal/log"
)

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// SnapshotSource is anything that publishes tempo snapshots.
// *analysis.Analyzer satisfies it.
type SnapshotSource interface {
	GetSnapshot() analysis.Snapshot
}

// Publisher periodically sends the latest snapshot to its transports.
// Unchanged snapshots are not resent.
type Publisher struct {
	source     SnapshotSource
	transports []Transport
	interval   time.Duration

	mu       sync.Mutex // Protects doneChan during Start/Stop.
	doneChan chan struct{}
	wg       sync.WaitGroup

	last analysis.Snapshot
	sent uint64
}

// NewPublisher creates a Publisher. If interval is invalid (<= 0), it
// defaults to 16ms (~60Hz).
func NewPublisher(source SnapshotSource, interval time.Duration, transports ...Transport) *Publisher {
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("Publisher: Invalid interval provided, defaulting to %s", interval)
	}
	return &Publisher{source: source, transports: transports, interval: interval}
}

// Start launches the publishing goroutine. Calling Start on a running
// publisher is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doneChan != nil {
		applog.Warnf("Publisher: Start called but already running.")
		return
	}

	done := make(chan struct{})
	p.doneChan = done

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		applog.Infof("Publisher: Started (Interval: %s, Transports: %d)", p.interval, len(p.transports))
		for {
			select {
			case <-ticker.C:
				p.Publish()
			case <-done:
				return
			}
		}
	}()
}

// Publish sends the current snapshot if it changed since the last send.
// It reports whether anything was sent.
func (p *Publisher) Publish() bool {
	snap := p.source.GetSnapshot()
	if p.sent > 0 && snap == p.last {
		return false
	}
	p.last = snap
	p.sent++

	for _, t := range p.transports {
		if err := t.Send(snap); err != nil {
			applog.Debugf("Publisher: Send failed: %v", err)
		}
	}
	return true
}

// Stop terminates the publishing goroutine and waits for it to exit.
// It is safe to call Stop multiple times.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if p.doneChan == nil {
		p.mu.Unlock()
		return
	}
	close(p.doneChan)
	p.doneChan = nil
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("Publisher: Stopped after %d snapshots", p.sent)
}

// Close stops the publisher and closes every transport.
func (p *Publisher) Close() error {
	p.Stop()
	var errs []error
	for _, t := range p.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
