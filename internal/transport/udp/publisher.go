// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"beatscope/internal/analysis"
	applog "beatscope/internal/log"
	"beatscope/internal/transport"
)

// DefaultInterval is used when the configured interval is not positive
// (~30Hz).
const DefaultInterval = 33 * time.Millisecond

// UDPPublisher keeps the latest analysis result handed to Send and packs it
// into one datagram per interval. Results arriving faster than the
// interval are coalesced: the newest levels win and a beat in any of them
// sets FlagBeat. Nothing is sent while no new result arrived.
type UDPPublisher struct {
	sender   PacketSender
	interval time.Duration

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Signals the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.

	latestMu sync.Mutex
	latest   Packet // Staged packet, Magnitudes reused.
	fresh    bool   // latest has not been sent yet.
	closed   bool

	sequenceNum uint32

	// Owned by the publisher goroutine.
	outgoing     Packet
	packetBuffer *bytes.Buffer
	sent         uint64
}

// NewUDPPublisher creates a publisher sending through sender.
func NewUDPPublisher(interval time.Duration, sender PacketSender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if interval <= 0 {
		applog.Warnf("UDPPublisher: Invalid interval %s, defaulting to %s", interval, DefaultInterval)
		interval = DefaultInterval
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)

	return &UDPPublisher{
		sender:       sender,
		interval:     interval,
		latest:       Packet{Magnitudes: make([]float32, 0, analysis.FFTSize/2)},
		outgoing:     Packet{Magnitudes: make([]float32, 0, analysis.FFTSize/2)},
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Send stages an *analysis.Result for the next tick.
func (p *UDPPublisher) Send(data any) error {
	r, ok := data.(*analysis.Result)
	if !ok {
		return fmt.Errorf("UDPPublisher: unsupported payload %T", data)
	}

	p.latestMu.Lock()
	defer p.latestMu.Unlock()
	if p.closed {
		return transport.ErrClosed
	}

	beat := p.fresh && p.latest.Beat()
	f := r.Features
	p.latest.Timestamp = r.Timestamp.UnixNano()
	p.latest.Flags = 0
	if beat || f.BeatDetected {
		p.latest.Flags |= FlagBeat
	}
	p.latest.BassLevel = float32(f.BassLevel)
	p.latest.MidLevel = float32(f.MidLevel)
	p.latest.TrebleLevel = float32(f.TrebleLevel)
	p.latest.OverallLevel = float32(f.OverallLevel)
	p.latest.Tempo = float32(f.Tempo)
	p.latest.DominantFrequency = float32(f.DominantFrequency)

	amps := r.FrequencyData.Amplitudes
	p.latest.Magnitudes = p.latest.Magnitudes[:0]
	for _, a := range amps {
		p.latest.Magnitudes = append(p.latest.Magnitudes, float32(a))
	}
	p.fresh = true
	return nil
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

	// Capture locals so the goroutine does not race on p.ticker/p.doneChan.
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
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it.
// It is safe to call Stop multiple times.
func (p *UDPPublisher) Stop() error {
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
	applog.Infof("UDPPublisher: Publisher goroutine finished (%d packets sent).", p.sent)
	return nil
}

// publish sends the staged packet if it is fresh.
func (p *UDPPublisher) publish() {
	p.latestMu.Lock()
	if !p.fresh {
		p.latestMu.Unlock()
		return
	}
	mags := append(p.outgoing.Magnitudes[:0], p.latest.Magnitudes...)
	p.outgoing = p.latest
	p.outgoing.Magnitudes = mags
	p.fresh = false
	p.latestMu.Unlock()

	p.sequenceNum++
	p.outgoing.Sequence = p.sequenceNum

	if err := writePacket(p.packetBuffer, &p.outgoing); err != nil {
		applog.Errorf("UDPPublisher: Error packing packet %d: %v", p.sequenceNum, err)
		return
	}
	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		// The sender logs the first failure of a streak.
		return
	}
	p.sent++
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
}

// Close stops publishing and closes the sender.
func (p *UDPPublisher) Close() error {
	p.latestMu.Lock()
	p.closed = true
	p.latestMu.Unlock()

	if err := p.Stop(); err != nil {
		return err
	}
	return p.sender.Close()
}

var _ transport.Transport = (*UDPPublisher)(nil)
