// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"sync"
	"testing"
	"time"

	"beatscope/internal/analysis"
	"beatscope/internal/transport"
)

// recordingSender keeps every datagram instead of sending it.
type recordingSender struct {
	mu      sync.Mutex
	packets [][]byte
	closed  bool
}

func (s *recordingSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, append([]byte(nil), data...))
	return nil
}

func (s *recordingSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSender) decoded(t *testing.T) []Packet {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Packet
	for _, b := range s.packets {
		p, err := DecodePacket(b)
		if err != nil {
			t.Fatalf("DecodePacket: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func result(bass float64, beat bool, ts time.Time) *analysis.Result {
	return &analysis.Result{
		FrequencyData: analysis.FrequencyData{Amplitudes: []float64{0, 1, 2, 3}},
		Features:      analysis.Features{BassLevel: bass, BeatDetected: beat, Tempo: 128},
		Timestamp:     ts,
	}
}

func newTestPublisher(t *testing.T) (*UDPPublisher, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	p, err := NewUDPPublisher(time.Hour, sender)
	if err != nil {
		t.Fatalf("NewUDPPublisher: %v", err)
	}
	return p, sender
}

func TestPublishCoalescesResults(t *testing.T) {
	p, sender := newTestPublisher(t)
	ts := time.Unix(100, 0)

	p.Send(result(0.1, true, ts))
	p.Send(result(0.2, false, ts.Add(time.Millisecond)))
	p.Send(result(0.3, false, ts.Add(2*time.Millisecond)))
	p.publish()

	packets := sender.decoded(t)
	if len(packets) != 1 {
		t.Fatalf("sent %d packets, want 1", len(packets))
	}
	got := packets[0]
	if got.BassLevel != 0.3 || got.Timestamp != ts.Add(2*time.Millisecond).UnixNano() {
		t.Errorf("packet carries stale data: %+v", got)
	}
	if !got.Beat() {
		t.Error("a beat in a coalesced result must set FlagBeat")
	}
	if got.Tempo != 128 || len(got.Magnitudes) != 4 || got.Magnitudes[3] != 3 {
		t.Errorf("unexpected packet %+v", got)
	}
}

func TestPublishSkipsWithoutNewResults(t *testing.T) {
	p, sender := newTestPublisher(t)

	p.publish()
	p.Send(result(0.5, true, time.Unix(1, 0)))
	p.publish()
	p.publish()
	p.Send(result(0.5, false, time.Unix(2, 0)))
	p.publish()

	packets := sender.decoded(t)
	if len(packets) != 2 {
		t.Fatalf("sent %d packets, want 2", len(packets))
	}
	if packets[0].Sequence != 1 || packets[1].Sequence != 2 {
		t.Errorf("sequence numbers = %d, %d, want 1, 2", packets[0].Sequence, packets[1].Sequence)
	}
	if packets[1].Beat() {
		t.Error("beat flag carried over into a later packet")
	}
}

func TestPublisherTicks(t *testing.T) {
	sender := &recordingSender{}
	p, err := NewUDPPublisher(5*time.Millisecond, sender)
	if err != nil {
		t.Fatal(err)
	}
	p.Start()
	p.Start() // no-op

	p.Send(result(0.4, false, time.Now()))
	deadline := time.Now().Add(5 * time.Second)
	for len(sender.decoded(t)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no packet published")
		}
		time.Sleep(time.Millisecond)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sender.closed {
		t.Error("Close should close the sender")
	}
	if err := p.Send(result(0.4, false, time.Now())); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestPublisherRejectsOtherPayloads(t *testing.T) {
	p, _ := newTestPublisher(t)
	if err := p.Send("not a result"); err == nil {
		t.Error("expected an error for a non-result payload")
	}
}

func TestNewUDPPublisherValidation(t *testing.T) {
	if _, err := NewUDPPublisher(time.Second, nil); err == nil {
		t.Error("expected an error for a nil sender")
	}
	p, err := NewUDPPublisher(0, &recordingSender{})
	if err != nil {
		t.Fatal(err)
	}
	if p.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", p.interval, DefaultInterval)
	}
}

func TestPublishOverUDP(t *testing.T) {
	receiver := listenUDP(t)
	sender, err := NewUDPSender(receiver.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewUDPPublisher(time.Hour, sender)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	amps := make([]float64, analysis.FFTSize/2)
	amps[10] = 42
	p.Send(&analysis.Result{
		FrequencyData: analysis.FrequencyData{Amplitudes: amps},
		Features:      analysis.Features{BeatDetected: true},
		Timestamp:     time.Unix(5, 0),
	})
	p.publish()

	buf := make([]byte, 65536)
	receiver.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, _, err := receiver.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	pkt, err := DecodePacket(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if len(pkt.Magnitudes) != analysis.FFTSize/2 || pkt.Magnitudes[10] != 42 || !pkt.Beat() {
		t.Errorf("unexpected packet: count=%d mag[10]=%v beat=%v", len(pkt.Magnitudes), pkt.Magnitudes[10], pkt.Beat())
	}
}
