// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Flags             | uint8          | 1            | Bit 0: beat detected    |
| Bass Level        | float32        | 4            |                         |
| Mid Level         | float32        | 4            |                         |
| Treble Level      | float32        | 4            |                         |
| Overall Level     | float32        | 4            |                         |
| Tempo             | float32        | 4            | BPM, 0 when unknown     |
| Dominant Freq     | float32        | 4            | Hz                      |
| Magnitude Count   | uint16         | 2            | Number of floats (N)    |
| Magnitudes        | []float32      | N * 4        | Spectrum magnitudes     |
+-----------------------------------------------------------------------------+
*/

// HeaderSize is the packet length without magnitudes.
const HeaderSize = 4 + 8 + 1 + 6*4 + 2

// FlagBeat marks a packet covering at least one detected beat.
const FlagBeat uint8 = 1 << 0

var ErrShortPacket = errors.New("udp: packet too short")

// Packet is the decoded form of one datagram.
type Packet struct {
	Sequence          uint32
	Timestamp         int64
	Flags             uint8
	BassLevel         float32
	MidLevel          float32
	TrebleLevel       float32
	OverallLevel      float32
	Tempo             float32
	DominantFrequency float32
	Magnitudes        []float32
}

// Beat reports whether FlagBeat is set.
func (p Packet) Beat() bool { return p.Flags&FlagBeat != 0 }

// header is the fixed-size prefix in wire order.
type header struct {
	Sequence          uint32
	Timestamp         int64
	Flags             uint8
	BassLevel         float32
	MidLevel          float32
	TrebleLevel       float32
	OverallLevel      float32
	Tempo             float32
	DominantFrequency float32
	Count             uint16
}

// writePacket encodes p into buf, which is reset first.
func writePacket(buf *bytes.Buffer, p *Packet) error {
	if len(p.Magnitudes) > 0xFFFF {
		return fmt.Errorf("udp: %d magnitudes exceed the packet limit", len(p.Magnitudes))
	}
	buf.Reset()

	h := header{
		Sequence:          p.Sequence,
		Timestamp:         p.Timestamp,
		Flags:             p.Flags,
		BassLevel:         p.BassLevel,
		MidLevel:          p.MidLevel,
		TrebleLevel:       p.TrebleLevel,
		OverallLevel:      p.OverallLevel,
		Tempo:             p.Tempo,
		DominantFrequency: p.DominantFrequency,
		Count:             uint16(len(p.Magnitudes)),
	}
	if err := binary.Write(buf, binary.BigEndian, &h); err != nil {
		return err
	}
	return binary.Write(buf, binary.BigEndian, p.Magnitudes)
}

// DecodePacket parses a datagram produced by UDPPublisher.
func DecodePacket(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(data))
	}

	var h header
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return Packet{}, fmt.Errorf("udp: header: %w", err)
	}
	if want := HeaderSize + 4*int(h.Count); len(data) < want {
		return Packet{}, fmt.Errorf("%w: %d bytes, header declares %d", ErrShortPacket, len(data), want)
	}

	p := Packet{
		Sequence:          h.Sequence,
		Timestamp:         h.Timestamp,
		Flags:             h.Flags,
		BassLevel:         h.BassLevel,
		MidLevel:          h.MidLevel,
		TrebleLevel:       h.TrebleLevel,
		OverallLevel:      h.OverallLevel,
		Tempo:             h.Tempo,
		DominantFrequency: h.DominantFrequency,
		Magnitudes:        make([]float32, h.Count),
	}
	if err := binary.Read(r, binary.BigEndian, p.Magnitudes); err != nil {
		return Packet{}, fmt.Errorf("udp: magnitudes: %w", err)
	}
	return p, nil
}
