// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"bytes"
	"fmt"
	"time"
)

// Message represents one MAVLink v1 frame.
//
// Messages are immutable once emitted by the Decoder or built by NewMessage.
type Message struct {
	id          uint8
	seq         uint8
	systemID    uint8
	componentID uint8
	length      uint8
	payload     [MaxPayloadSize]byte
	checksum    uint16
	timestamp   time.Time
}

// NewMessage creates a message and fills in its X.25 checksum.
func NewMessage(id, seq, systemID, componentID uint8, payload []byte) (*Message, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: length=%d max=%d", ErrPayloadTooLong, len(payload), MaxPayloadSize)
	}
	m := &Message{
		id:          id,
		seq:         seq,
		systemID:    systemID,
		componentID: componentID,
		length:      uint8(len(payload)),
		timestamp:   time.Now(),
	}
	copy(m.payload[:], payload)
	m.checksum = m.computeChecksum()
	return m, nil
}

// WithChecksum returns a copy of the message carrying the given checksum.
// Replayed captures use it to reproduce frames bit-exactly.
func (m *Message) WithChecksum(checksum uint16) *Message {
	c := *m
	c.checksum = checksum
	return &c
}

// ID returns the message id
func (m *Message) ID() uint8 {
	return m.id
}

// Seq returns the sender's sequence number
func (m *Message) Seq() uint8 {
	return m.seq
}

// SystemID returns the source system id
func (m *Message) SystemID() uint8 {
	return m.systemID
}

// ComponentID returns the source component id
func (m *Message) ComponentID() uint8 {
	return m.componentID
}

// Length returns the declared payload length
func (m *Message) Length() uint8 {
	return m.length
}

// Payload returns a copy of the payload bytes
func (m *Message) Payload() []byte {
	return append([]byte(nil), m.payload[:m.length]...)
}

// Checksum returns the checksum as captured from the wire
func (m *Message) Checksum() uint16 {
	return m.checksum
}

// Timestamp returns when the message was decoded or built
func (m *Message) Timestamp() time.Time {
	return m.timestamp
}

// ChecksumValid reports whether the captured checksum matches the computed
// one. Messages without a known CRC_EXTRA always report true.
func (m *Message) ChecksumValid() bool {
	if _, ok := crcExtra[m.id]; !ok {
		return true
	}
	return m.checksum == m.computeChecksum()
}

// SameContent compares everything except checksum and timestamp.
func (m *Message) SameContent(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.id == o.id &&
		m.seq == o.seq &&
		m.systemID == o.systemID &&
		m.componentID == o.componentID &&
		m.length == o.length &&
		bytes.Equal(m.payload[:m.length], o.payload[:o.length])
}

// MarshalBinary returns the wire representation of the message.
func (m *Message) MarshalBinary() ([]byte, error) {
	return m.AppendFrame(make([]byte, 0, 1+HeaderSize+int(m.length)+ChecksumSize)), nil
}

// AppendFrame appends the wire representation to b.
func (m *Message) AppendFrame(b []byte) []byte {
	b = append(b, StartByte)
	b = append(b, m.header()...)
	b = append(b, m.payload[:m.length]...)
	return append(b, byte(m.checksum), byte(m.checksum>>8))
}

func (m *Message) header() []byte {
	return []byte{m.length, m.seq, m.systemID, m.componentID, m.id}
}

func (m *Message) computeChecksum() uint16 {
	return frameChecksum(m.header(), m.payload[:m.length], m.id)
}
