// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

// Payload is implemented by message types the encoder can serialize.
type Payload interface {
	MessageID() uint8
	MarshalPayload() []byte
}

// Encoder builds outgoing frames for one source system/component and keeps
// the outgoing sequence counter.
type Encoder struct {
	seq         uint8
	systemID    uint8
	componentID uint8
}

// NewEncoder creates a frame encoder
func NewEncoder(systemID, componentID uint8) *Encoder {
	return &Encoder{systemID: systemID, componentID: componentID}
}

// Message builds the next message, advancing the sequence number.
func (e *Encoder) Message(id uint8, payload []byte) (*Message, error) {
	m, err := NewMessage(id, e.seq, e.systemID, e.componentID, payload)
	if err != nil {
		return nil, err
	}
	e.seq++
	return m, nil
}

// Encode returns the wire bytes of the next frame.
func (e *Encoder) Encode(id uint8, payload []byte) ([]byte, error) {
	m, err := e.Message(id, payload)
	if err != nil {
		return nil, err
	}
	return m.MarshalBinary()
}

// EncodePayload encodes a typed message
func (e *Encoder) EncodePayload(p Payload) ([]byte, error) {
	return e.Encode(p.MessageID(), p.MarshalPayload())
}

// NextSeq returns the sequence number the next frame will carry
func (e *Encoder) NextSeq() uint8 {
	return e.seq
}
