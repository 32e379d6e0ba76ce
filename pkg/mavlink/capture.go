// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CaptureRecord is one message in a capture file. A capture file is a CBOR
// sequence of records.
type CaptureRecord struct {
	Time        int64  `cbor:"1,keyasint"` // unix nanoseconds
	ID          uint8  `cbor:"2,keyasint"`
	Seq         uint8  `cbor:"3,keyasint"`
	SystemID    uint8  `cbor:"4,keyasint"`
	ComponentID uint8  `cbor:"5,keyasint"`
	Payload     []byte `cbor:"6,keyasint"`
	Checksum    uint16 `cbor:"7,keyasint"`
}

// NewCaptureRecord snapshots a message
func NewCaptureRecord(m *Message) CaptureRecord {
	return CaptureRecord{
		Time:        m.timestamp.UnixNano(),
		ID:          m.id,
		Seq:         m.seq,
		SystemID:    m.systemID,
		ComponentID: m.componentID,
		Payload:     m.Payload(),
		Checksum:    m.checksum,
	}
}

// Message rebuilds the recorded message, keeping the recorded checksum and
// timestamp.
func (r CaptureRecord) Message() (*Message, error) {
	m, err := NewMessage(r.ID, r.Seq, r.SystemID, r.ComponentID, r.Payload)
	if err != nil {
		return nil, err
	}
	m = m.WithChecksum(r.Checksum)
	m.timestamp = time.Unix(0, r.Time)
	return m, nil
}

// CaptureWriter appends messages to a capture stream
type CaptureWriter struct {
	enc   *cbor.Encoder
	count int
}

// NewCaptureWriter creates a writer on w
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{enc: cbor.NewEncoder(w)}
}

// Write appends one message
func (w *CaptureWriter) Write(m *Message) error {
	if err := w.enc.Encode(NewCaptureRecord(m)); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written
func (w *CaptureWriter) Count() int {
	return w.count
}

// CaptureReader reads messages back from a capture stream
type CaptureReader struct {
	dec *cbor.Decoder
}

// NewCaptureReader creates a reader on r
func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next recorded message, or io.EOF at the end of the stream
func (r *CaptureReader) Next() (*Message, error) {
	var rec CaptureRecord
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode capture record: %w", err)
	}
	return rec.Message()
}
