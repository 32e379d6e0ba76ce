// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"errors"
	"fmt"
	"iter"
	"time"
)

var (
	// ErrPayloadTooLong is returned when a frame declares more payload than
	// the decoder can hold. The frame is dropped and the decoder goes idle.
	ErrPayloadTooLong = errors.New("payload length exceeds buffer capacity")

	// ErrChecksumMismatch is only returned in strict checksum mode.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// State is the position of the decoder within a frame
type State int

const (
	StateIdle State = iota
	StateReadingHeader
	StateReadingPayload
	StateReadingChecksum
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateReadingHeader:
		return "READING_HEADER"
	case StateReadingPayload:
		return "READING_PAYLOAD"
	case StateReadingChecksum:
		return "READING_CHECKSUM"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// Decoder reconstructs frames from a byte stream delivered in arbitrary
// chunks. Use one decoder per receive stream; it is not safe for concurrent
// use.
//
// A start marker seen in the middle of a frame is ordinary frame content:
// the decoder does not resynchronize until the current frame completes.
type Decoder struct {
	state    State
	offset   int
	header   [HeaderSize]byte
	checksum [ChecksumSize]byte
	msg      Message

	maxPayload int
	strict     bool
}

// Option configures a Decoder
type Option func(*Decoder)

// WithMaxPayload limits the accepted declared payload length.
func WithMaxPayload(n int) Option {
	return func(d *Decoder) {
		if n >= 0 && n <= MaxPayloadSize {
			d.maxPayload = n
		}
	}
}

// WithChecksumValidation drops frames whose X.25 checksum does not match.
// Without it checksums are captured but never checked.
func WithChecksumValidation() Option {
	return func(d *Decoder) {
		d.strict = true
	}
}

// NewDecoder creates a new frame decoder
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{maxPayload: MaxPayloadSize}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reset drops any partial frame and returns to idle
func (d *Decoder) Reset() {
	d.state = StateIdle
	d.offset = 0
	d.msg = Message{}
}

// State returns the current decoder state
func (d *Decoder) State() State {
	return d.state
}

// Strict reports whether checksum validation is enabled
func (d *Decoder) Strict() bool {
	return d.strict
}

// Feed decodes a chunk of bytes. The returned sequence yields every frame
// (or framing error) completed by the chunk, in arrival order. Iterating to
// the end consumes the whole chunk; stopping early leaves the remaining
// bytes undecoded.
func (d *Decoder) Feed(data []byte) iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		for _, b := range data {
			msg, err := d.DecodeByte(b)
			if msg == nil && err == nil {
				continue
			}
			if !yield(msg, err) {
				return
			}
		}
	}
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed message, or nil if the frame is incomplete.
func (d *Decoder) DecodeByte(b byte) (*Message, error) {
	switch d.state {
	case StateIdle:
		// Anything before a start marker is noise
		if b == StartByte {
			d.state = StateReadingHeader
			d.offset = 0
		}
		return nil, nil

	case StateReadingHeader:
		d.header[d.offset] = b
		d.offset++
		if d.offset < HeaderSize {
			return nil, nil
		}
		d.offset = 0

		length := d.header[0]
		if int(length) > d.maxPayload {
			d.Reset()
			return nil, fmt.Errorf("%w: length=%d max=%d", ErrPayloadTooLong, length, d.maxPayload)
		}
		d.msg = Message{
			length:      length,
			seq:         d.header[1],
			systemID:    d.header[2],
			componentID: d.header[3],
			id:          d.header[4],
		}
		if length == 0 {
			d.state = StateReadingChecksum
		} else {
			d.state = StateReadingPayload
		}
		return nil, nil

	case StateReadingPayload:
		d.msg.payload[d.offset] = b
		d.offset++
		if d.offset >= int(d.msg.length) {
			d.offset = 0
			d.state = StateReadingChecksum
		}
		return nil, nil

	case StateReadingChecksum:
		d.checksum[d.offset] = b
		d.offset++
		if d.offset < ChecksumSize {
			return nil, nil
		}

		msg := d.msg
		msg.checksum = uint16(d.checksum[0]) | uint16(d.checksum[1])<<8
		msg.timestamp = time.Now()
		d.Reset()

		if d.strict && !msg.ChecksumValid() {
			return nil, fmt.Errorf("%w: msg=%d got=0x%04X want=0x%04X",
				ErrChecksumMismatch, msg.id, msg.checksum, msg.computeChecksum())
		}
		return &msg, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}
