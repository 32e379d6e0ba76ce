// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapture_RoundTrip(t *testing.T) {
	hb, err := NewMessage(MsgHeartbeat, 1, 1, 1, Heartbeat{MavlinkVersion: MavlinkVersion}.MarshalPayload())
	require.NoError(t, err)
	att, err := NewMessage(MsgAttitude, 2, 1, 1, Attitude{Roll: 0.3}.MarshalPayload())
	require.NoError(t, err)
	bad := att.WithChecksum(0xBEEF)

	var buf bytes.Buffer
	w := NewCaptureWriter(&buf)
	for _, m := range []*Message{hb, att, bad} {
		require.NoError(t, w.Write(m))
	}
	assert.Equal(t, 3, w.Count())

	r := NewCaptureReader(&buf)
	for _, want := range []*Message{hb, att, bad} {
		got, err := r.Next()
		require.NoError(t, err)
		assert.True(t, want.SameContent(got))
		assert.Equal(t, want.Checksum(), got.Checksum())
		assert.True(t, want.Timestamp().Equal(got.Timestamp()))
	}

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestCapture_Empty(t *testing.T) {
	_, err := NewCaptureReader(bytes.NewReader(nil)).Next()
	assert.Equal(t, io.EOF, err)
}

func TestCapture_Corrupt(t *testing.T) {
	_, err := NewCaptureReader(bytes.NewReader([]byte{0xFF, 0x00, 0x13})).Next()
	assert.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestCapture_OversizePayload(t *testing.T) {
	rec := CaptureRecord{ID: 1, Payload: make([]byte, MaxPayloadSize+1)}
	_, err := rec.Message()
	assert.ErrorIs(t, err, ErrPayloadTooLong)
}
