// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator

import (
	"context"
	"io"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/gyrobridge/pkg/mavlink"
)

// receive decodes everything read from r onto a channel
func receive(r io.Reader) <-chan *mavlink.Message {
	out := make(chan *mavlink.Message, 256)
	go func() {
		defer close(out)
		d := mavlink.NewDecoder(mavlink.WithChecksumValidation())
		buf := make([]byte, 256)
		for {
			n, err := r.Read(buf)
			if err != nil {
				return
			}
			for m, err := range d.Feed(buf[:n]) {
				if err == nil {
					out <- m
				}
			}
		}
	}()
	return out
}

func waitFor(t *testing.T, msgs <-chan *mavlink.Message, id uint8) *mavlink.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m, ok := <-msgs:
			require.True(t, ok, "link closed")
			if m.ID() == id {
				return m
			}
		case <-deadline:
			t.Fatalf("no %s received", mavlink.FormatMessageType(id))
		}
	}
}

func TestAttitude(t *testing.T) {
	a := Attitude(0)
	assert.Equal(t, uint32(0), a.TimeBootMs)
	assert.InDelta(t, 0.2, a.Pitch, 1e-6)

	for _, d := range []time.Duration{time.Second, time.Minute, time.Hour} {
		a := Attitude(d)
		assert.LessOrEqual(t, math.Abs(float64(a.Yaw)), math.Pi+1e-6)
		assert.LessOrEqual(t, math.Abs(float64(a.Roll)), 0.3+1e-6)
	}
	assert.Equal(t, uint32(1500), Attitude(1500*time.Millisecond).TimeBootMs)
}

func TestVehicle_HeartbeatsStopAfterLimit(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	v := NewVehicle(Config{HeartbeatInterval: 5 * time.Millisecond, StopHeartbeatAfter: 3})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Serve(ctx, server) }()

	msgs := receive(client)
	for i := 0; i < 3; i++ {
		m := waitFor(t, msgs, mavlink.MsgHeartbeat)
		hb, err := mavlink.DecodeHeartbeat(m)
		require.NoError(t, err)
		assert.Equal(t, uint8(mavlink.MavTypeQuadrotor), hb.Type)
		assert.Equal(t, uint8(mavlink.MavlinkVersion), hb.MavlinkVersion)
	}

	select {
	case m := <-msgs:
		t.Fatalf("unexpected %s after heartbeat limit", mavlink.FormatMessageType(m.ID()))
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
	server.Close()
	assert.Equal(t, 3, v.Heartbeats())
}

func TestVehicle_AttitudeOnRequest(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	v := NewVehicle(Config{HeartbeatInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go v.Serve(ctx, server)

	msgs := receive(client)
	waitFor(t, msgs, mavlink.MsgHeartbeat)

	gcs := mavlink.NewEncoder(mavlink.SystemID, mavlink.ComponentID)
	frame, err := gcs.EncodePayload(mavlink.NewRequestDataStream(mavlink.DataStreamExtra1, 100, true))
	require.NoError(t, err)
	_, err = client.Write(frame)
	require.NoError(t, err)

	m := waitFor(t, msgs, mavlink.MsgAttitude)
	assert.Equal(t, uint8(1), m.SystemID())
	_, err = mavlink.DecodeAttitude(m)
	require.NoError(t, err)
	waitFor(t, msgs, mavlink.MsgAttitude)
}

func TestVehicle_EOFEndsServe(t *testing.T) {
	client, server := net.Pipe()

	v := NewVehicle(Config{HeartbeatInterval: time.Hour})
	done := make(chan error, 1)
	go func() { done <- v.Serve(context.Background(), server) }()

	msgs := receive(client)
	waitFor(t, msgs, mavlink.MsgHeartbeat)
	client.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServer_AcceptsLinks(t *testing.T) {
	s, err := Listen("127.0.0.1:0", Config{HeartbeatInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	msgs := receive(conn)
	waitFor(t, msgs, mavlink.MsgHeartbeat)
	waitFor(t, msgs, mavlink.MsgHeartbeat)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestListen_BadAddress(t *testing.T) {
	_, err := Listen("127.0.0.1:99999", DefaultConfig())
	assert.Error(t, err)
}
