// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Test Helpers
// ============================================================

func listen(t *testing.T) (net.Listener, NetworkConfig) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	addr := ln.Addr().(*net.TCPAddr)
	return ln, NetworkConfig{Host: "127.0.0.1", Port: addr.Port}
}

func accept(t *testing.T, ln net.Listener) <-chan net.Conn {
	t.Helper()
	ch := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(ch)
			return
		}
		ch <- conn
	}()
	return ch
}

func waitConn(t *testing.T, ch <-chan net.Conn) net.Conn {
	t.Helper()
	select {
	case conn, ok := <-ch:
		require.True(t, ok, "accept failed")
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for connection")
		return nil
	}
}

// nextData handles events until data arrives
func nextData(t *testing.T, tr *Transport) []byte {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-tr.Events():
			if data := tr.Handle(ev); data != nil {
				return data
			}
		case <-deadline:
			t.Fatal("timeout waiting for data")
			return nil
		}
	}
}

// waitDisconnect handles events until the transport notices the disconnect
func waitDisconnect(t *testing.T, tr *Transport) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for tr.IsConnected() {
		select {
		case ev := <-tr.Events():
			tr.Handle(ev)
		case <-deadline:
			t.Fatal("timeout waiting for disconnect")
		}
	}
}

// ============================================================
// Network Transport Tests
// ============================================================

func TestNetwork_OpenReceiveSend(t *testing.T) {
	ln, netCfg := listen(t)
	accepted := accept(t, ln)

	tr := New(Config{Kind: KindNetwork, Network: netCfg})
	defer tr.Stop()

	require.NoError(t, tr.Open())
	assert.True(t, tr.IsConnected())
	server := waitConn(t, accepted)

	_, err := server.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), nextData(t, tr))

	require.NoError(t, tr.Send([]byte("world")))
	buf := make([]byte, 5)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf))
}

func TestNetwork_OpenFailure(t *testing.T) {
	ln, netCfg := listen(t)
	ln.Close()

	tr := New(Config{Kind: KindNetwork, Network: netCfg})
	defer tr.Stop()

	assert.Error(t, tr.Open())
	assert.False(t, tr.IsConnected())
	assert.Nil(t, tr.ReconnectC())
}

func TestNetwork_SendWithoutChannel(t *testing.T) {
	ln, netCfg := listen(t)
	ln.Close()

	tr := New(Config{Kind: KindNetwork, Network: netCfg})
	defer tr.Stop()

	err := tr.Send([]byte{1})
	require.Error(t, err)
	assert.Equal(t, ErrNotConnected, errors.Cause(err))
}

func TestNetwork_SendOpensImplicitly(t *testing.T) {
	ln, netCfg := listen(t)
	accepted := accept(t, ln)

	tr := New(Config{Kind: KindNetwork, Network: netCfg})
	defer tr.Stop()

	require.False(t, tr.IsConnected())
	require.NoError(t, tr.Send([]byte{0xFE}))
	assert.True(t, tr.IsConnected())

	server := waitConn(t, accepted)
	buf := make([]byte, 1)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFE), buf[0])
}

func TestNetwork_ReconnectAfterDisconnect(t *testing.T) {
	ln, netCfg := listen(t)
	accepted := accept(t, ln)

	tr := New(Config{Kind: KindNetwork, Network: netCfg, ReconnectInterval: 20 * time.Millisecond})
	defer tr.Stop()

	require.NoError(t, tr.Open())
	server := waitConn(t, accepted)

	// Remote hangs up
	accepted = accept(t, ln)
	server.Close()
	waitDisconnect(t, tr)
	require.NotNil(t, tr.ReconnectC())

	select {
	case <-tr.ReconnectC():
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect ticker did not fire")
	}
	require.NoError(t, tr.Retry())
	assert.True(t, tr.IsConnected())
	assert.Nil(t, tr.ReconnectC(), "ticker must disarm after reconnect")

	server = waitConn(t, accepted)
	_, err := server.Write([]byte{42})
	require.NoError(t, err)
	assert.Equal(t, []byte{42}, nextData(t, tr))
}

func TestNetwork_RetryKeepsTickerWhileDown(t *testing.T) {
	ln, netCfg := listen(t)
	accepted := accept(t, ln)

	tr := New(Config{Kind: KindNetwork, Network: netCfg, ReconnectInterval: 20 * time.Millisecond})
	defer tr.Stop()

	require.NoError(t, tr.Open())
	server := waitConn(t, accepted)
	ln.Close()
	server.Close()
	waitDisconnect(t, tr)

	<-tr.ReconnectC()
	assert.Error(t, tr.Retry())
	assert.NotNil(t, tr.ReconnectC())
}

func TestNetwork_CloseDisarmsReconnect(t *testing.T) {
	ln, netCfg := listen(t)
	accepted := accept(t, ln)

	tr := New(Config{Kind: KindNetwork, Network: netCfg, ReconnectInterval: 20 * time.Millisecond})
	defer tr.Stop()

	require.NoError(t, tr.Open())
	waitConn(t, accepted).Close()
	waitDisconnect(t, tr)
	require.NotNil(t, tr.ReconnectC())

	tr.Close()
	assert.Nil(t, tr.ReconnectC())
	assert.False(t, tr.IsConnected())

	// Idempotent
	tr.Close()
	assert.Nil(t, tr.ReconnectC())
}

func TestNetwork_StaleEventsDropped(t *testing.T) {
	ln, netCfg := listen(t)
	first := accept(t, ln)

	tr := New(Config{Kind: KindNetwork, Network: netCfg})
	defer tr.Stop()

	require.NoError(t, tr.Open())
	waitConn(t, first)
	staleGen := tr.gen

	second := accept(t, ln)
	require.NoError(t, tr.Open())
	waitConn(t, second)

	assert.Nil(t, tr.Handle(Event{Gen: staleGen, Err: io.EOF}))
	assert.Nil(t, tr.Handle(Event{Gen: staleGen, Data: []byte{1}}))
	assert.True(t, tr.IsConnected())
	assert.Equal(t, []byte{2}, tr.Handle(Event{Gen: tr.gen, Data: []byte{2}}))
}

func TestNetwork_FailoverIsNoop(t *testing.T) {
	ln, netCfg := listen(t)
	accepted := accept(t, ln)

	tr := New(Config{Kind: KindNetwork, Network: netCfg})
	defer tr.Stop()

	require.NoError(t, tr.Open())
	waitConn(t, accepted)
	gen := tr.gen

	assert.NoError(t, tr.Failover())
	assert.True(t, tr.IsConnected())
	assert.Equal(t, gen, tr.gen)
}

func TestStop(t *testing.T) {
	ln, netCfg := listen(t)
	accepted := accept(t, ln)

	tr := New(Config{Kind: KindNetwork, Network: netCfg})
	require.NoError(t, tr.Open())
	waitConn(t, accepted)

	done := make(chan struct{})
	go func() {
		tr.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	assert.Equal(t, ErrStopped, tr.Open())
	assert.False(t, tr.IsConnected())
}

// ============================================================
// Serial Transport Tests
// ============================================================

func TestSerial_FailoverCyclesDevices(t *testing.T) {
	dir := t.TempDir()
	devices := []string{dir + "/ttyACM1", dir + "/ttyACM0", dir + "/ttyUSB0"}

	tr := New(Config{Kind: KindSerial, Serial: SerialConfig{Device: "ttyACM[0-9]"}},
		WithPortLister(func() ([]string, error) { return devices, nil }))
	defer tr.Stop()

	// The devices do not exist, so every open fails but selection advances
	assert.Error(t, tr.Open())
	assert.Equal(t, dir+"/ttyACM0", tr.Device())
	assert.Error(t, tr.Failover())
	assert.Equal(t, dir+"/ttyACM1", tr.Device())
	assert.Error(t, tr.Failover())
	assert.Equal(t, dir+"/ttyACM0", tr.Device())
	assert.Contains(t, tr.Describe(), dir+"/ttyACM0")
	assert.Nil(t, tr.ReconnectC())
}

func TestSerial_NoMatchUsesLiteral(t *testing.T) {
	tr := New(Config{Kind: KindSerial, Serial: SerialConfig{Device: "/nonexistent/ttyX"}},
		WithPortLister(func() ([]string, error) { return nil, errors.New("no enumeration") }))
	defer tr.Stop()

	assert.Error(t, tr.Open())
	assert.Equal(t, "/nonexistent/ttyX", tr.Device())
}

func TestSerial_BadBaud(t *testing.T) {
	tr := New(Config{Kind: KindSerial, Serial: SerialConfig{Device: "x", Baud: "abc"}},
		WithPortLister(func() ([]string, error) { return nil, nil }))
	defer tr.Stop()

	err := tr.Open()
	assert.True(t, errors.IsNotValid(err))
}

func TestSerial_ReadErrorClosesWithoutTicker(t *testing.T) {
	tr := New(Config{Kind: KindSerial, Serial: SerialConfig{Device: "x"}})
	defer tr.Stop()

	// Simulate an open port
	client, server := net.Pipe()
	defer server.Close()
	tr.attach(client)
	require.True(t, tr.IsConnected())

	server.Close()
	waitDisconnect(t, tr)
	assert.Nil(t, tr.ReconnectC())
}

// ============================================================
// WebSocket Transport Tests
// ============================================================

func TestWebSocket_BinaryFramesAndAuth(t *testing.T) {
	upgrader := websocket.Upgrader{}
	authSeen := make(chan bool, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		authSeen <- ok && user == "admin" && pass == "secret"

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("ignored"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0xFE, 0x01})

		_, data, err := conn.ReadMessage()
		if err == nil {
			_ = conn.WriteMessage(websocket.BinaryMessage, data)
		}
	}))
	defer srv.Close()

	tr := New(Config{Kind: KindWebSocket, WebSocket: WebSocketConfig{
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		Username: "admin",
		Password: "secret",
	}})
	defer tr.Stop()

	require.NoError(t, tr.Open())
	assert.True(t, <-authSeen)
	assert.Equal(t, []byte{0xFE, 0x01}, nextData(t, tr))

	require.NoError(t, tr.Send([]byte("echo")))
	assert.Equal(t, []byte("echo"), nextData(t, tr))

	// Server handler returns and closes; the transport starts reconnecting
	waitDisconnect(t, tr)
	assert.NotNil(t, tr.ReconnectC())
}

func TestWebSocket_StreamsAcrossMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0xFE, 0x09, 0x01})
		_ = conn.WriteMessage(websocket.BinaryMessage, nil)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("status"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x02, 0x03})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	ch := &wsChannel{conn: conn}
	defer ch.Close()

	var got []byte
	buf := make([]byte, 2)
	for {
		n, err := ch.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			assert.Equal(t, ErrDisconnected, errors.Cause(err))
			break
		}
		require.NotZero(t, n)
	}
	assert.Equal(t, []byte{0xFE, 0x09, 0x01, 0x02, 0x03}, got)

	// The failure sticks
	_, err = ch.Read(buf)
	assert.Equal(t, ErrDisconnected, errors.Cause(err))
}

func TestWebSocket_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := New(Config{Kind: KindWebSocket, WebSocket: WebSocketConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}})
	defer tr.Stop()

	err := tr.Open()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}
