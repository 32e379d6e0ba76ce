// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"io"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"go.bug.st/serial"
)

// channel is an open byte stream: a serial port, a TCP connection or a
// WebSocket carrying binary messages.
type channel = io.ReadWriteCloser

// openSerial opens a serial port at 8N1 without flow control
func openSerial(device string, baud int) (channel, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, errors.Annotatef(err, "open serial port %s", device)
	}
	return port, nil
}

// openNetwork dials a TCP endpoint, blocking up to cfg.OpenTimeout
func openNetwork(cfg Config) (channel, error) {
	conn, err := net.DialTimeout("tcp", cfg.Address(), cfg.OpenTimeout)
	if err != nil {
		return nil, errors.Annotatef(err, "connect %s", cfg.Address())
	}
	return conn, nil
}

// wsChannel flattens the binary messages of a WebSocket into one byte
// stream. Message boundaries carry no meaning for MAVLink, so a frame may
// span messages and a message may hold several frames. Text messages are
// skipped. Read is only called from the transport's reader goroutine.
type wsChannel struct {
	conn *websocket.Conn
	cur  io.Reader // body of the binary message being drained
	err  error     // sticky read failure
}

func (w *wsChannel) Read(p []byte) (int, error) {
	for w.err == nil {
		if w.cur == nil {
			kind, r, err := w.conn.NextReader()
			if err != nil {
				w.err = errors.Wrap(err, ErrDisconnected)
				break
			}
			if kind == websocket.BinaryMessage {
				w.cur = r
			}
			continue
		}

		n, err := w.cur.Read(p)
		if err == io.EOF {
			w.cur = nil
			err = nil
		}
		if err != nil {
			w.err = err
			break
		}
		if n > 0 {
			return n, nil
		}
	}
	return 0, w.err
}

func (w *wsChannel) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsChannel) Close() error {
	return w.conn.Close()
}

// openWebSocket dials a ws:// or wss:// endpoint with optional HTTP Basic auth
func openWebSocket(cfg Config) (channel, error) {
	ws := cfg.WebSocket

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.OpenTimeout,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: ws.SkipVerify},
	}

	headers := http.Header{}
	if ws.Username != "" && ws.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(ws.Username + ":" + ws.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OpenTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, ws.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, errors.Annotatef(err, "websocket %s (HTTP %d)", ws.URL, resp.StatusCode)
		}
		return nil, errors.Annotatef(err, "websocket %s", ws.URL)
	}
	return &wsChannel{conn: conn}, nil
}
