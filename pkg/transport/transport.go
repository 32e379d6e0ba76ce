// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport owns the byte channel to the vehicle: a serial device,
// a TCP socket or a WebSocket. It opens and closes the channel, delivers
// received chunks as events and applies the per-kind recovery policy
// (device cycling for serial, a reconnect ticker for network channels).
package transport

import (
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

var (
	// ErrNotConnected is returned when no channel is open and none could be opened
	ErrNotConnected = errors.New("not connected")

	// ErrDisconnected is reported when the remote end went away
	ErrDisconnected = errors.New("connection closed")

	// ErrStopped is returned by Open after Stop
	ErrStopped = errors.New("transport stopped")
)

const (
	readBufferSize  = 1024
	eventBufferSize = 64
)

// Event is one read result from the channel's reader goroutine
type Event struct {
	Gen  uint64
	Data []byte
	Err  error
}

// Transport drives one channel. Except for Stop, methods must be called from
// a single goroutine (the bridge loop); reader goroutines only post Events.
type Transport struct {
	cfg       Config
	listPorts PortLister
	device    string

	ch     channel
	gen    uint64
	events chan Event

	reconnect *time.Ticker
	alive     *alive.Alive
}

// Option configures a Transport
type Option func(*Transport)

// WithPortLister replaces serial port enumeration
func WithPortLister(l PortLister) Option {
	return func(t *Transport) {
		t.listPorts = l
	}
}

// New creates a transport. Nothing is opened until Open.
func New(cfg Config, opts ...Option) *Transport {
	t := &Transport{
		cfg:       cfg.withDefaults(),
		listPorts: ListPorts,
		events:    make(chan Event, eventBufferSize),
		alive:     alive.NewAlive(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the transport configuration
func (t *Transport) Config() Config {
	return t.cfg
}

// Kind returns the channel kind
func (t *Transport) Kind() Kind {
	return t.cfg.Kind
}

// Device returns the serial device chosen by the last open attempt
func (t *Transport) Device() string {
	return t.device
}

// Describe returns a description of the endpoint, with the resolved serial
// device when there is one.
func (t *Transport) Describe() string {
	if t.cfg.Kind == KindSerial && t.device != "" {
		c := t.cfg
		c.Serial.Device = t.device
		return c.Describe()
	}
	return t.cfg.Describe()
}

// Open opens the channel. Any previous channel is dropped first.
func (t *Transport) Open() error {
	if !t.alive.IsRunning() {
		return ErrStopped
	}
	t.closeChannel()

	var (
		ch  channel
		err error
	)
	switch t.cfg.Kind {
	case KindSerial:
		ch, err = t.openSerial()
	case KindNetwork:
		ch, err = openNetwork(t.cfg)
	case KindWebSocket:
		ch, err = openWebSocket(t.cfg)
	default:
		err = errors.NotValidf("transport kind %v", t.cfg.Kind)
	}
	if err != nil {
		return err
	}

	t.attach(ch)
	glog.Infof("connected: %s", t.Describe())
	return nil
}

func (t *Transport) openSerial() (channel, error) {
	baud, err := t.cfg.BaudRate()
	if err != nil {
		return nil, err
	}

	available, err := t.listPorts()
	if err != nil {
		glog.Warningf("serial enumeration failed: %v", err)
	}
	t.device = SelectDevice(t.cfg.Serial.Device, t.device, available)
	return openSerial(t.device, baud)
}

// attach makes ch the active channel and starts its reader
func (t *Transport) attach(ch channel) {
	t.gen++
	t.ch = ch
	t.disarmReconnect()

	if !t.alive.Add(1) {
		return
	}
	go t.read(t.gen, ch)
}

func (t *Transport) read(gen uint64, ch channel) {
	defer t.alive.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, err := ch.Read(buf)
		if n > 0 {
			if !t.post(Event{Gen: gen, Data: append([]byte(nil), buf[:n]...)}) {
				return
			}
		}
		if err != nil {
			t.post(Event{Gen: gen, Err: err})
			return
		}
	}
}

func (t *Transport) post(ev Event) bool {
	select {
	case t.events <- ev:
		return true
	case <-t.alive.StopChan():
		return false
	}
}

// TryOpen opens the channel unless it already is
func (t *Transport) TryOpen() error {
	if t.IsConnected() {
		return nil
	}
	return t.Open()
}

// IsConnected reports whether a channel is open and has not reported a
// disconnect.
func (t *Transport) IsConnected() bool {
	return t.ch != nil
}

// Send writes data, opening the channel first when needed. A failed write
// counts as a disconnect.
func (t *Transport) Send(data []byte) error {
	if err := t.TryOpen(); err != nil {
		return errors.Wrap(err, ErrNotConnected)
	}
	if _, err := t.ch.Write(data); err != nil {
		t.disconnected(err)
		return errors.Annotatef(err, "write to %s", t.Describe())
	}
	return nil
}

// Events delivers reader results. Pass each one to Handle.
func (t *Transport) Events() <-chan Event {
	return t.events
}

// Handle applies a reader event and returns the received bytes, if any.
// Events from channels that were closed since are dropped.
func (t *Transport) Handle(ev Event) []byte {
	if ev.Gen != t.gen || t.ch == nil {
		return nil
	}
	if ev.Err != nil {
		t.disconnected(ev.Err)
		return nil
	}
	return ev.Data
}

// disconnected closes the channel after a read or write failure. Network
// channels start retrying; serial recovery is left to failover.
func (t *Transport) disconnected(err error) {
	glog.Warningf("%s: connection lost: %v", t.Describe(), err)
	t.closeChannel()
	if t.cfg.Kind != KindSerial {
		t.armReconnect()
	}
}

// Failover moves to another channel after the link went silent. Serial
// transports close and reopen on the next matching device; network kinds
// rely on the reconnect ticker.
func (t *Transport) Failover() error {
	if t.cfg.Kind != KindSerial {
		return nil
	}
	t.closeChannel()
	return errors.Trace(t.Open())
}

// ReconnectC fires while a reconnect is pending. It is nil when disarmed.
func (t *Transport) ReconnectC() <-chan time.Time {
	if t.reconnect == nil {
		return nil
	}
	return t.reconnect.C
}

// Retry is called on each reconnect tick
func (t *Transport) Retry() error {
	if err := t.TryOpen(); err != nil {
		glog.V(1).Infof("reconnect %s: %v", t.Describe(), err)
		return err
	}
	return nil
}

func (t *Transport) armReconnect() {
	if t.reconnect != nil {
		return
	}
	t.reconnect = time.NewTicker(t.cfg.ReconnectInterval)
}

func (t *Transport) disarmReconnect() {
	if t.reconnect == nil {
		return
	}
	t.reconnect.Stop()
	t.reconnect = nil
}

func (t *Transport) closeChannel() {
	if t.ch == nil {
		return
	}
	if err := t.ch.Close(); err != nil {
		glog.V(1).Infof("close %s: %v", t.Describe(), err)
	}
	t.ch = nil
}

// Close releases the channel and disarms any pending reconnect. Calling it
// more than once is harmless.
func (t *Transport) Close() {
	t.closeChannel()
	t.disarmReconnect()
}

// Stop closes the transport and waits for reader goroutines to exit. The
// transport cannot be reopened afterwards.
func (t *Transport) Stop() {
	t.Close()
	t.alive.Stop()
	t.alive.Wait()
}
