// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge runs the event loop that turns link bytes into messages,
// feeds heartbeats to the liveness monitor and forwards attitude to a sink.
package bridge

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/Thermoquad/gyrobridge/pkg/liveness"
	"github.com/Thermoquad/gyrobridge/pkg/mavlink"
	"github.com/Thermoquad/gyrobridge/pkg/sink"
	"github.com/Thermoquad/gyrobridge/pkg/transport"
)

// Link is the transport as seen by the bridge
type Link interface {
	Open() error
	Send(data []byte) error
	Failover() error
	IsConnected() bool
	Events() <-chan transport.Event
	Handle(ev transport.Event) []byte
	ReconnectC() <-chan time.Time
	Retry() error
	Describe() string
	Stop()
}

var _ Link = (*transport.Transport)(nil)

// Options configure a Bridge
type Options struct {
	Liveness liveness.Config
	Decoder  []mavlink.Option

	// Data stream requested once the link is live
	StreamID      uint8
	StreamRate    uint16
	DisableStream bool

	// OnMessage sees every decoded message before dispatch
	OnMessage func(*mavlink.Message)
	// OnStatus is called from the loop after state changes
	OnStatus func(Status)
}

// DefaultOptions requests EXTRA1 (attitude) at 10 Hz
func DefaultOptions() Options {
	return Options{
		Liveness:   liveness.DefaultConfig(),
		StreamID:   mavlink.DataStreamExtra1,
		StreamRate: 10,
	}
}

// Status is a snapshot of the bridge for display
type Status struct {
	Endpoint      string
	Connected     bool
	Liveness      liveness.State
	Lost          int
	Budget        int
	Heartbeats    uint64
	Failovers     uint64
	LastHeartbeat time.Time

	Attitude     mavlink.Attitude
	HaveAttitude bool
	Sent         uint64

	Messages       uint64
	ChecksumErrors uint64
	FramingErrors  uint64
}

// Bridge owns the decoder, encoder and monitor. Everything except Stop runs
// on the goroutine calling Run.
type Bridge struct {
	link Link
	sink sink.Sink
	opts Options

	decoder *mavlink.Decoder
	encoder *mavlink.Encoder
	monitor *liveness.Monitor
	stats   *mavlink.Statistics
	timer   *time.Timer

	attitude     mavlink.Attitude
	haveAttitude bool
	sent         uint64
}

// New creates a bridge. Nothing is opened until Start.
func New(link Link, s sink.Sink, opts Options) *Bridge {
	if s == nil {
		s = sink.Discard{}
	}
	if opts.StreamRate == 0 {
		opts.StreamRate = 10
	}
	return &Bridge{
		link:    link,
		sink:    s,
		opts:    opts,
		decoder: mavlink.NewDecoder(opts.Decoder...),
		encoder: mavlink.NewEncoder(mavlink.SystemID, mavlink.ComponentID),
		monitor: liveness.NewMonitor(opts.Liveness),
		stats:   mavlink.NewStatistics(),
	}
}

// Start opens the link and arms the grace-period timer. An error here is
// fatal to the caller.
func (b *Bridge) Start() error {
	if err := b.link.Open(); err != nil {
		return errors.Annotatef(err, "failed to open %s", b.link.Describe())
	}
	b.decoder.Reset()
	b.armTimer()
	b.notify()
	return nil
}

// Run processes link events and timers until ctx is done
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-b.link.Events():
			if data := b.link.Handle(ev); data != nil {
				b.Feed(data)
			} else if ev.Err != nil {
				b.notify()
			}

		case <-b.timerC():
			b.expire()

		case <-b.link.ReconnectC():
			if err := b.link.Retry(); err == nil {
				b.decoder.Reset()
				glog.Infof("reconnected: %s", b.link.Describe())
			}
			b.notify()
		}
	}
}

// Feed decodes received bytes and dispatches every completed message
func (b *Bridge) Feed(data []byte) {
	for m, err := range b.decoder.Feed(data) {
		if err != nil {
			b.stats.Update(nil, err, nil)
			glog.V(1).Infof("framing error: %v", err)
			continue
		}
		b.stats.Update(m, nil, nil)
		b.HandleMessage(m)
	}
}

// HandleMessage dispatches one message by id
func (b *Bridge) HandleMessage(m *mavlink.Message) {
	if b.opts.OnMessage != nil {
		b.opts.OnMessage(m)
	}

	switch m.ID() {
	case mavlink.MsgHeartbeat:
		glog.V(2).Infof("HEARTBEAT sys=%d comp=%d", m.SystemID(), m.ComponentID())
		action := b.monitor.Heartbeat()
		b.armTimer()
		if action == liveness.ActionInitialize {
			glog.Infof("link live: %s", b.link.Describe())
			b.initialize()
		}
		b.notify()

	case mavlink.MsgAttitude:
		att, err := mavlink.DecodeAttitude(m)
		if err != nil {
			glog.V(1).Infof("attitude: %v", err)
			return
		}
		glog.V(2).Infof("ATTITUDE roll=%g pitch=%g yaw=%g", att.Roll, att.Pitch, att.Yaw)
		b.sink.SendAngles(att.Roll, att.Pitch, att.Yaw)
		b.attitude = att
		b.haveAttitude = true
		b.sent++
		b.notify()
	}
}

func (b *Bridge) initialize() {
	if b.opts.DisableStream {
		return
	}
	if err := b.RequestDataStream(b.opts.StreamID, b.opts.StreamRate); err != nil {
		glog.Warningf("stream request failed: %v", err)
	}
}

// RequestDataStream asks the vehicle to start sending a data stream
func (b *Bridge) RequestDataStream(stream uint8, rate uint16) error {
	frame, err := b.encoder.EncodePayload(mavlink.NewRequestDataStream(stream, rate, true))
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(b.link.Send(frame))
}

func (b *Bridge) expire() {
	switch b.monitor.Expire() {
	case liveness.ActionWarn:
		glog.Warningf("MAVLink connection lost (%d/%d)", b.monitor.Lost(), b.monitor.Config().MaxLost)

	case liveness.ActionFailover:
		glog.Warningf("serious connection loss, trying to reconnect")
		b.decoder.Reset()
		if err := b.link.Failover(); err != nil {
			glog.Errorf("failover: %v", err)
		} else {
			glog.Infof("new interface: %s", b.link.Describe())
		}
	}
	b.armTimer()
	b.notify()
}

// armTimer (re)starts the life timer with the monitor's current interval
func (b *Bridge) armTimer() {
	d := b.monitor.Interval()
	if b.timer == nil {
		b.timer = time.NewTimer(d)
		return
	}
	b.timer.Reset(d)
}

func (b *Bridge) timerC() <-chan time.Time {
	if b.timer == nil {
		return nil
	}
	return b.timer.C
}

// Status returns a snapshot. Call it from the loop goroutine (OnStatus) or
// after Run returned.
func (b *Bridge) Status() Status {
	return Status{
		Endpoint:       b.link.Describe(),
		Connected:      b.link.IsConnected(),
		Liveness:       b.monitor.State(),
		Lost:           b.monitor.Lost(),
		Budget:         b.monitor.Budget(),
		Heartbeats:     b.monitor.Heartbeats(),
		Failovers:      b.monitor.Failovers(),
		LastHeartbeat:  b.monitor.LastHeartbeat(),
		Attitude:       b.attitude,
		HaveAttitude:   b.haveAttitude,
		Sent:           b.sent,
		Messages:       b.stats.TotalMessages,
		ChecksumErrors: b.stats.ChecksumErrors,
		FramingErrors:  b.stats.FramingErrors,
	}
}

// Statistics returns the decoder statistics
func (b *Bridge) Statistics() *mavlink.Statistics {
	return b.stats
}

func (b *Bridge) notify() {
	if b.opts.OnStatus != nil {
		b.opts.OnStatus(b.Status())
	}
}

// Stop releases the timer, closes the link and waits for the sink. Call it
// after Run returned.
func (b *Bridge) Stop() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.link.Stop()
	if err := b.sink.Close(); err != nil {
		glog.Warningf("sink close: %v", err)
	}
}
