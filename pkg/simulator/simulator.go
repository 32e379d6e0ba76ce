// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator emulates a vehicle on a MAVLink link: it sends
// heartbeats, answers REQUEST_DATA_STREAM for EXTRA1 with ATTITUDE frames and
// can fall silent on request to exercise link loss handling.
package simulator

import (
	"context"
	"io"
	"math"
	"net"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/Thermoquad/gyrobridge/pkg/mavlink"
)

// Config shapes the simulated vehicle
type Config struct {
	SystemID          uint8
	HeartbeatInterval time.Duration
	// StopHeartbeatAfter stops heartbeats after this many; 0 never stops
	StopHeartbeatAfter int
	// AttitudeRate is used when a request carries rate 0
	AttitudeRate uint16
}

// DefaultConfig is a quadrotor sending heartbeats at 1 Hz
func DefaultConfig() Config {
	return Config{
		SystemID:          1,
		HeartbeatInterval: time.Second,
		AttitudeRate:      10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SystemID == 0 {
		c.SystemID = d.SystemID
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.AttitudeRate == 0 {
		c.AttitudeRate = d.AttitudeRate
	}
	return c
}

// Vehicle serves one link
type Vehicle struct {
	cfg        Config
	enc        *mavlink.Encoder
	start      time.Time
	heartbeats int
}

// NewVehicle creates a vehicle
func NewVehicle(cfg Config) *Vehicle {
	cfg = cfg.withDefaults()
	return &Vehicle{
		cfg:   cfg,
		enc:   mavlink.NewEncoder(cfg.SystemID, 1),
		start: time.Now(),
	}
}

// Heartbeats returns how many heartbeats were sent
func (v *Vehicle) Heartbeats() int {
	return v.heartbeats
}

// Attitude is the simulated orientation at elapsed time d: a slow roll and
// pitch oscillation while yawing at 0.1 rad/s.
func Attitude(d time.Duration) mavlink.Attitude {
	t := d.Seconds()
	yaw := math.Remainder(0.1*t, 2*math.Pi)
	return mavlink.Attitude{
		TimeBootMs: uint32(d / time.Millisecond),
		Roll:       float32(0.3 * math.Sin(t)),
		Pitch:      float32(0.2 * math.Cos(t)),
		Yaw:        float32(yaw),
		RollSpeed:  float32(0.3 * math.Cos(t)),
		PitchSpeed: float32(-0.2 * math.Sin(t)),
		YawSpeed:   0.1,
	}
}

// Serve runs the vehicle on conn until ctx is done or the link fails
func (v *Vehicle) Serve(ctx context.Context, conn io.ReadWriter) error {
	requests := make(chan mavlink.RequestDataStream, 4)
	readErr := make(chan error, 1)
	go func() {
		readErr <- v.readRequests(ctx, conn, requests)
	}()

	heartbeat := time.NewTicker(v.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	var attitude *time.Ticker
	defer func() {
		if attitude != nil {
			attitude.Stop()
		}
	}()
	attitudeC := func() <-chan time.Time {
		if attitude == nil {
			return nil
		}
		return attitude.C
	}

	if err := v.sendHeartbeat(conn); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			if err == io.EOF {
				return nil
			}
			return err

		case <-heartbeat.C:
			if err := v.sendHeartbeat(conn); err != nil {
				return err
			}

		case <-attitudeC():
			if err := v.send(conn, Attitude(time.Since(v.start))); err != nil {
				return err
			}

		case req := <-requests:
			if req.StreamID != mavlink.DataStreamExtra1 && req.StreamID != mavlink.DataStreamAll {
				glog.V(1).Infof("simulator: ignoring stream %s", mavlink.FormatDataStream(req.StreamID))
				continue
			}
			if attitude != nil {
				attitude.Stop()
				attitude = nil
			}
			if req.StartStop == 0 {
				glog.Infof("simulator: attitude stream stopped")
				continue
			}
			rate := req.MessageRate
			if rate == 0 {
				rate = v.cfg.AttitudeRate
			}
			glog.Infof("simulator: attitude stream at %d Hz", rate)
			attitude = time.NewTicker(time.Second / time.Duration(rate))
		}
	}
}

func (v *Vehicle) readRequests(ctx context.Context, r io.Reader, out chan<- mavlink.RequestDataStream) error {
	d := mavlink.NewDecoder(mavlink.WithChecksumValidation())
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if err != nil {
			return err
		}
		for m, err := range d.Feed(buf[:n]) {
			if err != nil {
				glog.V(1).Infof("simulator: %v", err)
				continue
			}
			if m.ID() != mavlink.MsgRequestDataStream {
				continue
			}
			req, err := mavlink.DecodeRequestDataStream(m)
			if err != nil {
				continue
			}
			select {
			case out <- req:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (v *Vehicle) sendHeartbeat(w io.Writer) error {
	if v.cfg.StopHeartbeatAfter > 0 && v.heartbeats >= v.cfg.StopHeartbeatAfter {
		return nil
	}
	v.heartbeats++
	if v.heartbeats == v.cfg.StopHeartbeatAfter {
		glog.Infof("simulator: last heartbeat sent")
	}
	return v.send(w, mavlink.Heartbeat{
		Type:           mavlink.MavTypeQuadrotor,
		Autopilot:      mavlink.MavAutopilotGeneric,
		SystemStatus:   mavlink.MavStateActive,
		MavlinkVersion: mavlink.MavlinkVersion,
	})
}

func (v *Vehicle) send(w io.Writer, p mavlink.Payload) error {
	frame, err := v.enc.EncodePayload(p)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = w.Write(frame)
	return errors.Annotate(err, "simulator write")
}

// Server accepts TCP links and runs a fresh vehicle on each
type Server struct {
	cfg   Config
	ln    net.Listener
	alive *alive.Alive
}

// Listen binds addr
func Listen(addr string, cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "listen %s", addr)
	}
	return &Server{cfg: cfg, ln: ln, alive: alive.NewAlive()}, nil
}

// Addr returns the bound address
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until ctx is done, then waits for every link
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.alive.Stop()
			s.alive.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return errors.Annotate(err, "accept")
		}
		if !s.alive.Add(1) {
			conn.Close()
			continue
		}
		glog.Infof("simulator: link from %s", conn.RemoteAddr())
		go func() {
			defer s.alive.Done()
			defer conn.Close()
			stop := context.AfterFunc(ctx, func() { conn.Close() })
			defer stop()
			if err := NewVehicle(s.cfg).Serve(ctx, conn); err != nil && ctx.Err() == nil {
				glog.Warningf("simulator: %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}
