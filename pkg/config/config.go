// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config reads the optional HCL configuration file. Every setting
// has a default; command line flags override the file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"github.com/Thermoquad/gyrobridge/pkg/liveness"
	"github.com/Thermoquad/gyrobridge/pkg/mavlink"
	"github.com/Thermoquad/gyrobridge/pkg/sink"
	"github.com/Thermoquad/gyrobridge/pkg/transport"
)

// Transport kinds as written in the file
const (
	KindSerial    = "serial"
	KindNetwork   = "network"
	KindWebSocket = "websocket"
)

type Config struct {
	Transport TransportConfig `hcl:"transport"`
	Liveness  LivenessConfig  `hcl:"liveness"`
	Stream    StreamConfig    `hcl:"stream"`
	Sink      SinkConfig      `hcl:"sink"`
	Protocol  ProtocolConfig  `hcl:"protocol"`
}

type TransportConfig struct {
	Kind   string `hcl:"kind"`
	Serial struct {
		Device string `hcl:"device"`
		Baud   string `hcl:"baud"`
	} `hcl:"serial"`
	Network struct {
		Host string `hcl:"host"`
		Port int    `hcl:"port"`
	} `hcl:"network"`
	WebSocket struct {
		URL         string `hcl:"url"`
		Username    string `hcl:"username"`
		Password    string `hcl:"password"` // secret
		NoSSLVerify bool   `hcl:"no_ssl_verify"`
	} `hcl:"websocket"`
	OpenTimeoutMs int `hcl:"open_timeout_ms"`
	ReconnectMs   int `hcl:"reconnect_ms"`
}

type LivenessConfig struct {
	HeartbeatBudget int `hcl:"heartbeat_budget"`
	MaxLost         int `hcl:"max_lost"`
	TimeoutMs       int `hcl:"timeout_ms"`
	GraceMs         int `hcl:"grace_ms"`
}

// StreamConfig is the data stream requested once the link is live
type StreamConfig struct {
	Name    string `hcl:"name"` // e.g. "extra1" or a numeric id
	Rate    int    `hcl:"rate"`
	Disable bool   `hcl:"disable"`
}

type SinkConfig struct {
	Kind      string `hcl:"kind"`
	Mode      string `hcl:"mode"`
	APIHost   string `hcl:"api_host"`
	APIPath   string `hcl:"api_path"`
	TimeoutMs int    `hcl:"timeout_ms"`
	Broker    string `hcl:"broker"`
	Topic     string `hcl:"topic"`
}

type ProtocolConfig struct {
	Strict     bool `hcl:"strict"`
	MaxPayload int  `hcl:"max_payload"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads an HCL file. Call Validate after applying flag overrides.
func Load(path string) (*Config, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("config file %s", path)
		}
		return nil, errors.Annotatef(err, "config read %s", path)
	}
	c, err := Parse(bs)
	if err != nil {
		return nil, errors.Annotatef(err, "config %s", path)
	}
	return c, nil
}

// Parse decodes HCL text and applies defaults
func Parse(bs []byte) (*Config, error) {
	c := &Config{}
	if err := hcl.Unmarshal(bs, c); err != nil {
		return nil, errors.Annotate(err, "config unmarshal")
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	t := &c.Transport
	if t.Kind == "" {
		t.Kind = KindSerial
	}
	if t.Serial.Baud == "" {
		t.Serial.Baud = transport.DefaultBaud
	}
	if t.Network.Host == "" {
		t.Network.Host = transport.DefaultHost
	}
	if t.Network.Port == 0 {
		t.Network.Port = transport.DefaultPort
	}
	if t.OpenTimeoutMs == 0 {
		t.OpenTimeoutMs = int(transport.DefaultOpenTimeout / time.Millisecond)
	}
	if t.ReconnectMs == 0 {
		t.ReconnectMs = int(transport.DefaultReconnectInterval / time.Millisecond)
	}

	l := &c.Liveness
	if l.HeartbeatBudget == 0 {
		l.HeartbeatBudget = liveness.DefaultHeartbeatBudget
	}
	if l.MaxLost == 0 {
		l.MaxLost = liveness.DefaultMaxLost
	}
	if l.TimeoutMs == 0 {
		l.TimeoutMs = int(liveness.DefaultHeartbeatTimeout / time.Millisecond)
	}
	if l.GraceMs == 0 {
		l.GraceMs = int(liveness.DefaultGracePeriod / time.Millisecond)
	}

	if c.Stream.Name == "" {
		c.Stream.Name = strings.ToLower(mavlink.FormatDataStream(mavlink.DataStreamExtra1))
	}
	if c.Stream.Rate == 0 {
		c.Stream.Rate = 10
	}

	s := &c.Sink
	if s.Kind == "" {
		s.Kind = sink.KindHTTP
	}
	if s.Mode == "" {
		s.Mode = sink.ModeAll.String()
	}
	if s.APIHost == "" {
		s.APIHost = sink.DefaultAPIHost
	}
	if s.APIPath == "" {
		s.APIPath = sink.DefaultAPIPath
	}
	if s.TimeoutMs == 0 {
		s.TimeoutMs = int(sink.DefaultTimeout / time.Millisecond)
	}

	if c.Protocol.MaxPayload == 0 {
		c.Protocol.MaxPayload = mavlink.MaxPayloadSize
	}
}

// Validate checks value ranges and cross-field consistency
func (c *Config) Validate() error {
	tc, err := c.TransportConfig()
	if err != nil {
		return err
	}
	if err := tc.Validate(); err != nil {
		return errors.Annotate(err, "transport")
	}

	l := c.Liveness
	if l.HeartbeatBudget < 1 || l.MaxLost < 1 || l.TimeoutMs < 1 || l.GraceMs < 1 {
		return errors.NotValidf("liveness limits %+v", l)
	}
	if _, err := c.StreamID(); err != nil {
		return err
	}
	if c.Stream.Rate < 1 || c.Stream.Rate > 65535 {
		return errors.NotValidf("stream rate %d", c.Stream.Rate)
	}
	if _, err := c.SinkConfig(); err != nil {
		return err
	}
	if c.Sink.Kind == sink.KindMQTT && c.Sink.Broker == "" {
		return errors.NotValidf("mqtt sink without broker")
	}
	if c.Protocol.MaxPayload < 1 || c.Protocol.MaxPayload > mavlink.MaxPayloadSize {
		return errors.NotValidf("max payload %d", c.Protocol.MaxPayload)
	}
	return nil
}

// TransportConfig converts the transport block
func (c *Config) TransportConfig() (transport.Config, error) {
	t := c.Transport
	tc := transport.Config{
		Serial:            transport.SerialConfig{Device: t.Serial.Device, Baud: t.Serial.Baud},
		Network:           transport.NetworkConfig{Host: t.Network.Host, Port: t.Network.Port},
		OpenTimeout:       time.Duration(t.OpenTimeoutMs) * time.Millisecond,
		ReconnectInterval: time.Duration(t.ReconnectMs) * time.Millisecond,
		WebSocket: transport.WebSocketConfig{
			URL:        t.WebSocket.URL,
			Username:   t.WebSocket.Username,
			Password:   t.WebSocket.Password,
			SkipVerify: t.WebSocket.NoSSLVerify,
		},
	}
	switch strings.ToLower(t.Kind) {
	case KindSerial:
		tc.Kind = transport.KindSerial
	case KindNetwork, "tcp":
		tc.Kind = transport.KindNetwork
	case KindWebSocket, "ws":
		tc.Kind = transport.KindWebSocket
	default:
		return tc, errors.NotValidf("transport kind %q", t.Kind)
	}
	return tc, nil
}

// StreamID resolves the configured data stream
func (c *Config) StreamID() (uint8, error) {
	id, ok := mavlink.ParseDataStream(c.Stream.Name)
	if !ok {
		return 0, errors.NotValidf("data stream %q", c.Stream.Name)
	}
	return id, nil
}

// LivenessConfig converts the liveness block
func (c *Config) LivenessConfig() liveness.Config {
	return liveness.Config{
		HeartbeatBudget:  c.Liveness.HeartbeatBudget,
		MaxLost:          c.Liveness.MaxLost,
		HeartbeatTimeout: time.Duration(c.Liveness.TimeoutMs) * time.Millisecond,
		GracePeriod:      time.Duration(c.Liveness.GraceMs) * time.Millisecond,
	}
}

// SinkConfig converts the sink block
func (c *Config) SinkConfig() (sink.Config, error) {
	mode, err := sink.ParseMode(c.Sink.Mode)
	if err != nil {
		return sink.Config{}, err
	}
	switch c.Sink.Kind {
	case sink.KindHTTP, sink.KindMQTT, sink.KindDiscard:
	default:
		return sink.Config{}, errors.NotValidf("sink kind %q", c.Sink.Kind)
	}
	return sink.Config{
		Kind:      c.Sink.Kind,
		Mode:      mode,
		APIHost:   c.Sink.APIHost,
		APIPath:   c.Sink.APIPath,
		Timeout:   time.Duration(c.Sink.TimeoutMs) * time.Millisecond,
		BrokerURL: c.Sink.Broker,
		Topic:     c.Sink.Topic,
	}, nil
}

// DecoderOptions returns the frame decoder settings
func (c *Config) DecoderOptions() []mavlink.Option {
	opts := []mavlink.Option{mavlink.WithMaxPayload(c.Protocol.MaxPayload)}
	if c.Protocol.Strict {
		opts = append(opts, mavlink.WithChecksumValidation())
	}
	return opts
}
