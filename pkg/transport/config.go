// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/juju/errors"
)

// Kind selects the channel a Transport drives. It is fixed at construction.
type Kind int

const (
	KindSerial Kind = iota
	KindNetwork
	KindWebSocket
)

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindNetwork:
		return "network"
	case KindWebSocket:
		return "websocket"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Defaults
const (
	DefaultBaud              = "57600"
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 5760
	DefaultOpenTimeout       = 1000 * time.Millisecond
	DefaultReconnectInterval = 1000 * time.Millisecond
)

// SerialConfig names a device (exact path or regular expression) and its
// baud rate. Line parameters are always 8N1 without flow control.
type SerialConfig struct {
	Device string
	Baud   string
}

// NetworkConfig is a TCP endpoint
type NetworkConfig struct {
	Host string
	Port int
}

// WebSocketConfig is a ws:// or wss:// endpoint carrying binary frames
type WebSocketConfig struct {
	URL        string
	Username   string
	Password   string
	SkipVerify bool
}

// Config describes one transport
type Config struct {
	Kind      Kind
	Serial    SerialConfig
	Network   NetworkConfig
	WebSocket WebSocketConfig

	OpenTimeout       time.Duration
	ReconnectInterval time.Duration
}

// withDefaults fills zero values
func (c Config) withDefaults() Config {
	if c.Serial.Baud == "" {
		c.Serial.Baud = DefaultBaud
	}
	if c.Network.Host == "" {
		c.Network.Host = DefaultHost
	}
	if c.Network.Port == 0 {
		c.Network.Port = DefaultPort
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = DefaultOpenTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	return c
}

// Validate checks the settings of the selected kind
func (c Config) Validate() error {
	c = c.withDefaults()
	switch c.Kind {
	case KindSerial:
		if c.Serial.Device == "" {
			return errors.NotValidf("empty serial device")
		}
		if _, err := c.BaudRate(); err != nil {
			return err
		}
	case KindNetwork:
		if c.Network.Port < 1 || c.Network.Port > 65535 {
			return errors.NotValidf("tcp port %d", c.Network.Port)
		}
	case KindWebSocket:
		u, err := url.Parse(c.WebSocket.URL)
		if err != nil {
			return errors.NewNotValid(err, "websocket url")
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return errors.NotValidf("url scheme %q (use ws:// or wss://)", u.Scheme)
		}
	default:
		return errors.NotValidf("transport kind %v", c.Kind)
	}
	return nil
}

// BaudRate parses the configured baud rate
func (c Config) BaudRate() (int, error) {
	s := c.Serial.Baud
	if s == "" {
		s = DefaultBaud
	}
	baud, err := strconv.Atoi(s)
	if err != nil || baud <= 0 {
		return 0, errors.NotValidf("baud rate %q", s)
	}
	return baud, nil
}

// Address returns host:port for network transports
func (c Config) Address() string {
	c = c.withDefaults()
	return net.JoinHostPort(c.Network.Host, strconv.Itoa(c.Network.Port))
}

// Describe returns a short human-readable description of the endpoint
func (c Config) Describe() string {
	c = c.withDefaults()
	switch c.Kind {
	case KindSerial:
		return fmt.Sprintf("Serial: %s @ %s baud", c.Serial.Device, c.Serial.Baud)
	case KindNetwork:
		return fmt.Sprintf("TCP: %s", c.Address())
	case KindWebSocket:
		return fmt.Sprintf("WebSocket: %s", c.WebSocket.URL)
	default:
		return c.Kind.String()
	}
}
