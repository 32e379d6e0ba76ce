// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		valid bool
	}{
		{"serial", Config{Kind: KindSerial, Serial: SerialConfig{Device: "/dev/ttyACM0"}}, true},
		{"serial without device", Config{Kind: KindSerial}, false},
		{"serial bad baud", Config{Kind: KindSerial, Serial: SerialConfig{Device: "x", Baud: "fast"}}, false},
		{"serial zero baud", Config{Kind: KindSerial, Serial: SerialConfig{Device: "x", Baud: "0"}}, false},
		{"network defaults", Config{Kind: KindNetwork}, true},
		{"network bad port", Config{Kind: KindNetwork, Network: NetworkConfig{Port: 70000}}, false},
		{"websocket", Config{Kind: KindWebSocket, WebSocket: WebSocketConfig{URL: "wss://host/ws"}}, true},
		{"websocket http scheme", Config{Kind: KindWebSocket, WebSocket: WebSocketConfig{URL: "http://host/ws"}}, false},
		{"unknown kind", Config{Kind: Kind(9)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.IsNotValid(err), "%v", err)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, "57600", c.Serial.Baud)
	assert.Equal(t, "127.0.0.1", c.Network.Host)
	assert.Equal(t, 5760, c.Network.Port)
	assert.Equal(t, time.Second, c.OpenTimeout)
	assert.Equal(t, time.Second, c.ReconnectInterval)

	baud, err := c.BaudRate()
	require.NoError(t, err)
	assert.Equal(t, 57600, baud)
}

func TestConfig_Describe(t *testing.T) {
	assert.Equal(t, "Serial: /dev/ttyACM0 @ 115200 baud",
		Config{Kind: KindSerial, Serial: SerialConfig{Device: "/dev/ttyACM0", Baud: "115200"}}.Describe())
	assert.Equal(t, "TCP: 127.0.0.1:5760", Config{Kind: KindNetwork}.Describe())
	assert.Equal(t, "TCP: [::1]:14550", Config{Kind: KindNetwork, Network: NetworkConfig{Host: "::1", Port: 14550}}.Describe())
	assert.Equal(t, "WebSocket: ws://h/ws", Config{Kind: KindWebSocket, WebSocket: WebSocketConfig{URL: "ws://h/ws"}}.Describe())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "serial", KindSerial.String())
	assert.Equal(t, "network", KindNetwork.String())
	assert.Equal(t, "websocket", KindWebSocket.String())
	assert.Equal(t, "kind(7)", Kind(7).String())
}
