// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/Thermoquad/gyrobridge/pkg/bridge"
	"github.com/Thermoquad/gyrobridge/pkg/config"
	"github.com/Thermoquad/gyrobridge/pkg/transport"
)

// PasswordEnv holds the WebSocket password
const PasswordEnv = "GYROBRIDGE_PASSWORD"

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", errors.Annotate(err, "failed to read password")
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// loadConfig reads --config (if any) and applies connection flags on top
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return loadConfigFlags(cmd.Flags())
}

func loadConfigFlags(flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if err := applyFlags(flags, cfg); err != nil {
		return nil, err
	}
	if cfg.Transport.Kind == config.KindSerial && cfg.Transport.Serial.Device == "" {
		return nil, errors.New("one of --serial, --network or --url must be specified")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	t := &cfg.Transport

	chosen := 0
	for _, name := range []string{"serial", "network", "url"} {
		if flags.Changed(name) {
			chosen++
		}
	}
	if chosen > 1 {
		return errors.New("--serial, --network and --url are mutually exclusive")
	}

	switch {
	case flags.Changed("serial"):
		t.Kind = config.KindSerial
		t.Serial.Device = serialDevice
	case flags.Changed("network"):
		t.Kind = config.KindNetwork
		t.Network.Host = networkHost
	case flags.Changed("url"):
		t.Kind = config.KindWebSocket
		t.WebSocket.URL = wsURL
	}

	if flags.Changed("baud") {
		t.Serial.Baud = baudRate
	}
	if flags.Changed("port") {
		t.Network.Port = networkPort
	}
	if flags.Changed("username") {
		t.WebSocket.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		t.WebSocket.NoSSLVerify = wsNoSSLVerify
	}

	if t.Kind == config.KindWebSocket && t.WebSocket.Username != "" && t.WebSocket.Password == "" {
		password, err := GetPassword()
		if err != nil {
			return err
		}
		t.WebSocket.Password = password
	}
	return nil
}

// newTransport builds the transport described by cfg without opening it
func newTransport(cfg *config.Config) (*transport.Transport, error) {
	tc, err := cfg.TransportConfig()
	if err != nil {
		return nil, err
	}
	return transport.New(tc), nil
}

// bridgeOptions maps the configuration onto bridge options
func bridgeOptions(cfg *config.Config) (bridge.Options, error) {
	stream, err := cfg.StreamID()
	if err != nil {
		return bridge.Options{}, err
	}
	return bridge.Options{
		Liveness:      cfg.LivenessConfig(),
		Decoder:       cfg.DecoderOptions(),
		StreamID:      stream,
		StreamRate:    uint16(cfg.Stream.Rate),
		DisableStream: cfg.Stream.Disable,
	}, nil
}
