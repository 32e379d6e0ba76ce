// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/gyrobridge/pkg/bridge"
	"github.com/Thermoquad/gyrobridge/pkg/config"
	"github.com/Thermoquad/gyrobridge/pkg/sink"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge",
	Long: `Open the link and forward attitude to the configured sink until interrupted.

Once ten heartbeats have arrived the bridge requests the EXTRA1 data stream at
10 Hz. Five consecutive 3 second silences trigger a failover to the next
matching serial device, repeated on every further silence until a heartbeat
arrives; network links reconnect every second.

Exits with status 1 when the link cannot be opened at startup.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// newBridge wires transport, sink and bridge from the configuration
func newBridge(cfg *config.Config, onStatus func(bridge.Status)) (*bridge.Bridge, error) {
	t, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	sc, err := cfg.SinkConfig()
	if err != nil {
		return nil, err
	}
	s, err := sink.New(sc)
	if err != nil {
		return nil, err
	}
	opts, err := bridgeOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.OnStatus = onStatus
	return bridge.New(t, s, opts), nil
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	b, err := newBridge(cfg, nil)
	if err != nil {
		return err
	}
	defer b.Stop()

	if err := b.Start(); err != nil {
		return err
	}
	glog.Infof("bridge started: %s", b.Status().Endpoint)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = b.Run(ctx)
	glog.Infof("bridge stopped")
	return err
}
