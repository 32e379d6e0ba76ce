// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gyrobridge/pkg/simulator"
)

var (
	simulateListen             string
	simulateHeartbeatMs        int
	simulateStopHeartbeatAfter int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Serve a simulated vehicle over TCP",
	Long: `Listen for TCP links and act like a vehicle on each one.

The simulated vehicle sends a heartbeat every second and answers an EXTRA1
stream request with ATTITUDE messages at the requested rate. Point the bridge
at it with --network.

Use --stop-heartbeat-after to make the vehicle fall silent and watch the
bridge warn about link loss.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simulateListen, "listen", "127.0.0.1:5760", "Listen address")
	simulateCmd.Flags().IntVar(&simulateHeartbeatMs, "heartbeat-ms", 1000, "Heartbeat interval in milliseconds")
	simulateCmd.Flags().IntVar(&simulateStopHeartbeatAfter, "stop-heartbeat-after", 0, "Stop heartbeats after this many (0 = never)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg := simulator.DefaultConfig()
	cfg.HeartbeatInterval = time.Duration(simulateHeartbeatMs) * time.Millisecond
	cfg.StopHeartbeatAfter = simulateStopHeartbeatAfter

	s, err := simulator.Listen(simulateListen, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Gyrobridge - Vehicle Simulator\n")
	fmt.Printf("Listening: %s\n", s.Addr())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}
