// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"flag"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Thermoquad/gyrobridge/pkg/transport"
)

var (
	configPath string

	// Serial connection flags
	serialDevice string
	baudRate     string

	// Network connection flags
	networkHost string
	networkPort int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "gyrobridge",
	Short: "MAVLink attitude bridge",
	Long: `Gyrobridge - forwards vehicle attitude from a MAVLink link to a local HTTP API.

The bridge waits for heartbeats, requests the attitude data stream once the
link is live and posts every ATTITUDE message as roll:pitch:yaw. When the
heartbeat goes silent it warns, then fails over to the next matching serial
device.

Connection modes:
  Serial:    --serial /dev/ttyACM0 [--baud 57600]
             --serial '/dev/ttyACM[0-9]' cycles through matching devices
  Network:   --network 127.0.0.1 [--port 5760]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the GYROBRIDGE_PASSWORD
environment variable, or prompted interactively if not set.

Settings can also be read from an HCL file with --config; flags win.`,
	Version:      "1.0.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// glog refuses to log before the go flag set is parsed
		return flag.CommandLine.Parse(nil)
	},
}

func init() {
	addConnectionFlags(rootCmd.PersistentFlags())
	_ = flag.Set("logtostderr", "true")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

// addConnectionFlags defines the flags every command shares
func addConnectionFlags(pf *pflag.FlagSet) {
	pf.StringVarP(&configPath, "config", "c", "", "HCL configuration file")

	// Serial connection flags
	pf.StringVarP(&serialDevice, "serial", "s", "", "Serial device or device pattern")
	pf.StringVarP(&baudRate, "baud", "b", transport.DefaultBaud, "Baud rate (serial only)")

	// Network connection flags
	pf.StringVarP(&networkHost, "network", "n", "", "Network host (TCP)")
	pf.IntVarP(&networkPort, "port", "p", transport.DefaultPort, "Network port")

	// WebSocket connection flags
	pf.StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	pf.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	pf.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	defer glog.Flush()
	return rootCmd.Execute()
}
