// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gyrobridge/pkg/mavlink"
)

var discoveryTimeout int

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover vehicles by their heartbeats",
	Long: `Listen for HEARTBEAT messages and list every system and component heard.

Nothing is sent; MAVLink nodes announce themselves with a heartbeat about once
per second, so a few seconds of listening finds everything on the link.

Examples:
  # Serial telemetry radio
  gyrobridge discovery --serial /dev/ttyUSB0

  # SITL or a network bridge
  gyrobridge discovery --network 127.0.0.1 --port 5760

Exit codes:
  0 - Discovery successful (at least one node found)
  1 - Discovery failed (no heartbeat before timeout)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 5, "Seconds to listen for heartbeats")
}

type nodeKey struct {
	systemID    uint8
	componentID uint8
}

type nodeInfo struct {
	nodeKey
	heartbeat mavlink.Heartbeat
	count     int
}

// recordHeartbeat adds m to nodes. Returns true for a node not seen before.
func recordHeartbeat(nodes map[nodeKey]*nodeInfo, m *mavlink.Message) bool {
	hb, err := mavlink.DecodeHeartbeat(m)
	if err != nil {
		return false
	}
	key := nodeKey{m.SystemID(), m.ComponentID()}
	if n, ok := nodes[key]; ok {
		n.heartbeat = hb
		n.count++
		return false
	}
	nodes[key] = &nodeInfo{nodeKey: key, heartbeat: hb, count: 1}
	return true
}

func sortedNodes(nodes map[nodeKey]*nodeInfo) []*nodeInfo {
	out := make([]*nodeInfo, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].systemID != out[j].systemID {
			return out[i].systemID < out[j].systemID
		}
		return out[i].componentID < out[j].componentID
	})
	return out
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	t, err := newTransport(cfg)
	if err == nil {
		err = t.Open()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer t.Stop()

	fmt.Printf("Gyrobridge - Vehicle Discovery\n")
	fmt.Printf("Connection: %s\n", t.Describe())
	fmt.Printf("Timeout: %d seconds\n", discoveryTimeout)

	decoder := mavlink.NewDecoder(cfg.DecoderOptions()...)
	nodes := make(map[nodeKey]*nodeInfo)
	timeout := time.After(time.Duration(discoveryTimeout) * time.Second)

listen:
	for {
		select {
		case ev := <-t.Events():
			data := t.Handle(ev)
			if ev.Err != nil && !t.IsConnected() {
				fmt.Printf("READ FAILED: %v\n", ev.Err)
				os.Exit(2)
			}
			for m, err := range decoder.Feed(data) {
				if err != nil || m.ID() != mavlink.MsgHeartbeat {
					continue
				}
				if recordHeartbeat(nodes, m) {
					fmt.Printf("\nNode found:\n")
					fmt.Print(mavlink.FormatMessage(m))
				}
			}

		case <-timeout:
			break listen
		}
	}

	// Summary
	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Nodes found: %d\n", len(nodes))
	for _, n := range sortedNodes(nodes) {
		fmt.Printf("  sys=%d comp=%d type=%d autopilot=%d heartbeats=%d\n",
			n.systemID, n.componentID, n.heartbeat.Type, n.heartbeat.Autopilot, n.count)
	}

	if len(nodes) == 0 {
		fmt.Printf("No heartbeats received. Check connection, baud rate and vehicle power.\n")
		os.Exit(1)
	}
	return nil
}
