// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gyrobridge/pkg/transport"
)

var portsDetails bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial devices --serial can match, sorted by name.

Use --details to include USB vendor and product ids.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsDetails, "details", false, "Show USB details")
}

func runPorts(cmd *cobra.Command, args []string) error {
	if !portsDetails {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Printf("No serial ports found\n")
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	ports, err := transport.ListPortDetails()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Printf("No serial ports found\n")
	}
	for _, p := range ports {
		if !p.IsUSB {
			fmt.Printf("%s\n", p.Name)
			continue
		}
		fmt.Printf("%s  USB %s:%s", p.Name, p.VID, p.PID)
		if p.SerialNumber != "" {
			fmt.Printf("  serial=%s", p.SerialNumber)
		}
		if p.Product != "" {
			fmt.Printf("  %s", p.Product)
		}
		fmt.Println()
	}
	return nil
}
