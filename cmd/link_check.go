// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var linkCheckCmd = &cobra.Command{
	Use:   "link_check",
	Short: "Test raw link stability",
	Long: `Open the link and log every chunk of bytes received, without decoding.

Useful for debugging connection stability issues below the MAVLink layer.

Exit codes:
  0 - Test completed normally
  1 - Link failed during the test
  2 - Connection error`,
	RunE: runLinkCheck,
}

var linkCheckDuration int

func init() {
	rootCmd.AddCommand(linkCheckCmd)
	linkCheckCmd.Flags().IntVar(&linkCheckDuration, "duration", 30, "Test duration in seconds")
}

func runLinkCheck(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("Link Stability Test\n")
	fmt.Printf("Connection: %s\n", t.Describe())
	fmt.Printf("Duration: %d seconds\n\n", linkCheckDuration)

	start := time.Now()
	end := time.After(time.Duration(linkCheckDuration) * time.Second)
	progress := time.NewTicker(time.Second)
	defer progress.Stop()

	bytesReceived := 0
	chunksReceived := 0
	results := func() {
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("Chunks received: %d\n", chunksReceived)
		fmt.Printf("Bytes received: %d\n", bytesReceived)
	}

	fmt.Printf("Listening for data...\n\n")

	for {
		select {
		case ev := <-t.Events():
			data := t.Handle(ev)
			if ev.Err != nil && !t.IsConnected() {
				fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), ev.Err)
				results()
				fmt.Printf("Result: FAILED (connection error)\n")
				os.Exit(1)
			}
			if len(data) == 0 {
				continue
			}
			bytesReceived += len(data)
			chunksReceived++
			fmt.Printf("[%s] Received %d bytes: %x\n", time.Now().Format("15:04:05.000"), len(data), data)

		case <-progress.C:
			remaining := time.Duration(linkCheckDuration)*time.Second - time.Since(start)
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), remaining.Seconds())

		case <-end:
			results()
			fmt.Printf("Result: PASSED (link stable)\n")
			return nil
		}
	}
}
