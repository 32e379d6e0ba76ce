// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/gyrobridge/pkg/mavlink"
)

var (
	requestStreamName    string
	requestStreamRate    int
	requestStreamTimeout int
)

var requestStreamCmd = &cobra.Command{
	Use:   "request_stream",
	Short: "Request a data stream and wait for its first message",
	Long: `Send REQUEST_DATA_STREAM and wait for a message belonging to that stream.

The request is repeated once per second until a matching message arrives or
the timeout expires. With --stream all, any message other than HEARTBEAT
counts.

Exit codes:
  0 - Message received before timeout
  1 - Timeout reached without a matching message
  2 - Connection error

Useful for checking that a vehicle answers stream requests before running
the bridge.`,
	RunE: runRequestStream,
}

func init() {
	rootCmd.AddCommand(requestStreamCmd)
	requestStreamCmd.Flags().StringVar(&requestStreamName, "stream", "extra1", "Data stream name or id")
	requestStreamCmd.Flags().IntVar(&requestStreamRate, "rate", 10, "Requested rate in Hz")
	requestStreamCmd.Flags().IntVar(&requestStreamTimeout, "timeout", 10, "Timeout in seconds to wait for a message")
}

// streamMatch reports whether m belongs to the requested stream
func streamMatch(stream uint8, m *mavlink.Message) bool {
	ids := mavlink.StreamMessages(stream)
	if ids == nil {
		return m.ID() != mavlink.MsgHeartbeat
	}
	return slices.Contains(ids, m.ID())
}

func runRequestStream(cmd *cobra.Command, args []string) error {
	stream, ok := mavlink.ParseDataStream(requestStreamName)
	if !ok {
		return errors.Errorf("unknown data stream %q", requestStreamName)
	}
	if requestStreamRate < 1 || requestStreamRate > 65535 {
		return errors.Errorf("rate %d out of range", requestStreamRate)
	}

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

	fmt.Printf("Gyrobridge - Request Stream\n")
	fmt.Printf("Connection: %s\n", t.Describe())
	fmt.Printf("Stream: %s @ %d Hz\n", mavlink.FormatDataStream(stream), requestStreamRate)
	fmt.Printf("Timeout: %d seconds\n\n", requestStreamTimeout)

	encoder := mavlink.NewEncoder(mavlink.SystemID, mavlink.ComponentID)
	request, err := encoder.EncodePayload(mavlink.NewRequestDataStream(stream, uint16(requestStreamRate), true))
	if err != nil {
		return err
	}
	decoder := mavlink.NewDecoder(cfg.DecoderOptions()...)

	resend := time.NewTicker(time.Second)
	defer resend.Stop()
	timeout := time.After(time.Duration(requestStreamTimeout) * time.Second)

	send := func() {
		if err := t.Send(request); err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
	}
	send()

	for {
		select {
		case ev := <-t.Events():
			data := t.Handle(ev)
			if ev.Err != nil && !t.IsConnected() {
				fmt.Fprintf(os.Stderr, "Read error: %v\n", ev.Err)
				os.Exit(2)
			}
			for m, err := range decoder.Feed(data) {
				if err != nil || !streamMatch(stream, m) {
					continue
				}
				fmt.Printf("SUCCESS: Received %s\n", mavlink.FormatMessageType(m.ID()))
				fmt.Print(mavlink.FormatMessage(m))
				os.Exit(0)
			}

		case <-resend.C:
			send()

		case <-timeout:
			fmt.Fprintf(os.Stderr, "TIMEOUT: No %s message received within %d seconds\n",
				mavlink.FormatDataStream(stream), requestStreamTimeout)
			os.Exit(1)
		}
	}
}
