// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/gyrobridge/pkg/mavlink"
	"github.com/Thermoquad/gyrobridge/pkg/transport"
)

var (
	rawLogRecord string
	rawLogStrict bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw message log in human-readable format",
	Long: `Continuously decode and display MAVLink messages as they arrive.

Each message is shown with timestamp, message type, header fields and decoded
payload. Values outside plausible ranges are flagged as anomalies, and a
statistics summary is printed on exit.

Use --record to write every decoded message to a CBOR capture file that the
replay command can read back.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogRecord, "record", "", "Write decoded messages to a capture file")
	rawLogCmd.Flags().BoolVar(&rawLogStrict, "strict", false, "Drop frames with a bad checksum")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if rawLogStrict {
		cfg.Protocol.Strict = true
	}

	t, err := newTransport(cfg)
	if err != nil {
		return err
	}
	if err := t.Open(); err != nil {
		return err
	}
	defer t.Stop()

	var rec *mavlink.CaptureWriter
	if rawLogRecord != "" {
		f, err := os.Create(rawLogRecord)
		if err != nil {
			return errors.Annotate(err, "create capture file")
		}
		defer f.Close()
		rec = mavlink.NewCaptureWriter(f)
	}

	fmt.Printf("Gyrobridge - Raw Message Log\n")
	fmt.Printf("Connection: %s\n", t.Describe())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := mavlink.NewDecoder(cfg.DecoderOptions()...)
	stats := mavlink.NewStatistics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		stats.CalculateRates()
		fmt.Printf("\n%s", stats)
		if rec != nil {
			fmt.Printf("Recorded %d messages to %s\n", rec.Count(), rawLogRecord)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-t.Events():
			data := t.Handle(ev)
			if data == nil && !t.IsConnected() && t.Kind() == transport.KindSerial {
				fmt.Printf("Connection closed\n")
				return nil
			}
			for m, err := range decoder.Feed(data) {
				if err != nil {
					stats.Update(nil, err, nil)
					fmt.Printf("[ERROR] %v\n", err)
					continue
				}

				verrs := mavlink.ValidateMessage(m)
				stats.Update(m, nil, verrs)
				fmt.Print(mavlink.FormatMessage(m))
				for _, v := range verrs {
					fmt.Printf("  [ANOMALY] %s: %s\n", v.Type, v.Message)
				}

				if rec != nil {
					if err := rec.Write(m); err != nil {
						glog.Warningf("capture: %v", err)
					}
				}
			}

		case <-t.ReconnectC():
			if t.Retry() == nil {
				decoder.Reset()
				fmt.Printf("Reconnected: %s\n", t.Describe())
			}
		}
	}
}
