// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/gyrobridge/pkg/config"
	"github.com/Thermoquad/gyrobridge/pkg/mavlink"
	"github.com/Thermoquad/gyrobridge/pkg/sink"
)

var (
	replayForward bool
	replayQuiet   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print or forward a recorded capture",
	Long: `Read a capture written by 'raw_log --record' and print every message.

With --forward, ATTITUDE messages are sent to the sink configured by --config
(the local HTTP API by default), the same way the live bridge would.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayForward, "forward", false, "Send attitudes to the configured sink")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Only print the statistics summary")
}

// sinkFromConfig builds a sink from --config, or the default sink
func sinkFromConfig() (sink.Sink, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	sc, err := cfg.SinkConfig()
	if err != nil {
		return nil, err
	}
	return sink.New(sc)
}

func runReplay(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return errors.Annotate(err, "open capture")
	}
	defer f.Close()

	var s sink.Sink = sink.Discard{}
	if replayForward {
		if s, err = sinkFromConfig(); err != nil {
			return err
		}
	}

	r := mavlink.NewCaptureReader(f)
	stats := mavlink.NewStatistics()
	forwarded := 0

	for {
		m, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.Close()
			return errors.Annotatef(err, "replay %s", path)
		}

		verrs := mavlink.ValidateMessage(m)
		stats.Update(m, nil, verrs)
		if !replayQuiet {
			fmt.Print(mavlink.FormatMessage(m))
		}

		if replayForward && m.ID() == mavlink.MsgAttitude {
			att, err := mavlink.DecodeAttitude(m)
			if err != nil {
				continue
			}
			s.SendAngles(att.Roll, att.Pitch, att.Yaw)
			forwarded++
		}
	}

	if err := s.Close(); err != nil {
		return err
	}
	fmt.Printf("\n%s", stats)
	if replayForward {
		fmt.Printf("Forwarded %d attitudes\n", forwarded)
	}
	return nil
}
