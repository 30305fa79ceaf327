// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package cmd

import (
	"fmt"
	"os"

	"github.com/blocklypy/aipp/pkg/aipp"
	"github.com/blocklypy/aipp/pkg/trace"
	"github.com/spf13/cobra"
)

var replayChunks bool

var replayCmd = &cobra.Command{
	Use:   "replay <trace-file>",
	Short: "Decode a recorded trace file",
	Long: `Read a trace file written with --record and print every message in
recording order. Each direction is reassembled independently; "tx" is what
this side wrote and "rx" is what the peer wrote.

The trace header carries the MTU it was recorded with; the --mtu and
--legacy-markers flags only override it when given explicitly.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayChunks, "chunks", false, "Print raw chunks")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := trace.NewReader(f)
	if err != nil {
		return err
	}

	link := cfg
	if !cmd.Flags().Changed("mtu") && r.Header().MTU > 0 {
		link.Link.MTU = r.Header().MTU
	}
	framer, err := link.Framer()
	if err != nil {
		return err
	}

	fmt.Printf("Trace: %s\n", args[0])
	fmt.Printf("Session: %s\n", r.SessionID())
	fmt.Printf("Started: %s\n", r.Header().Started.Format("2006-01-02 15:04:05"))
	fmt.Printf("MTU: %d\n\n", framer.MTU())

	stats := aipp.NewStatistics()
	err = trace.Replay(r, framer, func(ev trace.Event) error {
		stamp := ev.Record.At.Format("15:04:05.000")
		if ev.Record.Direction == trace.Inbound {
			stats.RecordChunk()
		}
		if replayChunks {
			fmt.Printf("[%s] %s   %s\n", stamp, ev.Record.Direction, aipp.FormatChunk(ev.Record.Data))
		}
		switch {
		case ev.Err != nil:
			stats.RecordError(ev.Err)
			fmt.Printf("[%s] %s [ERROR] %v\n", stamp, ev.Record.Direction, ev.Err)
		case ev.Message != nil:
			if ev.Record.Direction == trace.Inbound {
				stats.RecordMessage()
			} else {
				stats.RecordSent(1)
			}
			fmt.Printf("[%s] %s %s\n", stamp, ev.Record.Direction, describe(*ev.Message))
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n%s", stats)
	return nil
}

// describe formats m without its decode timestamp
func describe(m aipp.Message) string {
	result := fmt.Sprintf("%s (0x%02X)", aipp.FormatMessageType(m.Type), byte(m.Type))
	switch {
	case m.Type.IsDebug():
		result += " " + aipp.SubCodeName(m.Debug.SubCode) + aipp.FormatDebugBody(m.Debug)
	case m.Type.IsPlot():
		result += " " + aipp.PlotSubCodeName(m.Plot.SubCode) + aipp.FormatPlotBody(m.Plot)
	}
	return result
}
