// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blocklypy/aipp/pkg/aipp"
	"github.com/blocklypy/aipp/pkg/channel"
	"github.com/spf13/cobra"
)

var (
	monitorInterval time.Duration
	monitorRecord   string
	monitorChunks   bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Decode and display tunnel messages written by the hub",
	Long: `Continuously poll the shared slot and display every AIPP message the hub
writes, with timestamp, message type and decoded body.

This command never writes to the slot, so it does not answer handshakes. Use
--chunks to also print each raw chunk, and --record to save the session as a
trace file for the replay command.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 10*time.Millisecond, "Slot poll interval")
	monitorCmd.Flags().StringVar(&monitorRecord, "record", "", "Write a trace file")
	monitorCmd.Flags().BoolVar(&monitorChunks, "chunks", false, "Print raw chunks")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	done := slotDone(conn)

	slot, closeTrace, err := recordTo(conn, monitorRecord)
	if err != nil {
		conn.Close()
		return err
	}
	defer closeTrace()
	defer slot.Close()

	framer, err := cfg.Framer()
	if err != nil {
		return err
	}

	fmt.Printf("aipp - Tunnel Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("MTU: %d\n", framer.MTU())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := aipp.NewStatistics()
	err = monitor(ctx, channel.NewDriver(slot, framer.MTU()), framer, stats, done)
	fmt.Printf("\n%s", stats)
	return err
}

func monitor(ctx context.Context, driver *channel.Driver, framer *aipp.Framer, stats *aipp.Statistics, done <-chan struct{}) error {
	reassembler := aipp.NewReassembler(framer)
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			logger.Warn().Msg("connection closed")
			return nil
		case <-ticker.C:
		}

		chunk, ok := driver.Next()
		if !ok {
			continue
		}
		stats.RecordChunk()
		if monitorChunks {
			fmt.Printf("  %s\n", aipp.FormatChunk(chunk))
		}

		data, complete, err := reassembler.Push(chunk)
		if err != nil {
			stats.RecordError(err)
			fmt.Printf("[ERROR] %v\n", err)
			continue
		}
		if !complete {
			continue
		}

		msg, err := aipp.DecodeMessage(data)
		if err != nil {
			stats.RecordError(err)
			fmt.Printf("[ERROR] %v (% X)\n", err, data)
			continue
		}
		stats.RecordMessage()
		fmt.Print(aipp.FormatMessage(msg))
	}
}
