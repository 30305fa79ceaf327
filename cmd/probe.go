// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/blocklypy/aipp/pkg/aipp"
	"github.com/blocklypy/aipp/pkg/channel"
	"github.com/spf13/cobra"
)

var probeTimeout int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test connection by waiting for a valid tunnel message",
	Long: `Wait for a valid AIPP message on the connection until timeout.

This command connects to a serial port or WebSocket and polls the shared slot
until the hub writes a complete message with a valid checksum. Chunks that do
not frame or decode are counted and skipped.

Exit codes:
  0 - Message received before timeout
  1 - Timeout reached without receiving a valid message
  2 - Connection error

Useful for checking that a hub program is running before attaching.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a message")
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(probeTimeout)*time.Second)
	defer cancel()

	slot, connInfo, err := OpenConnection(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer slot.Close()

	framer, err := cfg.Framer()
	if err != nil {
		return err
	}

	fmt.Printf("aipp - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for valid AIPP message...\n\n")

	msg, skipped, err := probe(ctx, channel.NewDriver(slot, framer.MTU()), framer, slotDone(slot))
	switch {
	case err == nil:
		if skipped > 0 {
			fmt.Printf("(skipped %d invalid chunks before sync)\n", skipped)
		}
		fmt.Printf("SUCCESS: Received valid message\n")
		fmt.Print("  " + aipp.FormatMessage(msg))
		fmt.Printf("  Length: %d bytes\n", len(msg.Raw()))
		fmt.Printf("  Checksum: 0x%02X\n", aipp.Checksum(msg.Raw()))
		os.Exit(0)

	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid message received within %d seconds\n", probeTimeout)
		os.Exit(1)

	default:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	}
	return nil
}

// probe polls until one message decodes. skipped counts discarded chunks
// and messages.
func probe(ctx context.Context, driver *channel.Driver, framer *aipp.Framer, done <-chan struct{}) (aipp.Message, int, error) {
	reassembler := aipp.NewReassembler(framer)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	skipped := 0
	for {
		select {
		case <-ctx.Done():
			return aipp.Message{}, skipped, ctx.Err()
		case <-done:
			return aipp.Message{}, skipped, channel.ErrClosed
		case <-ticker.C:
		}

		chunk, ok := driver.Next()
		if !ok {
			continue
		}
		data, complete, err := reassembler.Push(chunk)
		if err != nil {
			skipped++
			continue
		}
		if !complete {
			continue
		}
		msg, err := aipp.DecodeMessage(data)
		if err != nil {
			skipped++
			continue
		}
		return msg, skipped, nil
	}
}
