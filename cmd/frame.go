// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/blocklypy/aipp/pkg/aipp"
	"github.com/spf13/cobra"
)

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Encode or decode chunks offline",
	Long: `Offline helpers for inspecting the chunk framing. Bytes are given as hex;
spaces and colons are ignored.

Uses --mtu and --legacy-markers from the global flags.`,
}

var frameEncodeCmd = &cobra.Command{
	Use:     "encode <message-hex>",
	Short:   "Split a message into chunks",
	Example: `  aipp frame encode "71 03 61 2e 70 79 00 0a 00 01 78 00 01 05 00 00 00"`,
	Args:    cobra.ExactArgs(1),
	RunE:    runFrameEncode,
}

var frameDecodeCmd = &cobra.Command{
	Use:   "decode <chunk-hex>...",
	Short: "Join chunks and decode the message",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFrameDecode,
}

func init() {
	rootCmd.AddCommand(frameCmd)
	frameCmd.AddCommand(frameEncodeCmd)
	frameCmd.AddCommand(frameDecodeCmd)
}

func parseHex(raw string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(raw)
	cleaned = strings.TrimPrefix(strings.ToLower(cleaned), "0x")
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("bad hex %q: %w", raw, err)
	}
	return data, nil
}

func runFrameEncode(cmd *cobra.Command, args []string) error {
	message, err := parseHex(args[0])
	if err != nil {
		return err
	}
	if len(message) > aipp.MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", aipp.ErrMessageTooLarge, len(message))
	}
	framer, err := cfg.Framer()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if msg, err := aipp.DecodeMessage(message); err == nil {
		fmt.Fprintf(out, "Message: %s", describe(msg))
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Checksum: 0x%02X\n", aipp.Checksum(message))
	for i, chunk := range framer.Encode(message) {
		fmt.Fprintf(out, "%3d: % X\n", i, chunk)
	}
	return nil
}

func runFrameDecode(cmd *cobra.Command, args []string) error {
	chunks := make([][]byte, 0, len(args))
	for _, arg := range args {
		chunk, err := parseHex(arg)
		if err != nil {
			return err
		}
		chunks = append(chunks, chunk)
	}
	framer, err := cfg.Framer()
	if err != nil {
		return err
	}

	message, err := framer.Decode(chunks...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Bytes: % X\n", message)
	msg, err := aipp.DecodeMessage(message)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Message: %s\n", describe(msg))
	return nil
}
