// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/blocklypy/aipp/pkg/channel"
	"github.com/blocklypy/aipp/pkg/host"
	"github.com/spf13/cobra"
)

var (
	debugTUI     bool
	debugRecord  string
	debugDecline bool
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Attach a debugger to a hub program",
	Long: `Answer the hub's start handshake and debug the running program.

When the program reaches a trap the debugger shows its location and
variables. Resume with continue or step, read and assign variables, or
terminate the program. Plot rows sent by the program are collected and shown
alongside.

Use --tui for the interactive terminal interface. Without it, commands are
read line by line from stdin (type help for the list).

Supports both serial and WebSocket connections.`,
	RunE: runDebug,
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.Flags().BoolVar(&debugTUI, "tui", false, "Interactive terminal interface")
	debugCmd.Flags().StringVar(&debugRecord, "record", "", "Write a trace file")
	debugCmd.Flags().BoolVar(&debugDecline, "decline", false, "Decline the start handshake (program runs undebugged)")
}

func runDebug(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	done := slotDone(conn)

	slot, closeTrace, err := recordTo(conn, debugRecord)
	if err != nil {
		conn.Close()
		return err
	}
	defer closeTrace()

	hostCfg := cfg.Host()
	hostCfg.AcceptStart = !debugDecline
	d, err := host.NewDebugger(slot, hostCfg, host.WithLogger(logger))
	if err != nil {
		slot.Close()
		return err
	}
	defer slot.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		runErr <- d.Run(ctx)
	}()
	go func() {
		if done == nil {
			return
		}
		select {
		case <-done:
			logger.Warn().Msg("connection closed")
			cancel()
		case <-ctx.Done():
		}
	}()

	if debugTUI {
		err = runDebugTUI(ctx, d, connInfo)
	} else {
		err = runDebugLines(ctx, d, connInfo, os.Stdin, os.Stdout)
	}
	cancel()
	<-runErr
	return err
}

// runDebugLines prints events and applies one command per input line
func runDebugLines(ctx context.Context, d *host.Debugger, connInfo string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "aipp - Debugger\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Waiting for the hub program to start (help for commands)\n\n")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-d.Events():
			fmt.Fprintf(out, "[%s] %s\n", ev.At.Format("15:04:05.000"), ev)

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			c, err := parseDebugCommand(line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			text, err := c.run(ctx, d)
			switch {
			case errors.Is(err, errQuit):
				return nil
			case errors.Is(err, channel.ErrClosed):
				return err
			case err != nil:
				fmt.Fprintf(out, "error: %v\n", err)
			case text != "":
				fmt.Fprint(out, text)
			}
		}
	}
}
