// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/blocklypy/aipp/pkg/channel"
	"github.com/blocklypy/aipp/pkg/host"
	"github.com/blocklypy/aipp/pkg/session"
	"github.com/blocklypy/aipp/pkg/telemetry"
	"github.com/blocklypy/aipp/pkg/tunnel"
	"github.com/spf13/cobra"
)

var (
	simSteps       int
	simTrapEvery   int
	simStepDelay   time.Duration
	simPause       time.Duration
	simStartReason string
	simSets        []string
	simRecord      string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated hub program that traps and plots",
	Long: `Run a small control-loop program on the hub side of the tunnel. The
program performs the start handshake, streams plot rows and stops at a trap
every few steps, exposing its variables.

Without --port or --url the hub and an automatic host run in-process over a
memory link: the host accepts the handshake, applies any --set assignments at
each trap and continues after --pause.

With --port or --url only the hub side runs, so a debug session on the other
end of the connection can attach. Send SIGUSR1 to continue from a trap
without the host.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().IntVar(&simSteps, "steps", 40, "Program iterations")
	simulateCmd.Flags().IntVar(&simTrapEvery, "trap-every", 10, "Trap every N iterations (0 disables traps)")
	simulateCmd.Flags().DurationVar(&simStepDelay, "step-delay", 50*time.Millisecond, "Delay between iterations")
	simulateCmd.Flags().DurationVar(&simPause, "pause", 500*time.Millisecond, "Automatic host pause at each trap")
	simulateCmd.Flags().StringVar(&simStartReason, "start-reason", "host", "How the program was started (host, button, boot)")
	simulateCmd.Flags().StringArrayVar(&simSets, "set", nil, "Automatic host assignment at each trap, name=value")
	simulateCmd.Flags().StringVar(&simRecord, "record", "", "Write a trace file of the hub side")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reason, err := parseStartReason(simStartReason)
	if err != nil {
		return err
	}
	sets, err := parseSets(simSets)
	if err != nil {
		return err
	}

	tunnelCfg := cfg.Tunnel()
	var (
		hubSlot  channel.Slot
		hostSlot channel.Slot
		connInfo = "in-process link"
	)
	if cfg.Serial.Port != "" || cfg.WebSocket.URL != "" {
		hubSlot, connInfo, err = OpenConnection(ctx)
		if err != nil {
			return err
		}
	} else {
		hub, peer := channel.NewLink()
		hubSlot, hostSlot = hub, peer
		tunnelCfg.PollInterval = 5 * time.Millisecond
		tunnelCfg.ChunkDelay = 20 * time.Millisecond
	}

	hubSlot, closeTrace, err := recordTo(hubSlot, simRecord)
	if err != nil {
		return err
	}
	defer closeTrace()

	trigger := tunnel.NewSignalTrigger(syscall.SIGUSR1)
	defer trigger.Stop()

	hubLogger := logger.With().Str("side", "hub").Logger()
	t, err := tunnel.New(hubSlot, tunnelCfg, tunnel.WithLogger(hubLogger), tunnel.WithTrigger(trigger))
	if err != nil {
		hubSlot.Close()
		return err
	}
	defer t.Close()

	s := session.New(t,
		session.WithGate(session.StaticGate(reason)),
		session.WithDisplay(session.DisplayFunc(func(n int) {
			hubLogger.Info().Int("line", n).Msg("display")
		})),
		session.WithLogger(hubLogger),
	)
	plotter := telemetry.NewPlotter(t, telemetry.WithLogger(hubLogger))

	fmt.Printf("aipp - Hub Simulator\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Start reason: %s\n", reason)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	hostCtx, cancelHost := context.WithCancel(ctx)
	defer cancelHost()
	var wg sync.WaitGroup
	if hostSlot != nil {
		hostCfg := cfg.Host()
		hostCfg.PollInterval = 2 * time.Millisecond
		hostCfg.ChunkDelay = 20 * time.Millisecond
		hostCfg.ResendInterval = 500 * time.Millisecond
		d, err := host.NewDebugger(hostSlot, hostCfg, host.WithLogger(logger.With().Str("side", "host").Logger()))
		if err != nil {
			return err
		}
		defer hostSlot.Close()
		wg.Go(func() { d.Run(hostCtx) })
		wg.Go(func() { autoHost(hostCtx, d, sets, simPause, os.Stdout) })
	}

	err = runDemoProgram(ctx, s, plotter, os.Stdout)
	cancelHost()
	wg.Wait()

	fmt.Printf("\nSession: %s\n", s.State())
	fmt.Print(t.Statistics())
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func parseStartReason(raw string) (session.StartReason, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "host":
		return session.StartReasonHost, nil
	case "button":
		return session.StartReasonButton, nil
	case "boot":
		return session.StartReasonBoot, nil
	}
	return session.StartReasonUnknown, fmt.Errorf("unknown start reason %q (use host, button or boot)", raw)
}

func parseSets(raw []string) ([]debugCommand, error) {
	sets := make([]debugCommand, 0, len(raw))
	for _, r := range raw {
		name, value, ok := strings.Cut(r, "=")
		if !ok {
			return nil, fmt.Errorf("bad --set %q, want name=value", r)
		}
		c, err := parseDebugCommand("set " + strings.TrimSpace(name) + " " + value)
		if err != nil {
			return nil, fmt.Errorf("bad --set %q: %w", r, err)
		}
		sets = append(sets, c)
	}
	return sets, nil
}

// autoHost answers traps: it applies sets one at a time, waiting for each
// response, then continues after pause
func autoHost(ctx context.Context, d *host.Debugger, sets []debugCommand, pause time.Duration, out io.Writer) {
	var (
		queue  []debugCommand
		resume <-chan time.Time
	)

	next := func() {
		for len(queue) > 0 {
			c := queue[0]
			queue = queue[1:]
			if _, err := c.run(ctx, d); err != nil {
				fmt.Fprintf(out, "host: set %s: %v\n", c.name, err)
				continue
			}
			return
		}
		resume = time.After(pause)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-d.Events():
			fmt.Fprintf(out, "host: %s\n", ev)
			switch ev.Type {
			case host.EventTrapped:
				queue = slices.Clone(sets)
				resume = nil
				next()
			case host.EventVariableSet, host.EventTimeout:
				next()
			case host.EventTerminated:
				return
			}

		case <-resume:
			resume = nil
			if err := d.Continue(ctx, false); err != nil {
				fmt.Fprintf(out, "host: continue: %v\n", err)
			}
		}
	}
}
