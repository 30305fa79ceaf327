// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/blocklypy/aipp/pkg/session"
	"github.com/blocklypy/aipp/pkg/telemetry"
)

const (
	demoFile     = "demo.py"
	demoTrapLine = 12
)

// demoState is the simulated program's variables. A proportional
// controller drives speed toward target.
type demoState struct {
	speed  float64
	target float64
	gain   float64
	count  int
	status string
}

func (st *demoState) step() {
	st.speed += (st.target - st.speed) * st.gain
	st.count++
}

func (st *demoState) names() []string {
	return []string{"speed", "target", "gain", "count", "status"}
}

func (st *demoState) values() []any {
	return []any{st.speed, st.target, st.gain, st.count, st.status}
}

// load takes back values edited at a trap. The host may change a value's
// type, so numbers are converted and anything else keeps the old value.
func (st *demoState) load(values []any) {
	st.speed = toFloat(values[0], st.speed)
	st.target = toFloat(values[1], st.target)
	st.gain = toFloat(values[2], st.gain)
	st.count = int(toFloat(values[3], float64(st.count)))
	if s, ok := values[4].(string); ok {
		st.status = s
	}
}

func toFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	}
	return fallback
}

// runDemoProgram is the hub-side program: handshake, then plot every step
// and trap every simTrapEvery steps
func runDemoProgram(ctx context.Context, s *session.Session, plotter *telemetry.Plotter, out io.Writer) error {
	if s.Start(ctx) {
		fmt.Fprintf(out, "hub: debug session started\n")
	} else {
		fmt.Fprintf(out, "hub: running without debugger (%s)\n", s.State())
	}

	if err := plotter.Define(ctx, "speed", "target"); err != nil {
		return err
	}

	st := &demoState{target: 100, gain: 0.2, status: "running"}
	for i := 0; i < simSteps; i++ {
		st.step()
		if err := plotter.UpdateRow(ctx, float32(st.speed), float32(st.target)); err != nil {
			return err
		}

		if simTrapEvery > 0 && (i+1)%simTrapEvery == 0 {
			values := st.values()
			result, err := s.TrapValues(ctx, demoFile, demoTrapLine, st.names(), values)
			if err != nil {
				return err
			}
			st.load(values)
			switch result.Resume {
			case session.ResumeTerminated:
				fmt.Fprintf(out, "hub: terminated by host at step %d\n", st.count)
				return nil
			case session.ResumeContinue, session.ResumeManual:
				fmt.Fprintf(out, "hub: resumed (%s) speed=%.2f target=%.2f gain=%.2f\n", result.Resume, st.speed, st.target, st.gain)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(simStepDelay):
		}
	}

	fmt.Fprintf(out, "hub: finished %d steps, speed=%.2f\n", st.count, st.speed)
	return nil
}
