// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/blocklypy/aipp/pkg/aipp"
	"github.com/blocklypy/aipp/pkg/host"
)

type commandKind int

const (
	cmdContinue commandKind = iota
	cmdStep
	cmdSet
	cmdGet
	cmdTerminate
	cmdVars
	cmdPlot
	cmdStats
	cmdHelp
	cmdQuit
)

// errQuit ends an interactive session
var errQuit = errors.New("quit")

const debugHelp = `Commands:
  c, continue          resume the program
  s, step              resume and stop at the next statement
  set <name> <value>   assign a variable (42, 1.5, true, "text", none)
  get <name>           read a variable
  vars                 show the variables of the current trap
  plot                 show the latest plot row
  stats                show link statistics
  t, terminate         stop the program
  q, quit              leave the debugger
`

type debugCommand struct {
	kind  commandKind
	name  string
	value aipp.Value
}

func parseDebugCommand(line string) (debugCommand, error) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "c", "continue":
		return debugCommand{kind: cmdContinue}, nil
	case "s", "step":
		return debugCommand{kind: cmdStep}, nil
	case "t", "terminate":
		return debugCommand{kind: cmdTerminate}, nil
	case "vars":
		return debugCommand{kind: cmdVars}, nil
	case "plot":
		return debugCommand{kind: cmdPlot}, nil
	case "stats":
		return debugCommand{kind: cmdStats}, nil
	case "h", "help", "?":
		return debugCommand{kind: cmdHelp}, nil
	case "q", "quit", "exit":
		return debugCommand{kind: cmdQuit}, nil

	case "get":
		if rest == "" || strings.ContainsAny(rest, " \t") {
			return debugCommand{}, errors.New("usage: get <name>")
		}
		return debugCommand{kind: cmdGet, name: rest}, nil

	case "set":
		name, raw, ok := strings.Cut(rest, " ")
		if !ok || name == "" {
			return debugCommand{}, errors.New("usage: set <name> <value>")
		}
		v, err := parseValue(raw)
		if err != nil {
			return debugCommand{}, err
		}
		return debugCommand{kind: cmdSet, name: name, value: v}, nil

	case "":
		return debugCommand{}, errors.New("empty command")
	}
	return debugCommand{}, fmt.Errorf("unknown command %q (try help)", verb)
}

// parseValue reads a typed literal. Integers outside int32 become floats.
func parseValue(raw string) (aipp.Value, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return aipp.Value{}, errors.New("missing value")
	case raw == "none":
		return aipp.NoneValue(), nil
	case raw == "true" || raw == "false":
		return aipp.BoolValue(raw == "true"), nil
	case strings.HasPrefix(raw, `"`):
		s, err := strconv.Unquote(raw)
		if err != nil {
			return aipp.Value{}, fmt.Errorf("bad string literal %s", raw)
		}
		if strings.IndexByte(s, 0) >= 0 {
			return aipp.Value{}, errors.New("strings cannot contain NUL")
		}
		return aipp.StringValue(s), nil
	}

	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return aipp.IntValue(int32(i)), nil
		}
		return aipp.FloatValue(float32(i)), nil
	}
	if f, err := strconv.ParseFloat(raw, 32); err == nil {
		return aipp.FloatValue(float32(f)), nil
	}
	return aipp.Value{}, fmt.Errorf("cannot parse value %q", raw)
}

// run applies a device command. Local commands return their text.
func (c debugCommand) run(ctx context.Context, d *host.Debugger) (string, error) {
	switch c.kind {
	case cmdContinue:
		return "", d.Continue(ctx, false)
	case cmdStep:
		return "", d.Continue(ctx, true)
	case cmdSet:
		return "", d.SetVariable(ctx, c.name, c.value)
	case cmdGet:
		return "", d.GetVariable(ctx, c.name)
	case cmdTerminate:
		return "", d.Terminate(ctx)
	case cmdVars:
		trap, ok := d.Trap()
		if !ok {
			return "", host.ErrNotTrapped
		}
		return formatTrap(trap), nil
	case cmdPlot:
		return formatPlot(d.Plot()), nil
	case cmdStats:
		return d.Statistics().String(), nil
	case cmdHelp:
		return debugHelp, nil
	case cmdQuit:
		return "", errQuit
	}
	return "", fmt.Errorf("unhandled command %d", c.kind)
}

func formatTrap(trap host.Event) string {
	var s strings.Builder
	fmt.Fprintf(&s, "%s:%d\n", trap.File, trap.Line)
	for _, b := range trap.Bindings {
		fmt.Fprintf(&s, "  %-12s %-6s %s\n", b.Name, aipp.TagName(b.Value.Tag()), b.Value)
	}
	return s.String()
}

func formatPlot(t *host.PlotTable) string {
	columns := t.Columns()
	if len(columns) == 0 {
		return "no plot columns defined\n"
	}
	latest := t.Latest()
	var s strings.Builder
	for i, name := range columns {
		value := "-"
		if i < len(latest) && !math.IsNaN(float64(latest[i])) {
			value = strconv.FormatFloat(float64(latest[i]), 'g', 6, 32)
		}
		fmt.Fprintf(&s, "  %-12s %s\n", name, value)
	}
	return s.String()
}
