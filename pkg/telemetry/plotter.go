// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

// Package telemetry sends plot notifications from the device to the host.
// Plot messages are fire-and-forget: there is no acknowledgement and a
// lost update is simply superseded by the next one.
package telemetry

import (
	"context"
	"slices"

	"github.com/blocklypy/aipp/pkg/aipp"
	"github.com/blocklypy/aipp/pkg/tunnel"
	"github.com/rs/zerolog"
)

// Plotter tracks the known plot columns and sends updates
type Plotter struct {
	tunnel  *tunnel.Tunnel
	columns []string
	logger  zerolog.Logger
}

// Option configures a Plotter
type Option func(*Plotter)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Plotter) {
		p.logger = logger
	}
}

// NewPlotter creates a plotter with no known columns
func NewPlotter(t *tunnel.Tunnel, opts ...Option) *Plotter {
	p := &Plotter{tunnel: t, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Columns returns the known column names in definition order
func (p *Plotter) Columns() []string {
	return slices.Clone(p.columns)
}

// Define announces a new column set, replacing the known columns. The
// host starts a fresh table.
func (p *Plotter) Define(ctx context.Context, columns ...string) error {
	columns = capEntries(columns)
	p.columns = nil
	for _, name := range columns {
		p.learn(name)
	}
	return p.send(ctx, aipp.PlotDefineColumns(columns...))
}

// UpdateCells sends named values. Unknown names become new columns.
func (p *Plotter) UpdateCells(ctx context.Context, cells ...aipp.Cell) error {
	cells = capEntries(cells)
	for _, cell := range cells {
		p.learn(cell.Name)
	}
	return p.send(ctx, aipp.PlotCells(cells...))
}

// UpdateRow sends positional values, truncated to the known columns
func (p *Plotter) UpdateRow(ctx context.Context, values ...float32) error {
	values = capEntries(values)
	if len(values) > len(p.columns) {
		p.logger.Debug().Int("values", len(values)).Int("columns", len(p.columns)).Msg("row truncated")
		values = values[:len(p.columns)]
	}
	return p.send(ctx, aipp.PlotRow(values...))
}

// Reset forgets the known columns
func (p *Plotter) Reset() {
	p.columns = nil
}

func (p *Plotter) learn(name string) {
	if !slices.Contains(p.columns, name) {
		p.columns = append(p.columns, name)
	}
}

func (p *Plotter) send(ctx context.Context, m aipp.PlotMessage) error {
	data, err := aipp.EncodePlot(m)
	if err != nil {
		return err
	}
	if err := p.tunnel.Send(ctx, data); err != nil {
		p.logger.Debug().Err(err).Str("subcode", aipp.PlotSubCodeName(m.SubCode)).Msg("plot update not sent")
		return err
	}
	return nil
}

func capEntries[T any](items []T) []T {
	if len(items) > aipp.MaxEntries {
		return items[:aipp.MaxEntries]
	}
	return items
}
