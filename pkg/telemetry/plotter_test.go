// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package telemetry

import (
	"context"
	"testing"

	"github.com/blocklypy/aipp/pkg/aipp"
	"github.com/blocklypy/aipp/pkg/channel"
	"github.com/blocklypy/aipp/pkg/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	channel.Slot
	writes [][]byte
}

func (r *recorder) Write(p []byte) error {
	r.writes = append(r.writes, append([]byte(nil), p...))
	return r.Slot.Write(p)
}

func newTestPlotter(t *testing.T) (*Plotter, *recorder) {
	t.Helper()
	local, _ := channel.NewLink()
	rec := &recorder{Slot: local}
	cfg := tunnel.DefaultConfig()
	cfg.ChunkDelay = 0
	tun, err := tunnel.New(rec, cfg)
	require.NoError(t, err)
	return NewPlotter(tun), rec
}

// lastMessage reassembles the final message written by the plotter
func lastMessage(t *testing.T, rec *recorder) aipp.PlotMessage {
	t.Helper()
	f, err := aipp.NewFramer(aipp.DefaultMTU)
	require.NoError(t, err)
	r := aipp.NewReassembler(f)

	var last []byte
	for _, chunk := range rec.writes {
		data, done, err := r.Push(chunk)
		require.NoError(t, err)
		if done {
			last = data
		}
	}
	require.NotNil(t, last)
	m, err := aipp.DecodePlot(last)
	require.NoError(t, err)
	return m
}

func TestPlotter_DefineAndRow(t *testing.T) {
	p, rec := newTestPlotter(t)
	ctx := context.Background()

	require.NoError(t, p.Define(ctx, "speed", "angle"))
	assert.Equal(t, []string{"speed", "angle"}, p.Columns())
	m := lastMessage(t, rec)
	assert.Equal(t, aipp.PlotDefine, m.SubCode)
	assert.Equal(t, []string{"speed", "angle"}, m.Columns)

	require.NoError(t, p.UpdateRow(ctx, 1, 2, 3))
	m = lastMessage(t, rec)
	assert.Equal(t, aipp.PlotUpdateRow, m.SubCode)
	assert.Equal(t, []float32{1, 2}, m.Row, "truncated to known columns")
}

func TestPlotter_CellsLearnColumns(t *testing.T) {
	p, rec := newTestPlotter(t)
	ctx := context.Background()

	require.NoError(t, p.Define(ctx, "a"))
	require.NoError(t, p.UpdateCells(ctx, aipp.Cell{Name: "b", Value: 1.5}, aipp.Cell{Name: "a", Value: 2}))
	assert.Equal(t, []string{"a", "b"}, p.Columns())

	m := lastMessage(t, rec)
	assert.Equal(t, aipp.PlotUpdateCells, m.SubCode)
	assert.Equal(t, []aipp.Cell{{Name: "b", Value: 1.5}, {Name: "a", Value: 2}}, m.Cells)

	// redefining replaces the column set
	require.NoError(t, p.Define(ctx, "c", "a"))
	assert.Equal(t, []string{"c", "a"}, p.Columns())
}

func TestPlotter_RowWithoutColumns(t *testing.T) {
	p, rec := newTestPlotter(t)
	require.NoError(t, p.UpdateRow(context.Background(), 1, 2))
	m := lastMessage(t, rec)
	assert.Empty(t, m.Row)

	p.Reset()
	assert.Empty(t, p.Columns())
}

func TestPlotter_SendFailure(t *testing.T) {
	p, _ := newTestPlotter(t)
	require.NoError(t, p.tunnel.Close())
	assert.ErrorIs(t, p.Define(context.Background(), "a"), channel.ErrClosed)
}
