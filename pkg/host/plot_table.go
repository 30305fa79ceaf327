// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package host

import (
	"math"
	"slices"
	"sync"

	"github.com/blocklypy/aipp/pkg/aipp"
)

// DefaultMaxRows bounds the rows kept by a PlotTable
const DefaultMaxRows = 1000

// PlotTable accumulates plot notifications into rows of column values.
// Columns missing from an update are NaN in that row.
type PlotTable struct {
	mu      sync.RWMutex
	columns []string
	rows    [][]float32
	maxRows int
}

// NewPlotTable creates a table keeping at most maxRows rows
func NewPlotTable(maxRows int) *PlotTable {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &PlotTable{maxRows: maxRows}
}

// Apply updates the table from one plot message. Define starts a new
// table with the given columns.
func (t *PlotTable) Apply(m aipp.PlotMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch m.SubCode {
	case aipp.PlotDefine:
		t.columns = nil
		t.rows = nil
		for _, name := range m.Columns {
			t.column(name)
		}
	case aipp.PlotUpdateCells:
		row := t.blankRow(len(t.columns) + len(m.Cells))
		for _, cell := range m.Cells {
			i := t.column(cell.Name)
			row[i] = cell.Value
		}
		t.append(row[:len(t.columns)])
	case aipp.PlotUpdateRow:
		row := t.blankRow(len(t.columns))
		copy(row, m.Row)
		t.append(row)
	}
}

// Columns returns the column names
func (t *PlotTable) Columns() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.columns)
}

// Rows returns a copy of the stored rows, oldest first. Rows recorded
// before a column was defined are padded with NaN.
func (t *PlotTable) Rows() [][]float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := make([][]float32, len(t.rows))
	for i, row := range t.rows {
		rows[i] = t.pad(row)
	}
	return rows
}

// Latest returns the newest row, or nil
func (t *PlotTable) Latest() []float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.rows) == 0 {
		return nil
	}
	return t.pad(t.rows[len(t.rows)-1])
}

// Reset clears columns and rows
func (t *PlotTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.columns = nil
	t.rows = nil
}

func (t *PlotTable) column(name string) int {
	if i := slices.Index(t.columns, name); i >= 0 {
		return i
	}
	t.columns = append(t.columns, name)
	return len(t.columns) - 1
}

func (t *PlotTable) blankRow(n int) []float32 {
	row := make([]float32, n)
	for i := range row {
		row[i] = float32(math.NaN())
	}
	return row
}

func (t *PlotTable) append(row []float32) {
	if len(t.rows) >= t.maxRows {
		t.rows = slices.Delete(t.rows, 0, len(t.rows)-t.maxRows+1)
	}
	t.rows = append(t.rows, row)
}

func (t *PlotTable) pad(row []float32) []float32 {
	out := t.blankRow(len(t.columns))
	copy(out, row)
	return out
}
