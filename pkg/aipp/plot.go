// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package aipp

import "fmt"

// Cell is a named plot value
type Cell struct {
	Name  string
	Value float32
}

// PlotMessage is a decoded plot message
type PlotMessage struct {
	SubCode PlotSubCode
	Columns []string  // Define
	Cells   []Cell    // UpdateCells
	Row     []float32 // UpdateRow
}

// Type returns the outer message type for the plot subcode
func (m PlotMessage) Type() MessageType {
	if m.SubCode == PlotAck {
		return MsgPlotAcknowledge
	}
	return MsgPlotNotification
}

// Plot message constructors

func PlotAcknowledge() PlotMessage { return PlotMessage{SubCode: PlotAck} }

func PlotDefineColumns(columns ...string) PlotMessage {
	return PlotMessage{SubCode: PlotDefine, Columns: columns}
}

func PlotCells(cells ...Cell) PlotMessage {
	return PlotMessage{SubCode: PlotUpdateCells, Cells: cells}
}

func PlotRow(values ...float32) PlotMessage {
	return PlotMessage{SubCode: PlotUpdateRow, Row: values}
}

// EncodePlot serializes a plot message. Lists are capped at MaxEntries.
func EncodePlot(m PlotMessage) ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = append(buf, byte(m.Type()), byte(m.SubCode))

	switch m.SubCode {
	case PlotAck:
		// header only
	case PlotDefine:
		n := min(len(m.Columns), MaxEntries)
		buf = append(buf, byte(n))
		for _, column := range m.Columns[:n] {
			buf = appendZString(buf, column)
		}
	case PlotUpdateCells:
		n := min(len(m.Cells), MaxEntries)
		buf = append(buf, byte(n))
		for _, cell := range m.Cells[:n] {
			buf = appendZString(buf, cell.Name)
			buf = appendFloat32(buf, cell.Value)
		}
	case PlotUpdateRow:
		n := min(len(m.Row), MaxEntries)
		buf = append(buf, byte(n))
		for _, v := range m.Row[:n] {
			buf = appendFloat32(buf, v)
		}
	default:
		return nil, fmt.Errorf("%w: plot subcode 0x%02X", ErrMalformed, byte(m.SubCode))
	}
	return buf, nil
}

// DecodePlot parses a plot message starting with its outer type byte
func DecodePlot(data []byte) (PlotMessage, error) {
	if len(data) < 2 {
		return PlotMessage{}, fmt.Errorf("%w: %d bytes, need outer type and subcode", ErrTruncated, len(data))
	}
	if !MessageType(data[0]).IsPlot() {
		return PlotMessage{}, fmt.Errorf("%w: 0x%02X is not a plot message", ErrUnknownType, data[0])
	}

	m := PlotMessage{SubCode: PlotSubCode(data[1])}
	r := &reader{data: data, pos: 2}

	switch m.SubCode {
	case PlotAck:
		return m, nil

	case PlotDefine:
		count, err := r.byte("column count")
		if err != nil {
			return PlotMessage{}, err
		}
		m.Columns = make([]string, 0, count)
		for i := 0; i < int(count); i++ {
			column, err := r.zstring("column name")
			if err != nil {
				return PlotMessage{}, err
			}
			m.Columns = append(m.Columns, column)
		}

	case PlotUpdateCells:
		count, err := r.byte("cell count")
		if err != nil {
			return PlotMessage{}, err
		}
		m.Cells = make([]Cell, 0, count)
		for i := 0; i < int(count); i++ {
			name, err := r.zstring("cell name")
			if err != nil {
				return PlotMessage{}, err
			}
			v, err := r.float32(name)
			if err != nil {
				return PlotMessage{}, err
			}
			m.Cells = append(m.Cells, Cell{Name: name, Value: v})
		}

	case PlotUpdateRow:
		count, err := r.byte("row count")
		if err != nil {
			return PlotMessage{}, err
		}
		m.Row = make([]float32, 0, count)
		for i := 0; i < int(count); i++ {
			v, err := r.float32("row value")
			if err != nil {
				return PlotMessage{}, err
			}
			m.Row = append(m.Row, v)
		}

	default:
		return PlotMessage{}, fmt.Errorf("%w: unknown plot subcode 0x%02X", ErrMalformed, data[1])
	}
	return m, nil
}
