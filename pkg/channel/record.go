// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package channel

import "fmt"

// Stream record framing. Each slot write crosses a byte stream as
// START, stuffed(length, data, crc16), END.
const (
	recordStart  = 0x7E
	recordEnd    = 0x7F
	recordEsc    = 0x7D
	recordEscXor = 0x20

	maxRecordSize = 255
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// record decoder states
const (
	stateIdle = iota
	stateLength
	stateData
	stateCRC1
	stateCRC2
	stateEnd
)

// calculateCRC computes CRC-16-CCITT over data
func calculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// encodeRecord frames one slot value for a byte stream
func encodeRecord(value []byte) ([]byte, error) {
	if len(value) > maxRecordSize {
		return nil, fmt.Errorf("record too large: %d bytes (max %d)", len(value), maxRecordSize)
	}

	data := make([]byte, 0, len(value)+3)
	data = append(data, byte(len(value)))
	data = append(data, value...)
	crc := calculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	out := make([]byte, 0, len(data)*2+2)
	out = append(out, recordStart)
	for _, b := range data {
		if b == recordStart || b == recordEnd || b == recordEsc {
			out = append(out, recordEsc, b^recordEscXor)
		} else {
			out = append(out, b)
		}
	}
	return append(out, recordEnd), nil
}

// recordDecoder rebuilds records from a byte stream one byte at a time
type recordDecoder struct {
	state      int
	escapeNext bool
	length     int
	data       []byte
	crc        uint16
}

func newRecordDecoder() *recordDecoder {
	return &recordDecoder{data: make([]byte, 0, maxRecordSize+1)}
}

func (d *recordDecoder) reset() {
	d.state = stateIdle
	d.escapeNext = false
	d.length = 0
	d.data = d.data[:0]
	d.crc = 0
}

// decodeByte returns a completed record, nil while incomplete, or an error
// when a record is discarded
func (d *recordDecoder) decodeByte(b byte) ([]byte, error) {
	if b == recordStart && !d.escapeNext {
		d.reset()
		d.state = stateLength
		return nil, nil
	}

	if b == recordEnd && !d.escapeNext {
		if d.state != stateEnd {
			state := d.state
			d.reset()
			if state == stateIdle {
				return nil, nil
			}
			return nil, fmt.Errorf("unexpected END byte in state %d", state)
		}
		body := append([]byte{byte(d.length)}, d.data...)
		if calculated := calculateCRC(body); calculated != d.crc {
			d.reset()
			return nil, fmt.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", calculated, d.crc)
		}
		record := make([]byte, len(d.data))
		copy(record, d.data)
		d.reset()
		return record, nil
	}

	if b == recordEsc && !d.escapeNext && d.state != stateIdle {
		d.escapeNext = true
		return nil, nil
	}
	if d.escapeNext {
		b ^= recordEscXor
		d.escapeNext = false
	}

	switch d.state {
	case stateIdle:
		return nil, nil

	case stateLength:
		d.length = int(b)
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = stateData
		}
		return nil, nil

	case stateData:
		d.data = append(d.data, b)
		if len(d.data) >= d.length {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	case stateEnd:
		d.reset()
		return nil, fmt.Errorf("expected END byte, got 0x%02X", b)

	default:
		d.reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}
