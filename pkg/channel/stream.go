// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package channel

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// StreamSlot carries slot values over a byte stream such as a serial port.
// A background reader decodes incoming records and keeps only the newest.
type StreamSlot struct {
	rw      io.ReadWriteCloser
	inbound latch
	writeMu sync.Mutex
	logger  zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
	closing   chan struct{}
}

// NewStreamSlot starts reading records from rw
func NewStreamSlot(rw io.ReadWriteCloser, logger zerolog.Logger) *StreamSlot {
	s := &StreamSlot{
		rw:      rw,
		logger:  logger,
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// OpenSerial opens a serial port and wraps it as a slot
func OpenSerial(portName string, baudRate int, logger zerolog.Logger) (*StreamSlot, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return NewStreamSlot(port, logger.With().Str("port", portName).Logger()), nil
}

func (s *StreamSlot) readLoop() {
	defer close(s.done)
	defer s.inbound.close()

	decoder := newRecordDecoder()
	buf := make([]byte, 256)

	for {
		n, err := s.rw.Read(buf)
		for i := 0; i < n; i++ {
			record, derr := decoder.decodeByte(buf[i])
			if derr != nil {
				s.logger.Debug().Err(derr).Msg("discarded stream record")
				continue
			}
			if record != nil {
				s.inbound.store(record)
			}
		}
		if err != nil {
			select {
			case <-s.closing:
			default:
				if !errors.Is(err, io.EOF) {
					s.logger.Warn().Err(err).Msg("stream read failed")
				}
			}
			return
		}
	}
}

// Write sends one slot value as a framed record
func (s *StreamSlot) Write(p []byte) error {
	record, err := encodeRecord(p)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.rw.Write(record); err != nil {
		return fmt.Errorf("stream write: %w", err)
	}
	return nil
}

// Read returns the newest record received
func (s *StreamSlot) Read() ([]byte, error) {
	return s.inbound.load()
}

// Done is closed once the reader has stopped
func (s *StreamSlot) Done() <-chan struct{} {
	return s.done
}

// Close closes the stream and waits for the reader to stop
func (s *StreamSlot) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		err = s.rw.Close()
		<-s.done
	})
	return err
}
