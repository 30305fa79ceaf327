// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package trace

import (
	"bytes"
	"sync"

	"github.com/blocklypy/aipp/pkg/channel"
	"github.com/rs/zerolog"
)

// RecordingSlot records every successful write and every changed read of
// the wrapped slot. Recording failures are logged, never returned.
type RecordingSlot struct {
	channel.Slot
	w      *Writer
	logger zerolog.Logger

	mu   sync.Mutex
	last []byte
}

// NewRecordingSlot wraps slot
func NewRecordingSlot(slot channel.Slot, w *Writer, logger zerolog.Logger) *RecordingSlot {
	return &RecordingSlot{Slot: slot, w: w, logger: logger}
}

func (s *RecordingSlot) Write(p []byte) error {
	if err := s.Slot.Write(p); err != nil {
		return err
	}
	s.record(Outbound, p)
	return nil
}

func (s *RecordingSlot) Read() ([]byte, error) {
	data, err := s.Slot.Read()
	if err != nil || len(data) == 0 {
		return data, err
	}

	s.mu.Lock()
	changed := !bytes.Equal(data, s.last)
	if changed {
		s.last = append(s.last[:0], data...)
	}
	s.mu.Unlock()

	if changed {
		s.record(Inbound, data)
	}
	return data, nil
}

func (s *RecordingSlot) record(dir Direction, data []byte) {
	if err := s.w.Record(dir, data); err != nil {
		s.logger.Warn().Err(err).Stringer("direction", dir).Msg("trace record lost")
	}
}
