// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package trace

import (
	"errors"
	"io"

	"github.com/blocklypy/aipp/pkg/aipp"
)

// Event is one replayed record. Message is set when the record completed a
// message in its direction, Err when the chunk or message was discarded.
type Event struct {
	Record  Record
	Message *aipp.Message
	Err     error
}

// Replay reassembles each direction of the trace independently and calls
// fn for every record
func Replay(r *Reader, f *aipp.Framer, fn func(Event) error) error {
	reassemblers := map[Direction]*aipp.Reassembler{
		Outbound: aipp.NewReassembler(f),
		Inbound:  aipp.NewReassembler(f),
	}

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		ev := Event{Record: rec}
		if ra, ok := reassemblers[rec.Direction]; ok {
			data, done, err := ra.Push(rec.Data)
			switch {
			case err != nil:
				ev.Err = err
			case done:
				msg, err := aipp.DecodeMessage(data)
				if err != nil {
					ev.Err = err
				} else {
					ev.Message = &msg
				}
			}
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
