// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package cmd

import (
	"fmt"
	"os"

	"github.com/blocklypy/aipp/pkg/channel"
	"github.com/blocklypy/aipp/pkg/trace"
)

// recordTo wraps slot so its traffic is appended to a new trace file at
// path. An empty path returns slot unchanged.
func recordTo(slot channel.Slot, path string) (channel.Slot, func() error, error) {
	if path == "" {
		return slot, func() error { return nil }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace file: %w", err)
	}
	w, err := trace.NewWriter(f, cfg.Link.MTU)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	logger.Info().
		Str("file", path).
		Str("session", w.Header().SessionID).
		Msg("recording trace")
	return trace.NewRecordingSlot(slot, w, logger), f.Close, nil
}

// slotDone returns a channel closed when a connection-backed slot drops.
// In-process slots never drop and return nil.
func slotDone(slot channel.Slot) <-chan struct{} {
	if d, ok := slot.(interface{ Done() <-chan struct{} }); ok {
		return d.Done()
	}
	return nil
}
