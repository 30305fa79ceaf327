// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package tunnel

import (
	"fmt"
	"time"

	"github.com/blocklypy/aipp/pkg/aipp"
)

// Default link timing
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultResendEvery  = 50  // iterations between resends of an unanswered message
	DefaultTimeout      = 100 // iterations for bounded waits

	// DefaultChunkDelay separates chunks of one message. The slot holds a
	// single value, so the peer must poll each chunk before the next
	// overwrites it. Hosts poll every 20ms by default.
	DefaultChunkDelay = 60 * time.Millisecond
)

// Config holds link parameters. Timeouts count poll iterations.
type Config struct {
	MTU           int
	PollInterval  time.Duration
	ResendEvery   int
	Timeout       int
	ChunkDelay    time.Duration
	LegacyMarkers bool
	PadChunks     bool
}

// DefaultConfig returns the hub link defaults
func DefaultConfig() Config {
	return Config{
		MTU:          aipp.DefaultMTU,
		PollInterval: DefaultPollInterval,
		ResendEvery:  DefaultResendEvery,
		Timeout:      DefaultTimeout,
		ChunkDelay:   DefaultChunkDelay,
	}
}

// Validate checks the config for values the wait loop cannot run with
func (c Config) Validate() error {
	if c.MTU < aipp.MinMTU {
		return fmt.Errorf("mtu must be at least %d, got %d", aipp.MinMTU, c.MTU)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.ResendEvery <= 0 {
		return fmt.Errorf("resend period must be positive, got %d", c.ResendEvery)
	}
	if c.ChunkDelay < 0 {
		return fmt.Errorf("chunk delay must not be negative, got %s", c.ChunkDelay)
	}
	return nil
}

func (c Config) framerOptions() []aipp.FramerOption {
	var opts []aipp.FramerOption
	if c.LegacyMarkers {
		opts = append(opts, aipp.WithLegacyMarkers())
	}
	if c.PadChunks {
		opts = append(opts, aipp.WithPadding())
	}
	return opts
}
