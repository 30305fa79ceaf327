// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

// Package tunnel runs AIPP messages over a single-slot channel.
//
// The wait loop polls the channel at a fixed interval, reassembles and
// decodes whatever changed, resends an unanswered message periodically and
// gives up after a number of iterations or when an operator trigger fires.
// The sleep between polls is the only suspension point.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blocklypy/aipp/pkg/aipp"
	"github.com/blocklypy/aipp/pkg/channel"
	"github.com/rs/zerolog"
)

// Wait outcomes
var (
	ErrTimedOut       = errors.New("tunnel: wait timed out")
	ErrManualContinue = errors.New("tunnel: manual continue")
)

// Sleeper suspends the loop between polls
type Sleeper func(ctx context.Context, d time.Duration) error

// Expectation selects which decoded message ends a wait
type Expectation struct {
	Type       aipp.MessageType
	SubCode    byte
	AnySubCode bool
}

// Expect matches a debug message with the given subcode
func Expect(sub aipp.SubCode) *Expectation {
	return &Expectation{Type: sub.Direction(), SubCode: byte(sub)}
}

// ExpectType matches any message of type t
func ExpectType(t aipp.MessageType) *Expectation {
	return &Expectation{Type: t, AnySubCode: true}
}

// Matches reports whether m satisfies the expectation. A nil expectation
// matches every message.
func (e *Expectation) Matches(m aipp.Message) bool {
	if e == nil {
		return true
	}
	if m.Type != e.Type {
		return false
	}
	if e.AnySubCode {
		return true
	}
	switch {
	case m.Type.IsDebug():
		return byte(m.Debug.SubCode) == e.SubCode
	case m.Type.IsPlot():
		return byte(m.Plot.SubCode) == e.SubCode
	default:
		return false
	}
}

// Tunnel frames, sends and waits for messages on one channel
type Tunnel struct {
	driver      *channel.Driver
	framer      *aipp.Framer
	reassembler *aipp.Reassembler
	cfg         Config

	trigger Trigger
	sleep   Sleeper
	stats   *aipp.Statistics
	logger  zerolog.Logger
}

// Option configures a Tunnel
type Option func(*Tunnel)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tunnel) {
		t.logger = logger
	}
}

// WithTrigger sets the manual-override trigger
func WithTrigger(trigger Trigger) Option {
	return func(t *Tunnel) {
		t.trigger = trigger
	}
}

// WithSleeper replaces the sleep between polls
func WithSleeper(sleep Sleeper) Option {
	return func(t *Tunnel) {
		t.sleep = sleep
	}
}

// WithStatistics shares a statistics tracker
func WithStatistics(stats *aipp.Statistics) Option {
	return func(t *Tunnel) {
		t.stats = stats
	}
}

// New creates a tunnel over slot
func New(slot channel.Slot, cfg Config, opts ...Option) (*Tunnel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tunnel config: %w", err)
	}
	framer, err := aipp.NewFramer(cfg.MTU, cfg.framerOptions()...)
	if err != nil {
		return nil, err
	}

	t := &Tunnel{
		driver:      channel.NewDriver(slot, cfg.MTU),
		framer:      framer,
		reassembler: aipp.NewReassembler(framer),
		cfg:         cfg,
		sleep:       sleepContext,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.stats == nil {
		t.stats = aipp.NewStatistics()
	}
	return t, nil
}

// Config returns the link parameters
func (t *Tunnel) Config() Config { return t.cfg }

// Framer returns the chunk framer
func (t *Tunnel) Framer() *aipp.Framer { return t.framer }

// Statistics returns the link counters
func (t *Tunnel) Statistics() *aipp.Statistics { return t.stats }

// Close closes the underlying slot
func (t *Tunnel) Close() error { return t.driver.Close() }

// Send frames message and writes every chunk. Write failures are logged
// and returned but leave the tunnel usable.
func (t *Tunnel) Send(ctx context.Context, message []byte) error {
	chunks := t.framer.Encode(message)
	var firstErr error
	for i, chunk := range chunks {
		if i > 0 && t.cfg.ChunkDelay > 0 {
			if err := t.sleep(ctx, t.cfg.ChunkDelay); err != nil {
				return err
			}
		}
		if err := t.driver.Send(chunk); err != nil {
			t.logger.Debug().Err(err).Int("chunk", i).Msg("chunk write failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("write chunk %d: %w", i, err)
			}
		}
	}
	t.stats.RecordSent(len(chunks))
	t.logger.Trace().Hex("message", message).Int("chunks", len(chunks)).Msg("sent")
	return firstErr
}

// SendMessage encodes and sends m
func (t *Tunnel) SendMessage(ctx context.Context, m aipp.Message) error {
	data, err := aipp.EncodeMessage(m)
	if err != nil {
		return err
	}
	return t.Send(ctx, data)
}

// Poll performs one read of the channel. It returns a message when the
// newest chunk completed one. Framing and decode errors are counted and
// logged, never returned.
func (t *Tunnel) Poll() (aipp.Message, bool) {
	raw, ok := t.driver.Next()
	if !ok {
		return aipp.Message{}, false
	}
	t.stats.RecordChunk()

	data, done, err := t.reassembler.Push(raw)
	if err != nil {
		t.stats.RecordError(err)
		t.logger.Debug().Err(err).Hex("chunk", raw).Msg("discarded chunk")
		return aipp.Message{}, false
	}
	if !done {
		return aipp.Message{}, false
	}

	msg, err := aipp.DecodeMessage(data)
	if err != nil {
		t.stats.RecordError(err)
		t.logger.Debug().Err(err).Hex("message", data).Msg("discarded message")
		return aipp.Message{}, false
	}
	t.stats.RecordMessage()
	t.logger.Trace().Str("type", aipp.FormatMessageType(msg.Type)).Hex("raw", data).Msg("received")
	return msg, true
}

// Wait polls until a message matching expect arrives. When toSend is set
// it is sent on the first iteration and again every ResendEvery iterations.
// A timeout of zero or less waits forever. Wait returns ErrTimedOut,
// ErrManualContinue or the context error when no message ends the wait.
func (t *Tunnel) Wait(ctx context.Context, expect *Expectation, toSend []byte, timeout int) (aipp.Message, error) {
	for iteration := 0; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return aipp.Message{}, err
		}

		if msg, ok := t.Poll(); ok {
			if expect.Matches(msg) {
				return msg, nil
			}
			t.logger.Debug().Str("type", aipp.FormatMessageType(msg.Type)).Msg("ignored unexpected message")
		}

		if toSend != nil && iteration%t.cfg.ResendEvery == 0 {
			if iteration > 0 {
				t.stats.RecordResend()
				t.logger.Debug().Int("iteration", iteration).Msg("resending")
			}
			if err := t.Send(ctx, toSend); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return aipp.Message{}, ctxErr
				}
				t.logger.Debug().Err(err).Int("iteration", iteration).Msg("send failed, will resend")
			}
		}

		if t.trigger != nil && t.trigger.Fired() {
			t.logger.Info().Msg("manual continue")
			return aipp.Message{}, ErrManualContinue
		}

		if timeout > 0 && iteration+1 > timeout {
			t.stats.RecordTimeout()
			return aipp.Message{}, ErrTimedOut
		}

		if err := t.sleep(ctx, t.cfg.PollInterval); err != nil {
			return aipp.Message{}, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
