// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

// Package session implements the device side of an AIPP debug session:
// the start handshake and the trap loop that suspends the program until
// the host continues, edits a variable or terminates.
package session

import (
	"context"
	"errors"

	"github.com/blocklypy/aipp/pkg/aipp"
	"github.com/blocklypy/aipp/pkg/tunnel"
	"github.com/rs/zerolog"
)

// State is the session lifecycle state
type State int

const (
	Uninitialized State = iota
	Handshaking
	Handshaken
	Trapped
	Terminated
	Disabled
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Handshaking:
		return "handshaking"
	case Handshaken:
		return "handshaken"
	case Trapped:
		return "trapped"
	case Terminated:
		return "terminated"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Session owns the debug state of one program run
type Session struct {
	tunnel  *tunnel.Tunnel
	gate    Gate
	display Display
	logger  zerolog.Logger

	state     State
	attempted bool
}

// Option configures a Session
type Option func(*Session)

// WithGate sets the start gate. Without one the session always starts.
func WithGate(gate Gate) Option {
	return func(s *Session) {
		s.gate = gate
	}
}

// WithDisplay sets the line number display
func WithDisplay(display Display) Option {
	return func(s *Session) {
		s.display = display
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New creates an uninitialized session on t
func New(t *tunnel.Tunnel, opts ...Option) *Session {
	s := &Session{
		tunnel: t,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return s.state
}

// Active reports whether traps will be sent to the host
func (s *Session) Active() bool {
	return s.state == Handshaken || s.state == Trapped
}

// Tunnel returns the underlying tunnel
func (s *Session) Tunnel() *tunnel.Tunnel {
	return s.tunnel
}

// Start performs the handshake. It runs at most once per session: a gate
// refusal, a negative ack or a timeout leaves debugging off for the run.
func (s *Session) Start(ctx context.Context) bool {
	if s.attempted {
		return s.Active()
	}
	s.attempted = true

	if s.gate != nil {
		if reason := s.gate.StartReason(); reason != StartReasonHost {
			s.logger.Debug().Stringer("reason", reason).Msg("debugging not requested at start")
			return false
		}
	}

	s.state = Handshaking
	notify, err := aipp.EncodeDebug(aipp.StartNotify())
	if err != nil {
		s.state = Disabled
		return false
	}

	ack, err := s.tunnel.Wait(ctx, tunnel.Expect(aipp.SubStartAck), notify, s.tunnel.Config().Timeout)
	if err != nil {
		s.logger.Info().Err(err).Msg("handshake failed, debugging disabled")
		s.state = Disabled
		return false
	}
	if !ack.Debug.Success {
		s.logger.Info().Msg("host declined debug session")
		s.state = Disabled
		return false
	}

	s.state = Handshaken
	s.logger.Info().Msg("debug session started")
	return true
}

// reply sends a response without waiting for an acknowledgement. The host
// re-requests on loss, so a failed write is only logged.
func (s *Session) reply(ctx context.Context, m aipp.DebugMessage) {
	data, err := aipp.EncodeDebug(m)
	if err == nil {
		err = s.tunnel.Send(ctx, data)
	}
	if err != nil {
		s.logger.Debug().Err(err).Str("subcode", aipp.SubCodeName(m.SubCode)).Msg("reply not sent")
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
