// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/blocklypy/aipp/pkg/aipp"
	"github.com/blocklypy/aipp/pkg/tunnel"
)

// Resume says how a trap ended
type Resume int

const (
	ResumeSkipped    Resume = iota // no session, or the host did not ack the trap
	ResumeContinue                 // ContinueRequest from the host
	ResumeManual                   // operator override on the device
	ResumeTerminated               // TerminateRequest from the host
)

func (r Resume) String() string {
	switch r {
	case ResumeSkipped:
		return "skipped"
	case ResumeContinue:
		return "continue"
	case ResumeManual:
		return "manual"
	case ResumeTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TrapResult is what the program sees when a trap returns
type TrapResult struct {
	Resume   Resume
	Step     bool
	Bindings aipp.Bindings
}

// Trap suspends at file:line and exposes bindings to the host. Bindings are
// edited in place by SetVarRequest. Only a cancelled context is returned as
// an error; every protocol failure degrades to ResumeSkipped.
func (s *Session) Trap(ctx context.Context, file string, line uint16, bindings aipp.Bindings) (TrapResult, error) {
	result := TrapResult{Resume: ResumeSkipped, Bindings: bindings}
	switch s.state {
	case Handshaken:
	case Terminated:
		result.Resume = ResumeTerminated
		return result, nil
	default:
		return result, nil
	}

	if s.display != nil {
		s.display.ShowNumber(int(line))
	}

	notify, err := aipp.EncodeDebug(aipp.TrapNotify(file, line, bindings))
	if err != nil {
		return result, err
	}
	ack, err := s.tunnel.Wait(ctx, tunnel.Expect(aipp.SubTrapAck), notify, s.tunnel.Config().Timeout)
	if err != nil {
		if isContextError(err) {
			return result, err
		}
		s.logger.Debug().Err(err).Str("file", file).Uint16("line", line).Msg("trap not acknowledged")
		return result, nil
	}
	if !ack.Debug.Success {
		s.logger.Debug().Str("file", file).Uint16("line", line).Msg("trap declined")
		return result, nil
	}

	s.state = Trapped
	s.logger.Debug().Str("file", file).Uint16("line", line).Int("bindings", len(bindings)).Msg("trapped")

	for {
		msg, err := s.tunnel.Wait(ctx, tunnel.ExpectType(aipp.MsgDebugAcknowledge), nil, 0)
		if errors.Is(err, tunnel.ErrManualContinue) {
			s.reply(ctx, aipp.ContinueResponse())
			s.state = Handshaken
			result.Resume = ResumeManual
			result.Step = true
			return result, nil
		}
		if err != nil {
			s.state = Handshaken
			return result, err
		}

		req := msg.Debug
		switch req.SubCode {
		case aipp.SubContinueRequest:
			s.reply(ctx, aipp.ContinueResponse())
			s.state = Handshaken
			result.Resume = ResumeContinue
			result.Step = req.Step
			return result, nil

		case aipp.SubSetVarRequest:
			s.reply(ctx, s.setVar(bindings, req.Name, req.Value))

		case aipp.SubGetVarRequest:
			v, ok := bindings.Get(req.Name)
			if !ok {
				v = aipp.NoneValue()
			}
			s.reply(ctx, aipp.GetVarResponse(req.Name, v))

		case aipp.SubTerminateRequest:
			s.state = Terminated
			s.logger.Info().Msg("host terminated debug session")
			result.Resume = ResumeTerminated
			return result, nil

		default:
			s.logger.Debug().Str("subcode", aipp.SubCodeName(req.SubCode)).Msg("ignored while trapped")
		}
	}
}

func (s *Session) setVar(bindings aipp.Bindings, name string, v aipp.Value) aipp.DebugMessage {
	if !bindings.Set(name, v) {
		s.logger.Debug().Str("name", name).Msg("set of unexposed variable refused")
		return aipp.SetVarResponse(fmt.Sprintf("unknown variable %s", name))
	}
	s.logger.Debug().Str("name", name).Stringer("value", v).Msg("variable set")
	return aipp.SetVarResponse("")
}

// TrapValues traps with native Go values. Values that have no wire
// representation are not exposed. Edited values are written back into
// values, keeping the original Go type where the new value allows it.
func (s *Session) TrapValues(ctx context.Context, file string, line uint16, names []string, values []any) (TrapResult, error) {
	if len(names) != len(values) {
		return TrapResult{Resume: ResumeSkipped}, fmt.Errorf("trap %s:%d: %d names for %d values", file, line, len(names), len(values))
	}

	var (
		bindings aipp.Bindings
		index    []int
	)
	for i, name := range names {
		v, err := aipp.ValueOf(values[i])
		if err != nil {
			s.logger.Debug().Err(err).Str("name", name).Msg("variable not exposed")
			continue
		}
		bindings = append(bindings, aipp.Binding{Name: name, Value: v})
		index = append(index, i)
	}
	original := bindings.Clone()

	result, err := s.Trap(ctx, file, line, bindings)
	for j, b := range result.Bindings {
		if !b.Value.Equal(original[j].Value) {
			values[index[j]] = restore(values[index[j]], b.Value)
		}
	}
	return result, err
}

// restore converts v back to the Go type of orig when the kinds agree
func restore(orig any, v aipp.Value) any {
	switch orig.(type) {
	case int:
		if i, ok := v.AsInt(); ok {
			return int(i)
		}
	case int64:
		if i, ok := v.AsInt(); ok {
			return int64(i)
		}
	case float64:
		if f, ok := v.AsFloat(); ok {
			return float64(f)
		}
	}
	return v.Interface()
}
