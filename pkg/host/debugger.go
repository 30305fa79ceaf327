// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

// Package host implements the host side of an AIPP debug session. A
// Debugger polls the device's slot, acknowledges start and trap
// notifications, and sends continue, variable and terminate commands,
// resending them until the device answers.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blocklypy/aipp/pkg/aipp"
	"github.com/blocklypy/aipp/pkg/channel"
	"github.com/rs/zerolog"
)

// Default host timing
const (
	DefaultPollInterval   = 20 * time.Millisecond
	DefaultChunkDelay     = 150 * time.Millisecond
	DefaultResendInterval = 2 * time.Second
	DefaultMaxResends     = 5
	DefaultEventBuffer    = 64
)

// Command errors
var (
	ErrNotTrapped = errors.New("host: device is not trapped")
	ErrBusy       = errors.New("host: a command is awaiting its answer")
)

// Config holds host link parameters
type Config struct {
	MTU            int
	PollInterval   time.Duration
	ChunkDelay     time.Duration // between chunks, longer than the device poll interval
	ResendInterval time.Duration
	MaxResends     int
	LegacyMarkers  bool
	PadChunks      bool
	AcceptStart    bool
}

// DefaultConfig returns the host defaults
func DefaultConfig() Config {
	return Config{
		MTU:            aipp.DefaultMTU,
		PollInterval:   DefaultPollInterval,
		ChunkDelay:     DefaultChunkDelay,
		ResendInterval: DefaultResendInterval,
		MaxResends:     DefaultMaxResends,
		AcceptStart:    true,
	}
}

// pending is a command waiting for its device response
type pending struct {
	name    string
	value   aipp.Value // SetVariable
	answer  aipp.SubCode
	data    []byte
	sentAt  time.Time
	resends int
}

// Debugger is the host end of a debug session
type Debugger struct {
	driver      *channel.Driver
	framer      *aipp.Framer
	reassembler *aipp.Reassembler
	cfg         Config
	stats       *aipp.Statistics
	plot        *PlotTable
	events      chan Event
	logger      zerolog.Logger

	sendMu sync.Mutex

	mu       sync.Mutex
	seq      byte
	started  bool
	trapSeen bool // a trap arrived since the last start
	trapped  bool
	trap     Event
	inflight *pending
}

// Option configures a Debugger
type Option func(*Debugger)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Debugger) {
		d.logger = logger
	}
}

// WithStatistics shares a statistics tracker
func WithStatistics(stats *aipp.Statistics) Option {
	return func(d *Debugger) {
		d.stats = stats
	}
}

// WithEventBuffer sets the event channel capacity
func WithEventBuffer(n int) Option {
	return func(d *Debugger) {
		d.events = make(chan Event, n)
	}
}

// NewDebugger creates a debugger over slot
func NewDebugger(slot channel.Slot, cfg Config, opts ...Option) (*Debugger, error) {
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.ResendInterval <= 0 {
		return nil, fmt.Errorf("resend interval must be positive, got %s", cfg.ResendInterval)
	}

	var framerOpts []aipp.FramerOption
	if cfg.LegacyMarkers {
		framerOpts = append(framerOpts, aipp.WithLegacyMarkers())
	}
	if cfg.PadChunks {
		framerOpts = append(framerOpts, aipp.WithPadding())
	}
	framer, err := aipp.NewFramer(cfg.MTU, framerOpts...)
	if err != nil {
		return nil, err
	}

	d := &Debugger{
		driver:      channel.NewDriver(slot, cfg.MTU),
		framer:      framer,
		reassembler: aipp.NewReassembler(framer),
		cfg:         cfg,
		plot:        NewPlotTable(DefaultMaxRows),
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.events == nil {
		d.events = make(chan Event, DefaultEventBuffer)
	}
	if d.stats == nil {
		d.stats = aipp.NewStatistics()
	}
	return d, nil
}

// Events returns the event stream. Events are dropped when the buffer is
// full.
func (d *Debugger) Events() <-chan Event {
	return d.events
}

// Plot returns the accumulated plot table
func (d *Debugger) Plot() *PlotTable {
	return d.plot
}

// Statistics returns the link counters
func (d *Debugger) Statistics() *aipp.Statistics {
	return d.stats
}

// Trap returns the current trap and whether the device is trapped
func (d *Debugger) Trap() (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	trap := d.trap
	trap.Bindings = trap.Bindings.Clone()
	return trap, d.trapped
}

// Run polls the device until ctx is done
func (d *Debugger) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		d.Poll(ctx)
		d.resendDue(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll reads the device slot once and handles a completed message
func (d *Debugger) Poll(ctx context.Context) {
	raw, ok := d.driver.Next()
	if !ok {
		return
	}
	d.stats.RecordChunk()

	data, done, err := d.reassembler.Push(raw)
	if err != nil {
		d.stats.RecordError(err)
		d.logger.Debug().Err(err).Str("chunk", aipp.FormatChunk(raw)).Msg("discarded chunk")
		return
	}
	if !done {
		return
	}

	msg, err := aipp.DecodeMessage(data)
	if err != nil {
		d.stats.RecordError(err)
		d.logger.Debug().Err(err).Hex("message", data).Msg("discarded message")
		return
	}
	d.stats.RecordMessage()
	d.logger.Trace().Str("message", aipp.FormatMessage(msg)).Msg("received")

	switch {
	case msg.Type == aipp.MsgDebugNotification:
		d.handleDebug(ctx, msg.Debug)
	case msg.Type == aipp.MsgPlotNotification:
		d.plot.Apply(msg.Plot)
		d.emit(Event{Type: EventPlot, Plot: msg.Plot})
	default:
		d.logger.Debug().Str("type", aipp.FormatMessageType(msg.Type)).Msg("ignored message")
	}
}

func (d *Debugger) handleDebug(ctx context.Context, m aipp.DebugMessage) {
	switch m.SubCode {
	case aipp.SubStartNotify:
		d.mu.Lock()
		// a resent StartNotify is re-acked without a second event
		fresh := !d.started || d.trapSeen
		d.started = true
		d.trapSeen = false
		d.trapped = false
		d.inflight = nil
		d.mu.Unlock()

		d.send(ctx, aipp.StartAck(d.cfg.AcceptStart))
		if fresh {
			d.plot.Reset()
			d.emit(Event{Type: EventStarted})
		}

	case aipp.SubTrapNotify:
		d.mu.Lock()
		continuing := d.inflight != nil && d.inflight.answer == aipp.SubContinueResponse
		duplicate := d.trapped && !continuing && d.trap.File == m.File && d.trap.Line == m.Line
		var resumed *pending
		if continuing {
			// the ContinueResponse was overwritten by the next trap
			resumed = d.inflight
			d.inflight = nil
		}
		d.started = true
		d.trapSeen = true
		d.trapped = true
		d.trap = Event{Type: EventTrapped, File: m.File, Line: m.Line, Bindings: m.Bindings}
		d.mu.Unlock()

		d.send(ctx, aipp.TrapAck(true))
		if resumed != nil {
			d.emit(Event{Type: EventResumed})
		}
		if !duplicate {
			d.emit(Event{Type: EventTrapped, File: m.File, Line: m.Line, Bindings: m.Bindings.Clone()})
		}

	case aipp.SubContinueResponse:
		if cmd := d.resolve(m.SubCode); cmd != nil {
			d.mu.Lock()
			d.trapped = false
			d.mu.Unlock()
			d.emit(Event{Type: EventResumed, Step: cmd.name == "step"})
		}

	case aipp.SubSetVarResponse:
		if cmd := d.resolve(m.SubCode); cmd != nil {
			d.mu.Lock()
			if m.Error == "" {
				d.trap.Bindings.Set(cmd.name, cmd.value)
			}
			bindings := d.trap.Bindings.Clone()
			d.mu.Unlock()
			d.emit(Event{Type: EventVariableSet, Name: cmd.name, Error: m.Error, Bindings: bindings})
		}

	case aipp.SubGetVarResponse:
		if d.resolve(m.SubCode) != nil {
			d.mu.Lock()
			d.trap.Bindings.Set(m.Name, m.Value)
			d.mu.Unlock()
			d.emit(Event{Type: EventVariable, Name: m.Name, Value: m.Value})
		}

	case aipp.SubTerminateResponse:
		d.emit(Event{Type: EventTerminated})

	default:
		d.logger.Debug().Str("subcode", aipp.SubCodeName(m.SubCode)).Msg("ignored debug message")
	}
}

// resolve clears the in-flight command answered by sub
func (d *Debugger) resolve(sub aipp.SubCode) *pending {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmd := d.inflight
	if cmd == nil || cmd.answer != sub {
		return nil
	}
	d.inflight = nil
	return cmd
}

// Continue resumes a trapped device, single-stepping when step is set
func (d *Debugger) Continue(ctx context.Context, step bool) error {
	name := "continue"
	if step {
		name = "step"
	}
	return d.command(ctx, &pending{name: name, answer: aipp.SubContinueResponse}, aipp.ContinueRequest(step))
}

// SetVariable asks the device to change an exposed binding
func (d *Debugger) SetVariable(ctx context.Context, name string, v aipp.Value) error {
	return d.command(ctx, &pending{name: name, value: v, answer: aipp.SubSetVarResponse}, aipp.SetVarRequest(name, v))
}

// GetVariable asks the device for the current value of a binding
func (d *Debugger) GetVariable(ctx context.Context, name string) error {
	return d.command(ctx, &pending{name: name, answer: aipp.SubGetVarResponse}, aipp.GetVarRequest(name))
}

// Terminate ends the debug session. The device does not answer.
func (d *Debugger) Terminate(ctx context.Context) error {
	d.mu.Lock()
	if !d.trapped {
		d.mu.Unlock()
		return ErrNotTrapped
	}
	d.trapped = false
	d.inflight = nil
	d.mu.Unlock()

	if _, err := d.send(ctx, aipp.TerminateRequest()); err != nil {
		return err
	}
	d.emit(Event{Type: EventTerminated})
	return nil
}

func (d *Debugger) command(ctx context.Context, cmd *pending, m aipp.DebugMessage) error {
	d.mu.Lock()
	if !d.trapped {
		d.mu.Unlock()
		return ErrNotTrapped
	}
	if d.inflight != nil {
		d.mu.Unlock()
		return ErrBusy
	}
	cmd.sentAt = time.Now()
	d.inflight = cmd
	d.mu.Unlock()

	data, err := d.send(ctx, m)
	d.mu.Lock()
	cmd.data = data
	d.mu.Unlock()
	if err != nil {
		d.logger.Debug().Err(err).Str("command", cmd.name).Msg("command write failed, will resend")
	}
	return nil
}

// resendDue resends the in-flight command when its answer is overdue
func (d *Debugger) resendDue(ctx context.Context) {
	d.mu.Lock()
	cmd := d.inflight
	if cmd == nil || cmd.data == nil || time.Since(cmd.sentAt) < d.cfg.ResendInterval {
		d.mu.Unlock()
		return
	}
	if cmd.resends >= d.cfg.MaxResends {
		d.inflight = nil
		d.mu.Unlock()
		d.stats.RecordTimeout()
		d.logger.Warn().Str("command", cmd.name).Int("resends", cmd.resends).Msg("command not answered")
		d.emit(Event{Type: EventTimeout, Name: cmd.name})
		return
	}
	cmd.resends++
	cmd.sentAt = time.Now()
	data := cmd.data
	d.mu.Unlock()

	d.stats.RecordResend()
	d.logger.Debug().Str("command", cmd.name).Int("resend", cmd.resends).Msg("resending")
	d.write(ctx, data)
}

// send encodes m with the next sequence byte and writes it. The sequence
// byte keeps consecutive identical messages distinguishable on the slot;
// the device ignores bytes after the last field.
func (d *Debugger) send(ctx context.Context, m aipp.DebugMessage) ([]byte, error) {
	data, err := aipp.EncodeDebug(m)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.seq++
	data = append(data, d.seq)
	d.mu.Unlock()

	d.logger.Trace().Str("subcode", aipp.SubCodeName(m.SubCode)).Hex("message", data).Msg("sending")
	return data, d.write(ctx, data)
}

func (d *Debugger) write(ctx context.Context, data []byte) error {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	chunks := d.framer.Encode(data)
	var firstErr error
	for i, chunk := range chunks {
		if i > 0 && d.cfg.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.ChunkDelay):
			}
		}
		if err := d.driver.Send(chunk); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("write chunk %d: %w", i, err)
		}
	}
	d.stats.RecordSent(len(chunks))
	return firstErr
}

func (d *Debugger) emit(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case d.events <- e:
	default:
		d.logger.Warn().Stringer("event", e.Type).Msg("event dropped, consumer too slow")
	}
}
