// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package host

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/blocklypy/aipp/pkg/aipp"
	"github.com/blocklypy/aipp/pkg/channel"
	"github.com/blocklypy/aipp/pkg/session"
	"github.com/blocklypy/aipp/pkg/telemetry"
	"github.com/blocklypy/aipp/pkg/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// ============================================================
// Test Helpers
// ============================================================

func newTestDebugger(t *testing.T, cfg Config) (*Debugger, *channel.Endpoint) {
	t.Helper()
	hostEnd, deviceEnd := channel.NewLink()
	d, err := NewDebugger(hostEnd, cfg)
	require.NoError(t, err)
	return d, deviceEnd
}

func unitConfig() Config {
	cfg := DefaultConfig()
	cfg.ChunkDelay = 0
	return cfg
}

// deviceSend writes m chunk by chunk, letting the debugger poll each one
func deviceSend(t *testing.T, d *Debugger, device *channel.Endpoint, m aipp.DebugMessage) {
	t.Helper()
	data, err := aipp.EncodeDebug(m)
	require.NoError(t, err)
	for _, chunk := range d.framer.Encode(data) {
		require.NoError(t, device.Write(chunk))
		d.Poll(context.Background())
	}
}

// lastCommand decodes the single-chunk message the host wrote last
func lastCommand(t *testing.T, d *Debugger, device *channel.Endpoint) (aipp.DebugMessage, []byte) {
	t.Helper()
	chunk, err := device.Read()
	require.NoError(t, err)
	data, err := d.framer.Decode(chunk)
	require.NoError(t, err)
	m, err := aipp.DecodeDebug(data)
	require.NoError(t, err)
	return m, data
}

func nextEvent(t *testing.T, d *Debugger) Event {
	t.Helper()
	select {
	case e := <-d.Events():
		return e
	default:
		t.Fatal("no event")
		return Event{}
	}
}

func noEvent(t *testing.T, d *Debugger) {
	t.Helper()
	select {
	case e := <-d.Events():
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}
}

func trapped(t *testing.T) (*Debugger, *channel.Endpoint) {
	t.Helper()
	d, device := newTestDebugger(t, unitConfig())
	deviceSend(t, d, device, aipp.TrapNotify("a.py", 10, aipp.Bindings{{Name: "x", Value: aipp.IntValue(5)}}))
	require.Equal(t, EventTrapped, nextEvent(t, d).Type)
	return d, device
}

// ============================================================
// Notification Tests
// ============================================================

func TestDebugger_StartAck(t *testing.T) {
	d, device := newTestDebugger(t, unitConfig())

	deviceSend(t, d, device, aipp.StartNotify())
	assert.Equal(t, EventStarted, nextEvent(t, d).Type)

	ack, data := lastCommand(t, d, device)
	assert.Equal(t, aipp.SubStartAck, ack.SubCode)
	assert.True(t, ack.Success)
	assert.Equal(t, []byte{0x70, 0x00, 0x01, 0x01}, data, "trailing sequence byte")

	// a resent StartNotify is re-acked with a new sequence byte only
	d.driver.Forget()
	d.Poll(context.Background())
	_, data = lastCommand(t, d, device)
	assert.Equal(t, []byte{0x70, 0x00, 0x01, 0x02}, data)
	noEvent(t, d)
}

func TestDebugger_DeclinesStart(t *testing.T) {
	cfg := unitConfig()
	cfg.AcceptStart = false
	d, device := newTestDebugger(t, cfg)

	deviceSend(t, d, device, aipp.StartNotify())
	ack, _ := lastCommand(t, d, device)
	assert.False(t, ack.Success)
}

func TestDebugger_Trap(t *testing.T) {
	d, device := newTestDebugger(t, unitConfig())

	deviceSend(t, d, device, aipp.TrapNotify("a.py", 10, aipp.Bindings{{Name: "x", Value: aipp.IntValue(5)}}))
	e := nextEvent(t, d)
	require.Equal(t, EventTrapped, e.Type)
	assert.Equal(t, "a.py", e.File)
	assert.Equal(t, uint16(10), e.Line)
	assert.Equal(t, aipp.Bindings{{Name: "x", Value: aipp.IntValue(5)}}, e.Bindings)

	ack, _ := lastCommand(t, d, device)
	assert.Equal(t, aipp.SubTrapAck, ack.SubCode)
	assert.True(t, ack.Success)

	trap, ok := d.Trap()
	assert.True(t, ok)
	assert.Equal(t, "a.py", trap.File)

	// device resend of the same trap is re-acked, not re-announced
	deviceSend(t, d, device, aipp.TrapNotify("a.py", 10, aipp.Bindings{{Name: "x", Value: aipp.IntValue(5)}}))
	noEvent(t, d)
}

func TestDebugger_StatisticsWhileRunning(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := unitConfig()
	cfg.PollInterval = time.Millisecond
	d, device := newTestDebugger(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	start := d.framer.Encode([]byte{0x71, 0x01})[0]
	garbage := []byte{0xFF, 0x01, 0xFF}
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			require.NoError(t, device.Write(start))
		} else {
			require.NoError(t, device.Write(garbage))
		}
		c := d.Statistics().Snapshot()
		assert.LessOrEqual(t, c.MessagesReceived, c.ChunksReceived)
		time.Sleep(2 * time.Millisecond)
	}
	assert.Eventually(t, func() bool {
		c := d.Statistics().Snapshot()
		return c.MessagesSent > 0 && c.Errors > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestDebugger_IgnoresGarbage(t *testing.T) {
	d, device := newTestDebugger(t, unitConfig())
	require.NoError(t, device.Write([]byte{0xFF, 0x01, 0x02, 0x00}))
	d.Poll(context.Background())
	require.NoError(t, device.Write([]byte{0xFE, 0x71, 0x01, 0x00, 0x00}))
	d.Poll(context.Background())

	noEvent(t, d)
	assert.Equal(t, uint64(1), d.Statistics().MarkerErrors)
	assert.Equal(t, uint64(1), d.Statistics().ChecksumErrors)
}

// ============================================================
// Command Tests
// ============================================================

func TestDebugger_CommandsNeedTrap(t *testing.T) {
	d, _ := newTestDebugger(t, unitConfig())
	ctx := context.Background()
	assert.ErrorIs(t, d.Continue(ctx, false), ErrNotTrapped)
	assert.ErrorIs(t, d.SetVariable(ctx, "x", aipp.IntValue(1)), ErrNotTrapped)
	assert.ErrorIs(t, d.GetVariable(ctx, "x"), ErrNotTrapped)
	assert.ErrorIs(t, d.Terminate(ctx), ErrNotTrapped)
}

func TestDebugger_SetVariable(t *testing.T) {
	d, device := trapped(t)
	ctx := context.Background()

	require.NoError(t, d.SetVariable(ctx, "x", aipp.IntValue(7)))
	req, _ := lastCommand(t, d, device)
	assert.Equal(t, aipp.SubSetVarRequest, req.SubCode)
	assert.Equal(t, "x", req.Name)
	assert.Equal(t, aipp.IntValue(7), req.Value)

	assert.ErrorIs(t, d.GetVariable(ctx, "x"), ErrBusy)

	deviceSend(t, d, device, aipp.SetVarResponse(""))
	e := nextEvent(t, d)
	assert.Equal(t, EventVariableSet, e.Type)
	assert.Empty(t, e.Error)
	assert.Equal(t, aipp.Bindings{{Name: "x", Value: aipp.IntValue(7)}}, e.Bindings)

	trap, _ := d.Trap()
	v, _ := trap.Bindings.Get("x")
	assert.Equal(t, aipp.IntValue(7), v)
}

func TestDebugger_SetVariableRefused(t *testing.T) {
	d, device := trapped(t)

	require.NoError(t, d.SetVariable(context.Background(), "y", aipp.IntValue(7)))
	deviceSend(t, d, device, aipp.SetVarResponse("unknown variable y"))
	e := nextEvent(t, d)
	assert.Equal(t, "unknown variable y", e.Error)
	assert.Equal(t, aipp.Bindings{{Name: "x", Value: aipp.IntValue(5)}}, e.Bindings)
}

func TestDebugger_GetVariable(t *testing.T) {
	d, device := trapped(t)

	require.NoError(t, d.GetVariable(context.Background(), "x"))
	deviceSend(t, d, device, aipp.GetVarResponse("x", aipp.IntValue(9)))
	e := nextEvent(t, d)
	assert.Equal(t, EventVariable, e.Type)
	assert.Equal(t, aipp.IntValue(9), e.Value)
}

func TestDebugger_Continue(t *testing.T) {
	d, device := trapped(t)

	require.NoError(t, d.Continue(context.Background(), true))
	req, _ := lastCommand(t, d, device)
	assert.Equal(t, aipp.SubContinueRequest, req.SubCode)
	assert.True(t, req.Step)

	deviceSend(t, d, device, aipp.ContinueResponse())
	e := nextEvent(t, d)
	assert.Equal(t, EventResumed, e.Type)
	assert.True(t, e.Step)

	_, ok := d.Trap()
	assert.False(t, ok)
}

func TestDebugger_ContinueOverwrittenByNextTrap(t *testing.T) {
	d, device := trapped(t)

	require.NoError(t, d.Continue(context.Background(), false))
	// ContinueResponse lost, device already at the same trap again
	deviceSend(t, d, device, aipp.TrapNotify("a.py", 10, aipp.Bindings{{Name: "x", Value: aipp.IntValue(6)}}))

	assert.Equal(t, EventResumed, nextEvent(t, d).Type)
	e := nextEvent(t, d)
	assert.Equal(t, EventTrapped, e.Type)
	v, _ := e.Bindings.Get("x")
	assert.Equal(t, aipp.IntValue(6), v)
}

func TestDebugger_ResendThenTimeout(t *testing.T) {
	cfg := unitConfig()
	cfg.ResendInterval = time.Nanosecond
	cfg.MaxResends = 1
	d, device := newTestDebugger(t, cfg)
	deviceSend(t, d, device, aipp.TrapNotify("a.py", 1, nil))
	nextEvent(t, d)
	ctx := context.Background()

	require.NoError(t, d.GetVariable(ctx, "x"))
	time.Sleep(time.Millisecond)
	d.resendDue(ctx)
	assert.Equal(t, uint64(1), d.Statistics().Resends)
	noEvent(t, d)

	time.Sleep(time.Millisecond)
	d.resendDue(ctx)
	e := nextEvent(t, d)
	assert.Equal(t, EventTimeout, e.Type)
	assert.Equal(t, "x", e.Name)

	// no longer busy
	assert.NoError(t, d.GetVariable(ctx, "x"))
}

func TestDebugger_Terminate(t *testing.T) {
	d, device := trapped(t)

	require.NoError(t, d.Terminate(context.Background()))
	req, _ := lastCommand(t, d, device)
	assert.Equal(t, aipp.SubTerminateRequest, req.SubCode)
	assert.Equal(t, EventTerminated, nextEvent(t, d).Type)
}

func TestDebugger_Plot(t *testing.T) {
	d, device := newTestDebugger(t, unitConfig())
	data, err := aipp.EncodePlot(aipp.PlotCells(aipp.Cell{Name: "speed", Value: 4}))
	require.NoError(t, err)
	for _, chunk := range d.framer.Encode(data) {
		require.NoError(t, device.Write(chunk))
		d.Poll(context.Background())
	}

	e := nextEvent(t, d)
	assert.Equal(t, EventPlot, e.Type)
	assert.Equal(t, []string{"speed"}, d.Plot().Columns())
	assert.Equal(t, []float32{4}, d.Plot().Latest())
}

// ============================================================
// Plot Table Tests
// ============================================================

func TestPlotTable_Padding(t *testing.T) {
	table := NewPlotTable(0)
	table.Apply(aipp.PlotDefineColumns("a"))
	table.Apply(aipp.PlotRow(1, 2))
	table.Apply(aipp.PlotCells(aipp.Cell{Name: "b", Value: 3}))

	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, float32(1), rows[0][0])
	assert.True(t, math.IsNaN(float64(rows[0][1])), "column defined later")
	assert.True(t, math.IsNaN(float64(rows[1][0])))
	assert.Equal(t, float32(3), rows[1][1])
}

func TestPlotTable_DefineStartsOver(t *testing.T) {
	table := NewPlotTable(0)
	table.Apply(aipp.PlotDefineColumns("a", "b"))
	table.Apply(aipp.PlotRow(1, 2))

	table.Apply(aipp.PlotDefineColumns("c", "c"))
	assert.Equal(t, []string{"c"}, table.Columns())
	assert.Empty(t, table.Rows())

	table.Apply(aipp.PlotRow(5))
	assert.Equal(t, [][]float32{{5}}, table.Rows())
}

func TestPlotTable_MaxRows(t *testing.T) {
	table := NewPlotTable(2)
	table.Apply(aipp.PlotDefineColumns("a"))
	for i := 1; i <= 3; i++ {
		table.Apply(aipp.PlotRow(float32(i)))
	}
	assert.Equal(t, [][]float32{{2}, {3}}, table.Rows())

	table.Reset()
	assert.Nil(t, table.Latest())
	assert.Empty(t, table.Columns())
}

// ============================================================
// End-to-End Tests
// ============================================================

func TestDebugger_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostEnd, deviceEnd := channel.NewLink()

	hcfg := DefaultConfig()
	hcfg.PollInterval = time.Millisecond
	hcfg.ChunkDelay = 10 * time.Millisecond
	hcfg.ResendInterval = 200 * time.Millisecond
	hcfg.MaxResends = 20
	dbg, err := NewDebugger(hostEnd, hcfg)
	require.NoError(t, err)

	runCtx, stopRun := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- dbg.Run(runCtx) }()

	dcfg := tunnel.DefaultConfig()
	dcfg.PollInterval = 2 * time.Millisecond
	dcfg.ChunkDelay = 10 * time.Millisecond
	dcfg.Timeout = 500
	tun, err := tunnel.New(deviceEnd, dcfg)
	require.NoError(t, err)

	type outcome struct {
		started bool
		result  session.TrapResult
		err     error
	}
	deviceDone := make(chan outcome, 1)
	plotNow := make(chan struct{})
	go func() {
		s := session.New(tun)
		var o outcome
		if o.started = s.Start(ctx); o.started {
			o.result, o.err = s.Trap(ctx, "a.py", 10, aipp.Bindings{{Name: "x", Value: aipp.IntValue(5)}})
		}
		// the plot write would overwrite ContinueResponse before the host polls it
		select {
		case <-plotNow:
		case <-ctx.Done():
		}
		if o.err == nil {
			o.err = telemetry.NewPlotter(tun).UpdateCells(ctx, aipp.Cell{Name: "speed", Value: 42})
		}
		deviceDone <- o
	}()

	wait := func(want EventType) Event {
		t.Helper()
		for {
			select {
			case e := <-dbg.Events():
				if e.Type == want {
					return e
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("timed out waiting for %s", want)
			}
		}
	}

	wait(EventStarted)
	trap := wait(EventTrapped)
	assert.Equal(t, "a.py", trap.File)
	assert.Equal(t, uint16(10), trap.Line)

	require.NoError(t, dbg.SetVariable(ctx, "x", aipp.IntValue(7)))
	set := wait(EventVariableSet)
	assert.Empty(t, set.Error)

	require.NoError(t, dbg.Continue(ctx, false))
	wait(EventResumed)
	close(plotNow)

	var o outcome
	select {
	case o = <-deviceDone:
	case <-time.After(5 * time.Second):
		t.Fatal("device did not finish")
	}
	require.True(t, o.started)
	require.NoError(t, o.err)
	assert.Equal(t, session.ResumeContinue, o.result.Resume)
	v, _ := o.result.Bindings.Get("x")
	assert.Equal(t, aipp.IntValue(7), v)

	wait(EventPlot)
	assert.Equal(t, []float32{42}, dbg.Plot().Latest())

	stopRun()
	assert.ErrorIs(t, <-runDone, context.Canceled)
}

func TestDebugger_DefaultTiming(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostEnd, deviceEnd := channel.NewLink()
	dbg, err := NewDebugger(hostEnd, DefaultConfig())
	require.NoError(t, err)
	runCtx, stopRun := context.WithCancel(ctx)
	runDone := make(chan struct{})
	go func() {
		dbg.Run(runCtx)
		close(runDone)
	}()
	defer func() {
		stopRun()
		<-runDone
	}()

	tun, err := tunnel.New(deviceEnd, tunnel.DefaultConfig())
	require.NoError(t, err)

	type outcome struct {
		started bool
		result  session.TrapResult
		err     error
	}
	deviceDone := make(chan outcome, 1)
	go func() {
		s := session.New(tun)
		var o outcome
		if o.started = s.Start(ctx); o.started {
			o.result, o.err = s.Trap(ctx, "a.py", 10, aipp.Bindings{{Name: "x", Value: aipp.IntValue(5)}})
		}
		deviceDone <- o
	}()

	wait := func(want EventType) Event {
		t.Helper()
		for {
			select {
			case e := <-dbg.Events():
				if e.Type == want {
					return e
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("timed out waiting for %s", want)
			}
		}
	}

	wait(EventStarted)
	trap := wait(EventTrapped)
	assert.Equal(t, "a.py", trap.File)
	v, _ := trap.Bindings.Get("x")
	assert.Equal(t, aipp.IntValue(5), v)

	// let the device poll the TrapAck before the slot is overwritten
	time.Sleep(3 * tunnel.DefaultPollInterval)
	require.NoError(t, dbg.Continue(ctx, false))
	wait(EventResumed)

	var o outcome
	select {
	case o = <-deviceDone:
	case <-time.After(5 * time.Second):
		t.Fatal("device did not finish")
	}
	require.True(t, o.started)
	require.NoError(t, o.err)
	assert.Equal(t, session.ResumeContinue, o.result.Resume)

	c := dbg.Statistics().Snapshot()
	assert.Zero(t, c.Errors, "every chunk reassembled")
}
