// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blocklypy/aipp/pkg/host"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

type debugLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// debugModel is the Bubble Tea model for the debugger TUI
type debugModel struct {
	ctx      context.Context
	debugger *host.Debugger
	connInfo string

	input         textinput.Model
	log           []debugLogEntry
	maxLogEntries int

	started  bool
	trapped  bool
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type debugTickMsg time.Time

type debugEventMsg host.Event

type debugResultMsg struct {
	text string
	err  error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialDebugModel(ctx context.Context, d *host.Debugger, connInfo string) debugModel {
	ti := textinput.New()
	ti.Placeholder = "continue | step | set x 5 | get x | terminate"
	ti.CharLimit = 120
	ti.Width = 60
	ti.Focus()

	return debugModel{
		ctx:           ctx,
		debugger:      d,
		connInfo:      connInfo,
		input:         ti,
		log:           make([]debugLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func runDebugTUI(ctx context.Context, d *host.Debugger, connInfo string) error {
	m := initialDebugModel(ctx, d, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-d.Events():
				p.Send(debugEventMsg(ev))
			}
		}
	}()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m debugModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, debugTickCmd())
}

func debugTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return debugTickMsg(t)
	})
}

func (m debugModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(20, msg.Width-8)

	case debugTickMsg:
		return m, debugTickCmd()

	case debugEventMsg:
		m.applyEvent(host.Event(msg))
		return m, nil

	case debugResultMsg:
		if errors.Is(msg.err, errQuit) {
			m.quitting = true
			return m, tea.Quit
		}
		if msg.err != nil {
			m.addLogEntry(msg.err.Error(), true)
		}
		for _, line := range strings.Split(strings.TrimRight(msg.text, "\n"), "\n") {
			if line != "" {
				m.addLogEntry(line, false)
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m debugModel) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if line == "" {
		return m, nil
	}

	c, err := parseDebugCommand(line)
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}
	m.addLogEntry("> "+line, false)

	ctx, d := m.ctx, m.debugger
	return m, func() tea.Msg {
		text, err := c.run(ctx, d)
		return debugResultMsg{text: text, err: err}
	}
}

func (m *debugModel) applyEvent(ev host.Event) {
	switch ev.Type {
	case host.EventStarted:
		m.started = true
		m.trapped = false
	case host.EventTrapped:
		m.trapped = true
	case host.EventResumed:
		m.trapped = false
	case host.EventTerminated:
		m.trapped = false
		m.started = false
	case host.EventPlot:
		// Plot rows update the plot panel only
		return
	}
	m.addLogEntry(ev.String(), ev.Type == host.EventTimeout || (ev.Type == host.EventVariableSet && ev.Error != ""))
}

func (m *debugModel) addLogEntry(message string, isError bool) {
	m.log = append(m.log, debugLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

func (m debugModel) View() string {
	if m.quitting {
		return "Detaching...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	s.WriteString(titleStyle.Render("AIPP DEBUGGER"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Enter=run Esc=quit", m.connInfo)))
	s.WriteString("\n\n")

	// Program state
	switch {
	case m.trapped:
		s.WriteString(errorStyle.Render("TRAPPED"))
	case m.started:
		s.WriteString(valueStyle.Render("RUNNING"))
	default:
		s.WriteString(warningStyle.Render("Waiting for program start..."))
	}
	s.WriteString("\n")

	// Trap and plot panels side by side
	halfWidth := max(20, (m.width-6)/2)
	trapPanel := boxStyle.Width(halfWidth).Render(labelStyle.Render("Trap") + "\n" + m.renderTrap(headerStyle))
	plotPanel := boxStyle.Width(halfWidth).Render(labelStyle.Render("Plot") + "\n" + strings.TrimRight(formatPlot(m.debugger.Plot()), "\n"))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, trapPanel, " ", plotPanel))
	s.WriteString("\n")

	// Statistics bar
	s.WriteString(m.renderStatisticsBar(labelStyle, valueStyle, errorStyle))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderEventLog(labelStyle, errorStyle, boxStyle))
	s.WriteString("\n")

	s.WriteString(m.input.View())
	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m debugModel) renderTrap(headerStyle lipgloss.Style) string {
	trap, ok := m.debugger.Trap()
	if !ok {
		return headerStyle.Render("not trapped")
	}
	return strings.TrimRight(formatTrap(trap), "\n")
}

func (m debugModel) renderStatisticsBar(labelStyle, valueStyle, errorStyle lipgloss.Style) string {
	stats := m.debugger.Statistics().Snapshot()
	errs := stats.Errors
	errText := valueStyle.Render(fmt.Sprintf("%d", errs))
	if errs > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%d", errs))
	}
	return fmt.Sprintf(" %s %s  %s %s  %s %s",
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d", stats.MessagesSent)),
		labelStyle.Render("Received:"), valueStyle.Render(fmt.Sprintf("%d", stats.MessagesReceived)),
		labelStyle.Render("Errors:"), errText)
}

func (m debugModel) renderEventLog(labelStyle, errorStyle, boxStyle lipgloss.Style) string {
	var content strings.Builder
	content.WriteString(labelStyle.Render("Events"))
	content.WriteString("\n")

	// Show as many recent entries as fit
	maxEntries := max(3, m.height-22)
	start := max(0, len(m.log)-maxEntries)
	for _, entry := range m.log[start:] {
		line := fmt.Sprintf("[%s] %s", entry.timestamp.Format("15:04:05"), entry.message)
		if entry.isError {
			line = errorStyle.Render(line)
		}
		content.WriteString(line)
		content.WriteString("\n")
	}
	return boxStyle.Width(max(20, m.width-4)).Render(strings.TrimRight(content.String(), "\n"))
}
