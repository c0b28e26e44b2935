// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/rooftop/pkg/picoframe"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// Latest state reported by the pico
type picoState struct {
	doorStatus  [picoframe.DoorCount]int // -1 until reported
	temperature float64                  // kelvin
	hasTemp     bool
	lastEcho    int
	hasEcho     bool
	led         string
	lastFrame   time.Time
}

// TUI model
type model struct {
	connInfo      string
	showAll       bool
	stats         *picoframe.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  int
	width         int
	height        int
	quitting      bool
	closed        bool
	state         picoState
}

// Key bindings
type keyMap struct {
	Quit  key.Binding
	Clear key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear statistics"),
	),
}

// Messages
type tickMsg time.Time
type frameMsg struct {
	frame            *picoframe.Frame
	event            *picoframe.Event
	validationErrors []picoframe.ValidationError
}
type syncMsg struct {
	invalidBytes int
}
type resyncMsg struct {
	discarded int
}
type readErrMsg struct {
	err error
}

// formatAge formats the time since t as a short human-friendly string
func formatAge(d time.Duration) string {
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds ago", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm ago", int(d.Hours()), int(d.Minutes())%60)
	}
}

func initialModel(connInfo string, stats *picoframe.Statistics, showAll bool) model {
	m := model{
		connInfo:      connInfo,
		showAll:       showAll,
		stats:         stats,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
	for i := range m.state.doorStatus {
		m.state.doorStatus[i] = -1
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Clear):
			m.stats.Reset()
			m.eventLog = m.eventLog[:0]
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case resyncMsg:
		m.addLogEntry(fmt.Sprintf("RESYNC: frame misaligned, %d bytes discarded", msg.discarded), true)

	case readErrMsg:
		if !m.closed {
			m.closed = true
			if msg.err == nil || errors.Is(msg.err, ErrConnectionClosed) || errors.Is(msg.err, io.EOF) {
				m.addLogEntry("Connection closed", true)
			} else {
				m.addLogEntry(fmt.Sprintf("Read error: %v", msg.err), true)
			}
		}

	case frameMsg:
		m.state.lastFrame = msg.frame.Timestamp
		if msg.event != nil {
			m.applyEvent(msg.event)
		}

		name := picoframe.FormatCommand(msg.frame.Command)
		if len(msg.validationErrors) > 0 {
			for _, err := range msg.validationErrors {
				m.addLogEntry(fmt.Sprintf("%s: %s", name, err.Message), true)
			}
		} else if m.showAll {
			m.addLogEntry(fmt.Sprintf("%s %s", name, picoframe.FormatDetail(msg.frame)), false)
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// applyEvent records the state carried by a decoded frame
func (m *model) applyEvent(event *picoframe.Event) {
	value, err := strconv.Atoi(event.Value)

	switch {
	case event.Key == picoframe.KeyTemperature && err == nil:
		m.state.temperature = picoframe.ToKelvin(value)
		m.state.hasTemp = true
	case event.Key == picoframe.KeyMonitor && err == nil:
		m.state.lastEcho = value
		m.state.hasEcho = true
	case event.Key == picoframe.KeyLED:
		m.state.led = event.Value
	default:
		for door := 0; door < picoframe.DoorCount; door++ {
			if event.Key == picoframe.DoorStatusKey(door) && err == nil {
				m.state.doorStatus[door] = value
			}
		}
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
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
	var s strings.Builder
	s.WriteString(titleStyle.Render("ROOFTOP - FRAME MONITOR"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | %s: %s, %s: %s", m.connInfo, mode,
		keys.Quit.Help().Key, keys.Quit.Help().Desc, keys.Clear.Help().Key, keys.Clear.Help().Desc)))
	s.WriteString("\n\n")

	// Sync status
	if !m.synchronized {
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	} else {
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	snap := m.stats.Snapshot()
	errorCount := snap.Resyncs + snap.ShortReads + snap.UnknownCommands + snap.AnomalousValues
	var validPercent float64
	if snap.TotalFrames > 0 {
		validPercent = float64(snap.ValidFrames) * 100.0 / float64(snap.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", snap.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", errorCount)),
	))

	if snap.Resyncs > 0 || snap.ShortReads > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s %s   %s %s\n",
			statsLabelStyle.Render("Resyncs:"), errorStyle.Render(fmt.Sprintf("%d", snap.Resyncs)),
			headerStyle.Render(fmt.Sprintf("(%d bytes discarded)", snap.DiscardedBytes)),
			statsLabelStyle.Render("Short Reads:"), errorStyle.Render(fmt.Sprintf("%d", snap.ShortReads)),
		))
	}

	if snap.UnknownCommands > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Unknown:"), errorStyle.Render(fmt.Sprintf("%d", snap.UnknownCommands)),
		))
	}

	if snap.AnomalousValues > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", snap.AnomalousValues)),
			headerStyle.Render("PWM"), snap.InvalidPWM,
			headerStyle.Render("status"), snap.InvalidStatus,
			headerStyle.Render("door"), snap.InvalidDoor,
		))
	}

	errorRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", snap.ErrorRate))
	if snap.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", snap.ErrorRate))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", snap.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), errorRate,
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Pico state (only shown once a frame has arrived)
	if !m.state.lastFrame.IsZero() {
		s.WriteString(statsLabelStyle.Render("Latest State:"))
		s.WriteString("\n")

		stateContent := strings.Builder{}
		for door, code := range m.state.doorStatus {
			status := "not reported"
			if code >= 0 {
				status = picoframe.FormatStatus(uint8(code))
			}
			stateContent.WriteString(fmt.Sprintf("%s %s\n",
				statsLabelStyle.Render(fmt.Sprintf("Door %d:", door)), statsValueStyle.Render(status),
			))
		}
		if m.state.hasTemp {
			stateContent.WriteString(fmt.Sprintf("%s %s\n",
				statsLabelStyle.Render("Temperature:"),
				statsValueStyle.Render(fmt.Sprintf("%.2f K (%.1f°C)", m.state.temperature, m.state.temperature-273.15)),
			))
		}
		if m.state.hasEcho {
			stateContent.WriteString(fmt.Sprintf("%s %s\n",
				statsLabelStyle.Render("Monitor echo:"), statsValueStyle.Render(strconv.Itoa(m.state.lastEcho)),
			))
		}
		if m.state.led != "" {
			stateContent.WriteString(fmt.Sprintf("%s %s\n",
				statsLabelStyle.Render("LED:"), statsValueStyle.Render(m.state.led),
			))
		}
		stateContent.WriteString(fmt.Sprintf("%s %s",
			statsLabelStyle.Render("Last frame:"), headerStyle.Render(formatAge(time.Since(m.state.lastFrame))),
		))

		s.WriteString(boxStyle.Render(stateContent.String()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 22
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
