// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/engine"
	"github.com/IceCube20/JBC-FAE-Emulator/internal/station"
	"github.com/IceCube20/JBC-FAE-Emulator/pkg/p02"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Run the emulator with a terminal dashboard",
	Long: `Run the emulator with a live terminal dashboard.

Shows station settings, relay state and per-channel link statistics,
refreshed continuously. The command field at the bottom accepts the same
operator commands as the plain console (get, set, work, error, ...).

Log output is suppressed while the dashboard is active.`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

const (
	tuiHelpCommands = "commands: get <p> | set <p> <v> | status | work <ch> on|off | error <mask> | channels <n> | wipe | quit"
	tuiHelpParams   = "params: suction select_flow delay_work delay_stand work_active stand_active pedal pedal_mode" +
		" pedal_connected continuous usb beep lock pin pin_enabled name filter_status filter_sat flow speed error"
)

type tuiLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type tuiTickMsg time.Time

func tuiTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tuiTickMsg(t)
	})
}

type tuiModel struct {
	e    *engine.Engine
	snap *engine.Snapshot

	input         textinput.Model
	eventLog      []tuiLogEntry
	maxLogEntries int

	width    int
	height   int
	quitting bool
}

func newTuiModel(e *engine.Engine) tuiModel {
	ti := textinput.New()
	ti.Placeholder = "command (\"help\" lists commands)"
	ti.CharLimit = 64
	ti.Width = 48
	ti.Focus()

	return tuiModel{
		e:             e,
		input:         ti,
		eventLog:      make([]tuiLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(tuiTickCmd(), tea.EnterAltScreen, textinput.Blink)
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			m.runCommand(line)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tuiTickMsg:
		m.snap = m.e.Snapshot()
		if m.e.Stopped() {
			// "quit" typed into the command field
			m.quitting = true
			return m, tea.Quit
		}
		return m, tuiTickCmd()
	}

	// Everything else feeds the command field
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *tuiModel) runCommand(line string) {
	// The full help text would flood the event log
	if line == "help" {
		m.addLogEntry(tuiHelpCommands, false)
		m.addLogEntry(tuiHelpParams, false)
		return
	}

	resp, err := execCommand(m.e, line)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("%s: %v", line, err), true)
		return
	}
	switch {
	case line == "status" || strings.HasPrefix(line, "get "):
		m.addLogEntry(resp, false)
	default:
		m.addLogEntry(fmt.Sprintf("%s: %s", line, resp), false)
	}
}

func (m *tuiModel) addLogEntry(message string, isError bool) {
	// Multi-line responses (status) become one entry per line
	for _, l := range strings.Split(message, "\n") {
		m.eventLog = append(m.eventLog, tuiLogEntry{
			timestamp: time.Now(),
			message:   l,
			isError:   isError,
		})
	}
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m tuiModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("246"))

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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("JBC FAE EMULATOR"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render("| esc=quit enter=command"))
	s.WriteString("\n\n")

	if m.snap == nil {
		s.WriteString(warningStyle.Render("Waiting for first engine cycle..."))
		s.WriteString("\n")
		return s.String()
	}

	s.WriteString(m.renderStation(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderRelay(labelStyle, valueStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderChannels(labelStyle, valueStyle, warningStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderEventLog(headerStyle, errorStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(focusedBoxStyle.Render(m.input.View()))
	s.WriteString("\n")

	return s.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func (m tuiModel) renderStation(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	var b strings.Builder
	set := m.snap.Settings

	fmt.Fprintf(&b, "%s %s   %s %s\n",
		labelStyle.Render("Name:"), valueStyle.Render(set.Name),
		labelStyle.Render("Error:"), m.renderErrorMask(valueStyle, errorStyle))
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		labelStyle.Render("Suction:"), valueStyle.Render(fmt.Sprintf("%d", set.SuctionLevel)),
		labelStyle.Render("Select flow:"), valueStyle.Render(fmt.Sprintf("%d", set.SelectFlow)),
		labelStyle.Render("Flow/Speed:"), valueStyle.Render(fmt.Sprintf("%d/%d", m.snap.Flow, m.snap.Speed)))
	fmt.Fprintf(&b, "%s %s   %s %s\n",
		labelStyle.Render("Filter:"), valueStyle.Render(fmt.Sprintf("%d (sat %d)", set.FilterStatus, set.FilterSaturation)),
		labelStyle.Render("Intakes:"), valueStyle.Render(fmt.Sprintf("work %s/%ds stand %s/%ds",
			onOff(set.Intakes[station.IntakeWork].Active), set.Intakes[station.IntakeWork].DelaySeconds,
			onOff(set.Intakes[station.IntakeStand].Active), set.Intakes[station.IntakeStand].DelaySeconds)))
	fmt.Fprintf(&b, "%s %s   %s %s",
		labelStyle.Render("Pedal:"), valueStyle.Render(fmt.Sprintf("%s mode=%d connected=%s",
			onOff(set.PedalActive), set.PedalMode, onOff(m.snap.PedalConnected))),
		labelStyle.Render("Flags:"), valueStyle.Render(fmt.Sprintf("cont=%s usb=%s beep=%s lock=%s pin=%s",
			onOff(set.ContinuousSuction), onOff(set.USBConnect), onOff(set.Beep),
			onOff(set.Locked), onOff(set.PinEnabled))))
	if m.snap.SettingsDirty {
		fmt.Fprintf(&b, "  %s", labelStyle.Render("(unsaved)"))
	}

	return boxStyle.Render(b.String())
}

func (m tuiModel) renderErrorMask(valueStyle, errorStyle lipgloss.Style) string {
	if m.snap.ErrorMask != 0 {
		return errorStyle.Render(fmt.Sprintf("0x%04X", m.snap.ErrorMask))
	}
	return valueStyle.Render("none")
}

func (m tuiModel) renderRelay(labelStyle, valueStyle, boxStyle lipgloss.Style) string {
	var b strings.Builder

	state := "OFF"
	if m.snap.RelayOn {
		state = "ON"
	}
	afterRun := "-"
	if m.snap.AfterRunOwner >= 0 {
		afterRun = fmt.Sprintf("ch%d %s", m.snap.AfterRunOwner,
			m.snap.AfterRunRemaining.Round(100*time.Millisecond))
	}

	fmt.Fprintf(&b, "%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Relay:"), valueStyle.Render(state),
		labelStyle.Render("Work mask:"), valueStyle.Render(fmt.Sprintf("0x%02X", m.snap.WorkMask)),
		labelStyle.Render("After-run:"), valueStyle.Render(afterRun),
		labelStyle.Render("Transitions:"), valueStyle.Render(fmt.Sprintf("%d", m.snap.RelayTransitions)))

	return boxStyle.Render(b.String())
}

func (m tuiModel) renderChannels(labelStyle, valueStyle, warningStyle, boxStyle lipgloss.Style) string {
	var b strings.Builder

	for i, ch := range m.snap.Channels {
		if i > 0 {
			b.WriteString("\n")
		}

		state := warningStyle.Render("disabled")
		if ch.Active {
			if ch.Link == p02.LinkUp {
				state = valueStyle.Render(ch.Link.String())
			} else {
				state = warningStyle.Render(ch.Link.String())
			}
		}

		idle := "-"
		if ch.IdleFor > 0 {
			idle = ch.IdleFor.Round(time.Second).String()
		}

		fmt.Fprintf(&b, "%s %s  %s %s %s  %s %s  %s %s",
			labelStyle.Render(fmt.Sprintf("Chan %d:", ch.Index)), state,
			labelStyle.Render("addr"), valueStyle.Render(fmt.Sprintf("0x%02X", ch.OwnAddress)),
			labelStyle.Render(fmt.Sprintf("(locked=%t)", ch.AddressLocked)),
			labelStyle.Render("frames"), valueStyle.Render(fmt.Sprintf("%d/%d err=%d replies=%d",
				ch.FramesValid, ch.FramesTotal, ch.Errors, ch.RepliesSent)),
			labelStyle.Render("idle"), valueStyle.Render(idle))
	}
	if len(m.snap.Channels) == 0 {
		b.WriteString(labelStyle.Render("No channels attached"))
	}

	return boxStyle.Render(b.String())
}

func (m tuiModel) renderEventLog(headerStyle, errorStyle lipgloss.Style, boxStyle lipgloss.Style) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Events"))
	b.WriteString("\n")

	shown := m.eventLog
	if len(shown) > 8 {
		shown = shown[len(shown)-8:]
	}
	if len(shown) == 0 {
		b.WriteString(headerStyle.Render("(no commands yet)"))
	}
	for i, entry := range shown {
		if i > 0 {
			b.WriteString("\n")
		}
		line := fmt.Sprintf("%s %s", entry.timestamp.Format("15:04:05"), entry.message)
		if entry.isError {
			line = errorStyle.Render(line)
		}
		b.WriteString(line)
	}

	return boxStyle.Render(b.String())
}

//////////////////////////////////////////////////////////////
// Command
//////////////////////////////////////////////////////////////

func runTUI(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	// The alt screen owns the terminal
	log.SetOutput(io.Discard)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e, _, err := assembleEmulator(ctx, log)
	if err != nil {
		return err
	}

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- e.Run(ctx)
	}()

	p := tea.NewProgram(newTuiModel(e))
	_, tuiErr := p.Run()

	cancel()
	engineErr := <-engineDone
	if tuiErr != nil {
		return tuiErr
	}
	return engineErr
}
