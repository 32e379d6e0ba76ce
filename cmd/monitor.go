// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"flag"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/gyrobridge/pkg/bridge"
	"github.com/Thermoquad/gyrobridge/pkg/liveness"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the bridge with a live status screen",
	Long: `Run the bridge like 'run' and show link liveness, the latest attitude and
decoder statistics in a terminal UI.

Log output goes to files in the glog log directory while the screen is up.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// Messages
type statusMsg bridge.Status
type bridgeErrMsg struct{ err error }

// TUI model
type monitorModel struct {
	spinner       spinner.Model
	status        bridge.Status
	haveStatus    bool
	err           error
	events        []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

func newMonitorModel() monitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return monitorModel{
		spinner:       s,
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.EnterAltScreen)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case bridgeErrMsg:
		m.err = msg.err
		m.addLogEntry(msg.err.Error(), true)

	case statusMsg:
		m.observe(bridge.Status(msg))
	}

	return m, nil
}

// observe logs transitions between consecutive statuses
func (m *monitorModel) observe(st bridge.Status) {
	prev := m.status
	first := !m.haveStatus
	m.status = st
	m.haveStatus = true

	if first {
		m.addLogEntry("Opened "+st.Endpoint, false)
		return
	}
	if st.Liveness != prev.Liveness {
		m.addLogEntry(fmt.Sprintf("Link %s", st.Liveness), st.Liveness == liveness.StateDegraded)
	}
	if st.Lost > prev.Lost {
		m.addLogEntry(fmt.Sprintf("Heartbeat lost (%d)", st.Lost), true)
	}
	if st.Failovers > prev.Failovers {
		m.addLogEntry("Failover to "+st.Endpoint, true)
	}
	if st.Connected != prev.Connected {
		if st.Connected {
			m.addLogEntry("Connected", false)
		} else {
			m.addLogEntry("Disconnected", true)
		}
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.events = append(m.events, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.events) > m.maxLogEntries {
		m.events = m.events[len(m.events)-m.maxLogEntries:]
	}
}

func degrees(rad float32) float64 {
	return float64(rad) * 180 / math.Pi
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("GYROBRIDGE - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Press 'q' to quit", m.status.Endpoint)))
	s.WriteString("\n\n")

	st := m.status
	switch {
	case m.err != nil:
		s.WriteString(errorStyle.Render("✗ " + m.err.Error()))
	case !m.haveStatus:
		s.WriteString(m.spinner.View() + warningStyle.Render(" Opening link..."))
	case st.Liveness == liveness.StateLive:
		s.WriteString(valueStyle.Render("✓ Live"))
	case st.Liveness == liveness.StateDegraded:
		s.WriteString(m.spinner.View() + errorStyle.Render(" Degraded, waiting for heartbeat"))
	default:
		s.WriteString(m.spinner.View() + warningStyle.Render(
			fmt.Sprintf(" Waiting for heartbeats (%d to go)", st.Budget)))
	}
	s.WriteString("\n\n")

	// Link
	var link strings.Builder
	last := "never"
	if !st.LastHeartbeat.IsZero() {
		last = fmt.Sprintf("%.1fs ago", time.Since(st.LastHeartbeat).Seconds())
	}
	link.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Heartbeats:"), valueStyle.Render(fmt.Sprintf("%d", st.Heartbeats)),
		labelStyle.Render("Last:"), valueStyle.Render(last),
		labelStyle.Render("Lost:"), func() string {
			if st.Lost > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", st.Lost))
			}
			return valueStyle.Render("0")
		}(),
	))
	link.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Failovers:"), valueStyle.Render(fmt.Sprintf("%d", st.Failovers)),
		labelStyle.Render("Messages:"), valueStyle.Render(fmt.Sprintf("%d", st.Messages)),
		labelStyle.Render("Errors:"), func() string {
			n := st.ChecksumErrors + st.FramingErrors
			if n > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", n))
			}
			return valueStyle.Render("0")
		}(),
	))
	s.WriteString(boxStyle.Render(link.String()))
	s.WriteString("\n\n")

	// Attitude (only shown once received)
	if st.HaveAttitude {
		a := st.Attitude
		s.WriteString(labelStyle.Render("Attitude:"))
		s.WriteString("\n")
		att := fmt.Sprintf("%s %s   %s %s   %s %s\n%s %s",
			labelStyle.Render("Roll:"), valueStyle.Render(fmt.Sprintf("%7.2f°", degrees(a.Roll))),
			labelStyle.Render("Pitch:"), valueStyle.Render(fmt.Sprintf("%7.2f°", degrees(a.Pitch))),
			labelStyle.Render("Yaw:"), valueStyle.Render(fmt.Sprintf("%7.2f°", degrees(a.Yaw))),
			labelStyle.Render("Forwarded:"), valueStyle.Render(fmt.Sprintf("%d", st.Sent)),
		)
		s.WriteString(boxStyle.Render(att))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 16
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.events) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	var log strings.Builder
	if len(m.events) == 0 {
		log.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.events[startIdx:] {
		timestamp := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
		if entry.isError {
			log.WriteString(fmt.Sprintf("%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message)))
		} else {
			log.WriteString(fmt.Sprintf("%s %s\n", timestamp, warningStyle.Render("ℹ "+entry.message)))
		}
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(log.String()))

	return s.String()
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Keep log lines off the screen unless asked for
	if !cmd.Flags().Changed("logtostderr") {
		_ = flag.Set("logtostderr", "false")
	}

	p := tea.NewProgram(newMonitorModel())
	b, err := newBridge(cfg, func(st bridge.Status) { p.Send(statusMsg(st)) })
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var startErr error
	go func() {
		defer close(done)
		startErr = serveBridge(ctx, b, func(err error) { p.Send(bridgeErrMsg{err}) })
	}()

	_, err = p.Run()
	cancel()
	<-done
	b.Stop()
	if startErr != nil {
		return startErr
	}
	return err
}

type bridgeRunner interface {
	Start() error
	Run(ctx context.Context) error
}

// serveBridge starts b and runs it until ctx is done. A start failure is
// reported and returned; run errors are only reported.
func serveBridge(ctx context.Context, b bridgeRunner, report func(error)) error {
	if err := b.Start(); err != nil {
		report(err)
		return err
	}
	if err := b.Run(ctx); err != nil && ctx.Err() == nil {
		report(err)
	}
	return nil
}
