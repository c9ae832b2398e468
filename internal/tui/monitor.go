// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tempo/internal/analysis"
	"tempo/internal/tempo"
)

const (
	defaultMeterWidth = 40
	labelWidth        = 12
)

var (
	bpmStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	pulseOnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD75F")).
			Bold(true)
)

// Controller is the part of the analyzer the monitor drives.
// *analysis.Analyzer satisfies it.
type Controller interface {
	GetSnapshot() analysis.Snapshot
	GetConfig() analysis.Config
	SetConfig(patch analysis.ConfigPatch)
}

type tickMsg time.Time

// MonitorModel is a live tempo meter.
type MonitorModel struct {
	ctrl     Controller
	interval time.Duration
	snap     analysis.Snapshot
	cfg      analysis.Config
	width    int
}

// NewMonitorModel polls ctrl every interval.
func NewMonitorModel(ctrl Controller, interval time.Duration) MonitorModel {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return MonitorModel{
		ctrl:     ctrl,
		interval: interval,
		snap:     ctrl.GetSnapshot(),
		cfg:      ctrl.GetConfig(),
		width:    defaultMeterWidth,
	}
}

func (m MonitorModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m MonitorModel) Init() tea.Cmd {
	return m.tick()
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.snap = m.ctrl.GetSnapshot()
		m.cfg = m.ctrl.GetConfig()
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.width = min(max(msg.Width-labelWidth-8, 10), 80)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keyQuit):
			return m, tea.Quit
		case key.Matches(msg, keyMethod):
			next := tempo.MethodStreaming
			if m.cfg.Method == tempo.MethodStreaming {
				next = tempo.MethodSpectral
			}
			m.ctrl.SetConfig(analysis.ConfigPatch{Method: &next})
			m.cfg = m.ctrl.GetConfig()
		case key.Matches(msg, keyToggle):
			enabled := !m.cfg.Enabled
			m.ctrl.SetConfig(analysis.ConfigPatch{Enabled: &enabled})
			m.cfg = m.ctrl.GetConfig()
			m.snap = m.ctrl.GetSnapshot()
		}
	}
	return m, nil
}

func (m MonitorModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Tempo Monitor"))
	sb.WriteString("\n\n")

	bpm := "---.-"
	if m.snap.OK {
		bpm = fmt.Sprintf("%5.1f", m.snap.BPM)
	}
	fmt.Fprintf(&sb, "%s BPM   %s\n\n", bpmStyle.Render(bpm), infoStyle.Render(m.status()))

	m.meterLine(&sb, "Confidence", meterBar(m.snap.Confidence01, m.width), m.snap.Confidence01)
	m.meterLine(&sb, "Stability", meterBar(m.snap.Stability01, m.width), m.snap.Stability01)
	m.meterLine(&sb, "Phase", phaseBar(m.snap.BeatPhase, m.width), m.snap.BeatPhase)

	pulse := dimStyle.Render("○")
	if m.snap.BeatPulse >= 0.5 {
		pulse = pulseOnStyle.Render("●")
	}
	m.meterLine(&sb, "Pulse", pulse+" "+meterBar(m.snap.BeatPulse, m.width-2), m.snap.BeatPulse)

	if m.snap.LastError != "" {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render("Error: " + m.snap.LastError))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("m: Switch Method • e: Enable/Disable • q: Quit"))
	return sb.String()
}

func (m MonitorModel) status() string {
	if !m.cfg.Enabled {
		return "disabled"
	}
	state := "listening"
	if m.snap.OK {
		state = "locked"
	}
	return fmt.Sprintf("%s (%s, %.0f-%.0f BPM)", state, m.cfg.Method, m.cfg.MinTempo, m.cfg.MaxTempo)
}

func (m MonitorModel) meterLine(sb *strings.Builder, label, bar string, v float64) {
	fmt.Fprintf(sb, "%-*s %s %.2f\n", labelWidth, label, bar, v)
}

// meterBar renders v in [0,1] as a filled bar.
func meterBar(v float64, width int) string {
	width = max(width, 1)
	filled := int(math.Round(clamp01(v) * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// phaseBar marks the position of phase within one beat.
func phaseBar(phase float64, width int) string {
	width = max(width, 1)
	pos := min(int(clamp01(phase)*float64(width)), width-1)
	return strings.Repeat("─", pos) + "●" + strings.Repeat("─", width-pos-1)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}

// RunMonitor runs the tempo meter full screen until the user quits.
func RunMonitor(ctrl Controller, interval time.Duration) error {
	p := tea.NewProgram(NewMonitorModel(ctrl, interval), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
