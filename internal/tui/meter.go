// SPDX-License-Identifier: MIT

// Package tui is the live terminal meter.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"audiolens/internal/analysis"
	"audiolens/internal/engine"
	"audiolens/internal/render"
	"audiolens/internal/source"
)

// Placeholder shown for absent or non-finite readings.
const Placeholder = "—"

const (
	defaultRefresh = 50 * time.Millisecond
	barRows        = 12
	minBarColumns  = 16
	labelWidth     = 15
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color(render.DefaultColor)).
			Padding(0, 1).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(render.DefaultLabelColor)).
			Width(labelWidth)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true)

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(render.DefaultColor))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(render.DefaultLabelColor))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5534B"))
)

// Session is the part of an engine handle the meter drives.
type Session interface {
	State() engine.State
	Enable() error
	Disable()
	Last() (analysis.Snapshot, bool)
}

type keyMap struct {
	Toggle key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Toggle: key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "start/stop")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type tickMsg time.Time

// MeterModel is the Bubble Tea model for the live meter.
type MeterModel struct {
	session Session
	frames  source.FrameSource // Optional; without it no spectrum is drawn.
	title   string
	refresh time.Duration

	snap    analysis.Snapshot
	hasSnap bool
	bars    []float64
	state   engine.State

	width  int
	height int
	err    error
}

// NewMeterModel creates a meter for session. frames may be nil.
func NewMeterModel(session Session, frames source.FrameSource, title string) MeterModel {
	if title == "" {
		title = render.DefaultTitle
	}
	return MeterModel{
		session: session,
		frames:  frames,
		title:   title,
		refresh: defaultRefresh,
		state:   session.State(),
	}
}

// Init starts the refresh ticker.
func (m MeterModel) Init() tea.Cmd {
	return m.tick()
}

func (m MeterModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles input and refresh ticks.
func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m = m.refreshed()
		return m, m.tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Toggle):
			m = m.toggled()
		}
	}
	return m, nil
}

func (m MeterModel) refreshed() MeterModel {
	m.state = m.session.State()
	m.snap, m.hasSnap = m.session.Last()
	if m.frames == nil || m.state != engine.Active {
		m.bars = nil
		return m
	}
	frame, err := m.frames.Frame()
	if err != nil {
		m.err = err
		m.bars = nil
		return m
	}
	m.err = nil
	m.bars = Bars(frame, m.barColumns())
	return m
}

func (m MeterModel) toggled() MeterModel {
	m.err = nil
	if m.session.State() == engine.Active {
		m.session.Disable()
	} else if err := m.session.Enable(); err != nil {
		m.err = err
	}
	return m.refreshed()
}

func (m MeterModel) barColumns() int {
	return max(m.width-2, minBarColumns)
}

// View renders the meter.
func (m MeterModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("  ")
	sb.WriteString(helpStyle.Render(m.state.String()))
	sb.WriteString("\n\n")

	for _, row := range m.readings() {
		sb.WriteString(labelStyle.Render(row[0]))
		sb.WriteString(valueStyle.Render(row[1]))
		sb.WriteString("\n")
	}

	if len(m.bars) > 0 {
		sb.WriteString("\n")
		sb.WriteString(barStyle.Render(RenderBars(m.bars, barRows)))
		sb.WriteString("\n")
	}
	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(errStyle.Render("Error: " + m.err.Error()))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(fmt.Sprintf("%s: %s • %s: %s",
		keys.Toggle.Help().Key, keys.Toggle.Help().Desc,
		keys.Quit.Help().Key, keys.Quit.Help().Desc)))
	return sb.String()
}

func (m MeterModel) readings() [][2]string {
	if !m.hasSnap {
		return [][2]string{
			{"RMS", Placeholder}, {"Peak", Placeholder}, {"LUFS", Placeholder},
			{"dBFS", Placeholder}, {"Dynamic range", Placeholder},
			{"Tempo", Placeholder}, {"Key", Placeholder},
		}
	}
	s := m.snap
	tempo := Placeholder
	if bpm, ok := s.TempoBPM(); ok {
		tempo = FormatValue(bpm, "%.0f BPM")
	}
	keyName := Placeholder
	if pc, ok := s.KeyClass(); ok {
		keyName = pc.String()
	}
	return [][2]string{
		{"RMS", FormatValue(s.RMS, "%.3f")},
		{"Peak", FormatValue(s.Peak, "%.3f")},
		{"LUFS", FormatValue(s.Lufs, "%.1f LUFS")},
		{"dBFS", FormatValue(s.Dbfs, "%.1f dBFS")},
		{"Dynamic range", FormatValue(s.DynamicRange, "%.1f dB")},
		{"Tempo", tempo},
		{"Key", keyName},
	}
}

// FormatValue formats v with format, or returns Placeholder when v is not
// finite.
func FormatValue(v float64, format string) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Placeholder
	}
	return fmt.Sprintf(format, v)
}

// Bars reduces a frame to columns levels in [0, 1] on the same logarithmic
// frequency axis as the rendered plot. Each column holds the loudest bin
// that lands in it.
func Bars(frame source.Frame, columns int) []float64 {
	if columns <= 0 {
		return nil
	}
	bars := make([]float64, columns)
	nyquist := frame.SampleRate / 2
	minDb, maxDb := frame.MinDecibels, frame.MaxDecibels
	if nyquist <= render.MinFrequency || !(minDb < maxDb) {
		return bars
	}

	bins := len(frame.Freq)
	for i := 1; i < bins; i++ {
		freq := float64(i) * nyquist / float64(bins)
		if freq < render.MinFrequency {
			continue
		}
		db := float64(frame.Freq[i])
		if math.IsNaN(db) {
			continue
		}
		db = math.Min(math.Max(db, minDb), maxDb)
		level := 1 - render.DbToY(db, minDb, maxDb, 1)
		col := int(render.FreqToX(freq, nyquist, float64(columns)))
		col = min(max(col, 0), columns-1)
		bars[col] = math.Max(bars[col], level)
	}
	return bars
}

// RenderBars draws levels as a block graph rows high.
func RenderBars(levels []float64, rows int) string {
	var sb strings.Builder
	for r := rows; r >= 1; r-- {
		threshold := (float64(r) - 0.5) / float64(rows)
		for _, l := range levels {
			if l >= threshold {
				sb.WriteRune('█')
			} else {
				sb.WriteByte(' ')
			}
		}
		if r > 1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Run starts the meter on the alternate screen and blocks until the user
// quits.
func Run(session Session, frames source.FrameSource, title string) error {
	p := tea.NewProgram(
		NewMeterModel(session, frames, title),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
