package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/musical"
	"github.com/cwbudde/algo-synth/synth"
)

const (
	refreshInterval = 50 * time.Millisecond
	spectrumRows    = 8
	spectrumFloorDB = -90.0
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FAFFF"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D75F")).Bold(true)
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFFF"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00"))
)

type tickMsg time.Time

// releaseMsg ends a key press. Terminals report no key-up events, so a
// note is held for a fixed time after the last repeat of its key.
type releaseMsg struct {
	note uint8
	gen  uint64
}

// Model is the keyboard UI.
type Model struct {
	engine *synth.Engine
	hold   time.Duration
	octave int

	held  map[uint8]uint64 // note -> generation of the last press
	gen   uint64
	width int

	status   string
	spectrum []float64
}

func NewModel(e *synth.Engine, hold time.Duration, octave int) Model {
	return Model{
		engine: e,
		hold:   hold,
		octave: octave,
		held:   make(map[uint8]uint64),
		width:  64,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = max(16, msg.Width-4)
		return m, nil
	case tickMsg:
		if a := m.engine.Analyzer(); a != nil {
			m.spectrum = a.LatestInto(analysis.PostFX, m.spectrum)
		}
		return m, tick()
	case releaseMsg:
		if g, ok := m.held[msg.note]; ok && g == msg.gen {
			delete(m.held, msg.note)
			m.push(synth.NoteOffAt(msg.note, m.engine.CurrentSampleIndex()))
		}
		return m, nil
	case tea.KeyMsg:
		return m.key(msg)
	}
	return m, nil
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc", "q":
		m.engine.KillAll()
		return m, tea.Quit
	case "z":
		m.octave = max(m.octave-1, 0)
		return m, nil
	case "x":
		m.octave = min(m.octave+1, 8)
		return m, nil
	case " ":
		m.engine.ReleaseAll()
		clear(m.held)
		return m, nil
	case "backspace":
		m.engine.KillAll()
		clear(m.held)
		return m, nil
	case "m":
		if m.engine.ToggleMaskPostFX() {
			m.status = "mask after effects"
		} else {
			m.status = "mask before effects"
		}
		return m, nil
	case "n":
		on := !m.engine.Params().MaskEnabled.Load()
		m.engine.Params().MaskEnabled.Store(on)
		m.status = fmt.Sprintf("mask enabled: %v", on)
		return m, nil
	case "r":
		m.engine.RequestResonatorReset(true, true)
		m.status = "resonators re-drawn"
		return m, nil
	case "1", "2", "3":
		kind := synth.GeneratorKind(msg.String()[0] - '1')
		m.engine.Params().SetGenerator(kind)
		m.status = "generator: " + kind.String()
		return m, nil
	}
	if len(msg.Runes) != 1 {
		return m, nil
	}
	note, ok := musical.KeyToNote(msg.Runes[0], m.octave)
	if !ok {
		return m, nil
	}
	m.gen++
	if _, down := m.held[note]; !down {
		m.push(synth.NoteOnAt(note, m.engine.CurrentSampleIndex()))
	}
	m.held[note] = m.gen
	gen := m.gen
	return m, tea.Tick(m.hold, func(time.Time) tea.Msg { return releaseMsg{note: note, gen: gen} })
}

func (m *Model) push(ev synth.NoteEvent) {
	if !m.engine.Queue().Push(ev) {
		m.status = "note queue full"
	}
}

func (m Model) View() string {
	var b strings.Builder
	st := m.engine.Stats()
	p := m.engine.Params()

	b.WriteString(titleStyle.Render("algo-synth"))
	b.WriteString("\n\n")
	field := func(label, value string) string {
		return labelStyle.Render(label+" ") + valueStyle.Render(value) + "   "
	}
	b.WriteString(field("octave", fmt.Sprint(m.octave)))
	b.WriteString(field("generator", synth.GeneratorKind(p.Generator.Load()).String()))
	b.WriteString(field("oversampling", fmt.Sprintf("%dx", p.Oversampling.Load())))
	b.WriteString(field("latency", fmt.Sprintf("%d", m.engine.Latency())))
	b.WriteString("\n")
	voices := valueStyle.Render(fmt.Sprint(st.ActiveVoices))
	if st.ActiveVoices > 0 {
		voices = activeStyle.Render(fmt.Sprint(st.ActiveVoices))
	}
	b.WriteString(labelStyle.Render("voices ") + voices + "   ")
	b.WriteString(field("blocks", fmt.Sprint(st.Blocks)))
	b.WriteString(field("idle", fmt.Sprint(st.IdleSkipped)))
	if st.DroppedEvents > 0 {
		b.WriteString(warningStyle.Render(fmt.Sprintf("dropped %d", st.DroppedEvents)))
	}
	b.WriteString("\n\n")

	if len(m.spectrum) > 1 {
		b.WriteString(renderSpectrum(m.spectrum, m.width, spectrumRows))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(m.status + "\n")
	}
	b.WriteString(helpStyle.Render("keys a-p play  z/x octave  space release  backspace kill  1-3 generator  n mask  m mask position  r resonators  q quit"))
	b.WriteString("\n")
	return b.String()
}

// renderSpectrum draws spectrum (dB per bin) as columns on a log frequency
// axis, one column per character.
func renderSpectrum(spectrum []float64, width, rows int) string {
	cols := make([]float64, width)
	bins := len(spectrum)
	lo := math.Log(1)
	hi := math.Log(float64(bins - 1))
	for c := range cols {
		a := int(math.Exp(lo + (hi-lo)*float64(c)/float64(width)))
		z := int(math.Exp(lo + (hi-lo)*float64(c+1)/float64(width)))
		a = min(max(a, 1), bins-1)
		z = min(max(z, a+1), bins)
		level := spectrumFloorDB
		for _, v := range spectrum[a:z] {
			level = max(level, v)
		}
		cols[c] = min(max((level-spectrumFloorDB)/-spectrumFloorDB, 0), 1)
	}
	var b strings.Builder
	for r := rows; r > 0; r-- {
		line := make([]rune, width)
		for c, v := range cols {
			fill := v*float64(rows) - float64(r-1)
			switch {
			case fill >= 1:
				line[c] = '█'
			case fill >= 0.5:
				line[c] = '▄'
			default:
				line[c] = ' '
			}
		}
		b.WriteString(barStyle.Render(string(line)))
		b.WriteString("\n")
	}
	return b.String()
}
