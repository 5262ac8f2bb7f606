package main

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cwbudde/algo-synth/synth"
)

func press(m Model, r rune) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	return next.(Model), cmd
}

func TestKeyPressQueuesNoteOn(t *testing.T) {
	e := newTestEngine(t)
	m := NewModel(e, time.Second, 4)
	m, cmd := press(m, 'a')
	if cmd == nil {
		t.Fatal("expected a release timer")
	}
	ev, ok := e.Queue().Pop()
	if !ok || ev.Kind != synth.NoteOn || ev.Note != 60 {
		t.Fatalf("queued %+v ok=%v, want note on 60", ev, ok)
	}

	// Auto-repeat of a held key does not retrigger.
	m, _ = press(m, 'a')
	if _, ok := e.Queue().Pop(); ok {
		t.Fatal("repeat queued another event")
	}
	if len(m.held) != 1 {
		t.Fatalf("held = %v", m.held)
	}
}

func TestStaleReleaseIsIgnored(t *testing.T) {
	e := newTestEngine(t)
	m := NewModel(e, time.Second, 4)
	m, _ = press(m, 'd') // E4
	first := m.held[64]
	m, _ = press(m, 'd')
	e.Queue().Pop()

	next, _ := m.Update(releaseMsg{note: 64, gen: first})
	m = next.(Model)
	if _, ok := e.Queue().Pop(); ok {
		t.Fatal("stale release queued a note off")
	}
	next, _ = m.Update(releaseMsg{note: 64, gen: m.held[64]})
	m = next.(Model)
	ev, ok := e.Queue().Pop()
	if !ok || ev.Kind != synth.NoteOff || ev.Note != 64 {
		t.Fatalf("queued %+v ok=%v, want note off 64", ev, ok)
	}
	if len(m.held) != 0 {
		t.Fatalf("held = %v after release", m.held)
	}
}

func TestOctaveKeys(t *testing.T) {
	e := newTestEngine(t)
	m := NewModel(e, time.Second, 4)
	m, _ = press(m, 'x')
	m, _ = press(m, 'a')
	ev, _ := e.Queue().Pop()
	if ev.Note != 72 {
		t.Fatalf("note = %d, want 72", ev.Note)
	}
	for range 10 {
		m, _ = press(m, 'z')
	}
	if m.octave != 0 {
		t.Fatalf("octave = %d, want 0", m.octave)
	}
}

func TestControlKeys(t *testing.T) {
	e := newTestEngine(t)
	m := NewModel(e, time.Second, 4)
	m, _ = press(m, '3')
	if got := synth.GeneratorKind(e.Params().Generator.Load()); got != synth.GeneratorSine {
		t.Fatalf("generator = %v, want sine", got)
	}
	before := e.Params().MaskPostFX.Load()
	m, _ = press(m, 'm')
	if e.Params().MaskPostFX.Load() == before {
		t.Fatal("mask position not toggled")
	}
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
}

func TestViewShowsSpectrum(t *testing.T) {
	e := newTestEngine(t)
	m := NewModel(e, time.Second, 4)
	m.spectrum = make([]float64, 513)
	for k := range m.spectrum {
		m.spectrum[k] = -90
	}
	m.spectrum[40] = 0
	v := m.View()
	if !strings.Contains(v, "█") {
		t.Fatal("spectrum peak not drawn")
	}
	if !strings.Contains(v, "octave") {
		t.Fatal("status line missing")
	}
}

func TestRenderSpectrumShape(t *testing.T) {
	s := renderSpectrum([]float64{-90, -90, -45, 0}, 10, 4)
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d rows, want 4", len(lines))
	}
}
