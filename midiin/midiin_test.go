package midiin

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"

	"github.com/cwbudde/algo-synth/synth"
)

type fixedClock uint32

func (c fixedClock) CurrentSampleIndex() uint32 { return uint32(c) }

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestTranslateNotes(t *testing.T) {
	a := New(nil, fixedClock(17), Options{Channel: -1, Logger: quietLogger()})

	ev, ok := a.Translate(midi.NoteOn(0, 60, 100))
	if !ok || ev != synth.NoteOnAt(60, 17) {
		t.Fatalf("note on = %+v, %v", ev, ok)
	}
	ev, ok = a.Translate(midi.NoteOff(3, 60))
	if !ok || ev != synth.NoteOffAt(60, 17) {
		t.Fatalf("note off = %+v, %v", ev, ok)
	}
	ev, ok = a.Translate(midi.NoteOn(0, 62, 0))
	if !ok || ev.Kind != synth.NoteOff {
		t.Fatalf("zero velocity note on = %+v, %v; want note off", ev, ok)
	}
	if _, ok := a.Translate(midi.ControlChange(0, 7, 100)); ok {
		t.Fatalf("controller translated to a note")
	}
}

func TestTranslateChannelAndTranspose(t *testing.T) {
	a := New(nil, nil, Options{Channel: 2, Transpose: 12, Logger: quietLogger()})
	if _, ok := a.Translate(midi.NoteOn(1, 60, 90)); ok {
		t.Fatalf("message on another channel was translated")
	}
	ev, ok := a.Translate(midi.NoteOn(2, 60, 90))
	if !ok || ev.Note != 72 || ev.Timing != 0 {
		t.Fatalf("transposed note = %+v, %v", ev, ok)
	}
	if _, ok := a.Translate(midi.NoteOn(2, 120, 90)); ok {
		t.Fatalf("note transposed past 127 was translated")
	}
}

func TestHandlePushesAndCountsDrops(t *testing.T) {
	q := synth.NewNoteQueue(1, quietLogger())
	released := 0
	a := New(q, nil, Options{Channel: -1, AllNotesOff: func() { released++ }, Logger: quietLogger()})

	if !a.Handle(midi.NoteOn(0, 64, 80)) {
		t.Fatalf("first event not queued")
	}
	if a.Handle(midi.NoteOn(0, 65, 80)) {
		t.Fatalf("event queued into a full queue")
	}
	if a.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", a.Dropped())
	}
	a.Handle(midi.ControlChange(0, ccAllNotesOff, 0))
	if released != 1 {
		t.Fatalf("all notes off called %d times", released)
	}
}
