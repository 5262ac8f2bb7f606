package synth

import (
	"math"
	"testing"
)

func TestNoteQueueRejectsNewestWhenFull(t *testing.T) {
	q := NewNoteQueue(2, quietLogger())
	if !q.Push(NoteOnAt(60, 0)) || !q.Push(NoteOnAt(61, 0)) {
		t.Fatalf("push into empty queue failed")
	}
	if q.Push(NoteOnAt(62, 0)) {
		t.Fatalf("push into full queue succeeded")
	}
	if q.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", q.Dropped())
	}
	for _, want := range []uint8{60, 61} {
		e, ok := q.Pop()
		if !ok || e.Note != want {
			t.Fatalf("Pop() = %+v, %v; want note %d", e, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("Pop() on empty queue returned an event")
	}
}

func TestNoteQueueClosedReadsEmpty(t *testing.T) {
	q := NewNoteQueue(4, quietLogger())
	q.Push(NoteOnAt(60, 0))
	q.Close()
	q.Close()
	if !q.Closed() {
		t.Fatalf("Closed() = false after Close")
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("closed queue returned an event")
	}
	if q.Push(NoteOffAt(60, 0)) {
		t.Fatalf("push after Close succeeded")
	}
}

func TestNoteEventFreq(t *testing.T) {
	if got := NoteOnAt(69, 0).Freq(); math.Abs(got-440) > 0.01 {
		t.Fatalf("A4 = %v Hz, want 440", got)
	}
	if got := NoteOffAt(57, 0).Freq(); math.Abs(got-220) > 0.01 {
		t.Fatalf("A3 = %v Hz, want 220", got)
	}
}
