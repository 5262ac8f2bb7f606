package synth

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-synth/musical"
)

// DefaultQueueCapacity is the default number of pending note events.
const DefaultQueueCapacity = 256

// NoteKind tells note-on from note-off events.
type NoteKind uint8

const (
	NoteOn NoteKind = iota
	NoteOff
)

func (k NoteKind) String() string {
	switch k {
	case NoteOn:
		return "note_on"
	case NoteOff:
		return "note_off"
	default:
		return fmt.Sprintf("note_kind(%d)", int(k))
	}
}

// NoteEvent is a note-on or note-off at a frame offset inside the next
// rendered buffer.
type NoteEvent struct {
	Kind   NoteKind
	Note   uint8
	Timing uint32
}

// NoteOnAt builds a note-on event.
func NoteOnAt(note uint8, timing uint32) NoteEvent {
	return NoteEvent{Kind: NoteOn, Note: note, Timing: timing}
}

// NoteOffAt builds a note-off event.
func NoteOffAt(note uint8, timing uint32) NoteEvent {
	return NoteEvent{Kind: NoteOff, Note: note, Timing: timing}
}

// Freq returns the equal tempered frequency of the event's note.
func (e NoteEvent) Freq() float64 {
	return musical.NoteToFreq(float64(e.Note))
}

// NoteQueue carries note events from any number of producers to the audio
// goroutine. Both ends are non-blocking. When the queue is full the newest
// event is rejected and counted as dropped.
type NoteQueue struct {
	ch        chan NoteEvent
	closed    atomic.Bool
	dropped   atomic.Uint64
	closeOnce sync.Once
	log       logrus.FieldLogger
}

// NewNoteQueue creates a queue holding up to capacity events.
func NewNoteQueue(capacity int, log logrus.FieldLogger) *NoteQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &NoteQueue{ch: make(chan NoteEvent, capacity), log: log}
}

// Push enqueues e without blocking. It returns false if the queue is full
// or closed.
func (q *NoteQueue) Push(e NoteEvent) bool {
	if q.closed.Load() {
		q.dropped.Add(1)
		return false
	}
	select {
	case q.ch <- e:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop dequeues the next event without blocking. A closed queue reads as
// empty.
func (q *NoteQueue) Pop() (NoteEvent, bool) {
	if q.closed.Load() {
		return NoteEvent{}, false
	}
	select {
	case e := <-q.ch:
		return e, true
	default:
		return NoteEvent{}, false
	}
}

// Close disconnects the producers. Later pushes are dropped.
func (q *NoteQueue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		q.log.WithFields(logrus.Fields{
			"pending": len(q.ch),
			"dropped": q.dropped.Load(),
		}).Info("note queue closed")
	})
}

// Closed reports whether Close was called.
func (q *NoteQueue) Closed() bool { return q.closed.Load() }

// Len returns the number of pending events.
func (q *NoteQueue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *NoteQueue) Cap() int { return cap(q.ch) }

// Dropped returns the number of rejected events.
func (q *NoteQueue) Dropped() uint64 { return q.dropped.Load() }
