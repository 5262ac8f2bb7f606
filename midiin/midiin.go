// Package midiin turns live MIDI input into engine note events.
package midiin

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/cwbudde/algo-synth/synth"
)

const ccAllNotesOff = 123

// Sink receives translated events. *synth.NoteQueue implements it.
type Sink interface {
	Push(e synth.NoteEvent) bool
}

// Clock timestamps events inside the current audio block.
// *synth.Engine implements it.
type Clock interface {
	CurrentSampleIndex() uint32
}

// Options tune the translation.
type Options struct {
	// Channel filters input to one MIDI channel (0-15). -1 accepts all.
	Channel int
	// Transpose shifts every note by this many semitones.
	Transpose int
	// AllNotesOff is called on controller 123.
	AllNotesOff func()
	Logger      logrus.FieldLogger
}

// Adapter translates MIDI messages into note events.
type Adapter struct {
	sink    Sink
	clock   Clock
	opts    Options
	log     logrus.FieldLogger
	dropped atomic.Uint64
}

// New creates an adapter. clock may be nil, in which case events are
// stamped at the start of the next block.
func New(sink Sink, clock Clock, opts Options) *Adapter {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Adapter{sink: sink, clock: clock, opts: opts, log: log}
}

// Translate maps a message to a note event. Velocity zero note-ons count
// as note-offs.
func (a *Adapter) Translate(msg midi.Message) (synth.NoteEvent, bool) {
	var ch, key, vel uint8
	var timing uint32
	if a.clock != nil {
		timing = a.clock.CurrentSampleIndex()
	}
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		if note, ok := a.note(ch, key); ok {
			return synth.NoteOnAt(note, timing), true
		}
	case msg.GetNoteEnd(&ch, &key):
		if note, ok := a.note(ch, key); ok {
			return synth.NoteOffAt(note, timing), true
		}
	}
	return synth.NoteEvent{}, false
}

func (a *Adapter) note(ch, key uint8) (uint8, bool) {
	if a.opts.Channel >= 0 && int(ch) != a.opts.Channel {
		return 0, false
	}
	n := int(key) + a.opts.Transpose
	if n < 0 || n > 127 {
		return 0, false
	}
	return uint8(n), true
}

// Handle translates msg and pushes the result. It reports whether an
// event was queued.
func (a *Adapter) Handle(msg midi.Message) bool {
	var ch, cc, val uint8
	if msg.GetControlChange(&ch, &cc, &val) && cc == ccAllNotesOff {
		if a.opts.AllNotesOff != nil && (a.opts.Channel < 0 || int(ch) == a.opts.Channel) {
			a.opts.AllNotesOff()
		}
		return false
	}
	ev, ok := a.Translate(msg)
	if !ok {
		return false
	}
	if !a.sink.Push(ev) {
		a.dropped.Add(1)
		return false
	}
	return true
}

// Dropped returns how many translated events the sink rejected.
func (a *Adapter) Dropped() uint64 { return a.dropped.Load() }

// Listen opens in and feeds every message through Handle until the
// returned stop function is called.
func (a *Adapter) Listen(in drivers.In) (stop func(), err error) {
	if err := in.Open(); err != nil {
		return nil, fmt.Errorf("open %s: %w", in, err)
	}
	name := in.String()
	stopFn, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		a.Handle(msg)
	}, midi.HandleError(func(err error) {
		a.log.WithError(err).WithField("device", name).Warn("midi listener error")
		if a.opts.AllNotesOff != nil {
			a.opts.AllNotesOff()
		}
	}))
	if err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("listen %s: %w", name, err)
	}
	a.log.WithField("device", name).Info("midi input connected")
	return func() {
		stopFn()
		_ = in.Close()
		a.log.WithFields(logrus.Fields{
			"device":  name,
			"dropped": a.dropped.Load(),
		}).Info("midi input closed")
	}, nil
}

// FindIn returns the input port whose name contains name, or the first
// port when name is empty. A driver must be registered by importing it.
func FindIn(name string) (drivers.In, error) {
	if name == "" {
		ins := midi.GetInPorts()
		if len(ins) == 0 {
			return nil, fmt.Errorf("no midi inputs")
		}
		return ins[0], nil
	}
	in, err := midi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("midi input %q: %w", name, err)
	}
	return in, nil
}

// PortNames lists the available input ports.
func PortNames() []string {
	ins := midi.GetInPorts()
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names
}
