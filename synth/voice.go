package synth

import (
	"github.com/cwbudde/algo-synth/dsp"
	"github.com/cwbudde/algo-synth/musical"
)

// DefaultPolyphony is the default number of voice slots.
const DefaultPolyphony = 16

// Voice is one sounding note: a generator gated by its own envelope.
type Voice struct {
	id        uint64
	note      uint8
	env       dsp.ADSR
	releasing bool
	gen       Generator
}

// ID returns the voice's allocation number. Later voices have larger ids.
func (v *Voice) ID() uint64 { return v.id }

// Note returns the MIDI note the voice plays.
func (v *Voice) Note() uint8 { return v.note }

// Releasing reports whether the voice got a note-off.
func (v *Voice) Releasing() bool { return v.releasing }

// Envelope returns the voice's amplitude envelope.
func (v *Voice) Envelope() *dsp.ADSR { return &v.env }

// Generator returns the voice's oscillator.
func (v *Voice) Generator() *Generator { return &v.gen }

type voiceSlot struct {
	active bool
	voice  Voice
}

// VoicePool is a fixed set of voice slots. It is used from the audio
// goroutine only and never allocates after construction.
type VoicePool struct {
	slots  []voiceSlot
	nextID uint64
	ids    []uint64
}

// NewVoicePool creates a pool with polyphony slots.
func NewVoicePool(polyphony int) *VoicePool {
	if polyphony <= 0 {
		polyphony = DefaultPolyphony
	}
	return &VoicePool{
		slots: make([]voiceSlot, polyphony),
		ids:   make([]uint64, 0, polyphony),
	}
}

// Polyphony returns the number of slots.
func (p *VoicePool) Polyphony() int { return len(p.slots) }

// Start spawns a voice for note with a copy of template. When every slot
// is busy the voice with the smallest id is replaced.
func (p *VoicePool) Start(note uint8, template *dsp.ADSR, sampleRate float64, kind GeneratorKind) *Voice {
	idx := -1
	for i := range p.slots {
		if !p.slots[i].active {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = 0
		for i := range p.slots {
			if p.slots[i].voice.id < p.slots[idx].voice.id {
				idx = i
			}
		}
	}

	p.nextID++
	s := &p.slots[idx]
	s.active = true
	v := &s.voice
	v.id = p.nextID
	v.note = note
	v.releasing = false
	v.env = *template
	v.env.Reset()
	v.env.SetTrigger(true)
	v.gen.Reset(kind, musical.NoteToFreq(float64(note)), sampleRate, v.id)
	return v
}

// Release starts the release of every active voice playing note.
func (p *VoicePool) Release(note uint8) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.active && s.voice.note == note {
			s.voice.releasing = true
			s.voice.env.SetTrigger(false)
		}
	}
}

// ReleaseAll starts the release of every active voice.
func (p *VoicePool) ReleaseAll() {
	for i := range p.slots {
		s := &p.slots[i]
		if s.active {
			s.voice.releasing = true
			s.voice.env.SetTrigger(false)
		}
	}
}

// KillAll frees every slot immediately.
func (p *VoicePool) KillAll() {
	for i := range p.slots {
		p.slots[i].active = false
	}
}

// TerminateFinished frees released voices whose envelope went idle.
func (p *VoicePool) TerminateFinished() {
	for i := range p.slots {
		s := &p.slots[i]
		if s.active && s.voice.releasing && s.voice.env.IsIdle() {
			s.active = false
		}
	}
}

// IsActive reports whether any slot is in use.
func (p *VoicePool) IsActive() bool {
	for i := range p.slots {
		if p.slots[i].active {
			return true
		}
	}
	return false
}

// ActiveCount returns the number of slots in use.
func (p *VoicePool) ActiveCount() int {
	n := 0
	for i := range p.slots {
		if p.slots[i].active {
			n++
		}
	}
	return n
}

// IDs returns the ids of the active voices in slot order. The slice is
// reused by the next call.
func (p *VoicePool) IDs() []uint64 {
	p.ids = p.ids[:0]
	for i := range p.slots {
		if p.slots[i].active {
			p.ids = append(p.ids, p.slots[i].voice.id)
		}
	}
	return p.ids
}

// Voice returns the active voice with the given id, or nil.
func (p *VoicePool) Voice(id uint64) *Voice {
	for i := range p.slots {
		if p.slots[i].active && p.slots[i].voice.id == id {
			return &p.slots[i].voice
		}
	}
	return nil
}

// ProcessBlock adds every active voice into left and right, scaled by the
// per-sample gain.
func (p *VoicePool) ProcessBlock(left, right, gain []float64) {
	n := min(len(left), len(right), len(gain))
	for i := range p.slots {
		s := &p.slots[i]
		if !s.active {
			continue
		}
		v := &s.voice
		for j := 0; j < n; j++ {
			y := v.gen.Next() * gain[j] * v.env.Next()
			left[j] += y
			right[j] += y
		}
	}
}
