// Package resonator implements a bank of very narrow stereo resonators whose
// pitches are drawn at random and optionally pulled towards a musical scale.
package resonator

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/cwbudde/algo-synth/dsp"
	"github.com/cwbudde/algo-synth/musical"
)

const (
	// DefaultCapacity is the number of preallocated resonators.
	DefaultCapacity = 32
	// DefaultCount is the number of resonators active after construction.
	DefaultCount = 8

	noteMin       = 20.0  // 25.96 Hz
	noteMax       = 128.0 // 13289.75 Hz
	inharmScale   = 0.01
	pitchGlideMs  = 1000.0
	initialPitch  = 72.0
	defaultRootNt = 69.0
)

var ErrCount = errors.New("resonator count out of range")

// Params holds the bank-level controls.
type Params struct {
	RootNote   float64
	Scale      musical.Scale
	Quantize   bool
	FreqSpread float64 // 0 = one octave of range, 1 = nine octaves
	FreqShift  float64 // semitones added to every base pitch
	Inharm     float64 // 0 = fully quantized, 1 = original pitch
	PanSpread  float64
}

// DefaultParams returns an unquantized bank rooted at A4.
func DefaultParams() Params {
	return Params{RootNote: defaultRootNt, Scale: musical.Chromatic}
}

type voice struct {
	l, r   *dsp.TwoPoleResonator
	gl, gr float64
	base   float64
	pitch  dsp.Smoother
}

// Bank is a parallel sum of stereo two-pole resonators.
type Bank struct {
	sampleRate float64
	params     Params
	voices     []voice
	count      int
	dry, wet   float64
}

// NewBank creates a bank with capacity preallocated resonators and
// DefaultCount of them active.
func NewBank(sampleRate float64, capacity int) (*Bank, error) {
	if sampleRate <= 0 {
		return nil, dsp.ErrInvalidSampleRate
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be > 0: %w", ErrCount)
	}
	b := &Bank{
		sampleRate: sampleRate,
		params:     DefaultParams(),
		voices:     make([]voice, capacity),
		count:      min(DefaultCount, capacity),
	}
	freq := musical.NoteToFreq(initialPitch)
	for i := range b.voices {
		v := &b.voices[i]
		v.l = dsp.NewTwoPoleResonator(sampleRate, freq)
		v.r = dsp.NewTwoPoleResonator(sampleRate, freq)
		v.gl, v.gr = dsp.PanGains(0)
		v.base = initialPitch
		v.pitch.Prepare(dsp.SmoothCosine, pitchGlideMs, sampleRate, initialPitch)
	}
	b.SetMix(1)
	return b, nil
}

// Params returns the current bank parameters.
func (b *Bank) Params() Params { return b.params }

// Capacity returns the number of preallocated resonators.
func (b *Bank) Capacity() int { return len(b.voices) }

// Count returns the number of active resonators.
func (b *Bank) Count() int { return b.count }

// SetCount changes the number of active resonators without reallocating.
func (b *Bank) SetCount(n int) error {
	if n < 1 || n > len(b.voices) {
		return fmt.Errorf("count %d not in [1, %d]: %w", n, len(b.voices), ErrCount)
	}
	b.count = n
	return nil
}

// SetParams replaces every bank parameter and re-targets the pitches.
func (b *Bank) SetParams(p Params) {
	p.FreqSpread = dsp.Clamp(p.FreqSpread, 0, 1)
	p.Inharm = dsp.Clamp(p.Inharm, 0, 1)
	p.PanSpread = dsp.Clamp(p.PanSpread, 0, 1)
	b.params = p
	b.retarget()
}

// SetQuantize toggles pulling pitches towards the scale.
func (b *Bank) SetQuantize(on bool) {
	b.params.Quantize = on
	b.retarget()
}

// SetScale sets the quantization scale.
func (b *Bank) SetScale(s musical.Scale) {
	b.params.Scale = s
	b.retarget()
}

// SetRootNote sets the scale root as a MIDI note.
func (b *Bank) SetRootNote(note float64) {
	b.params.RootNote = note
	b.retarget()
}

// SetFreqSpread sets the range used by the next Randomise.
func (b *Bank) SetFreqSpread(spread float64) {
	b.params.FreqSpread = dsp.Clamp(spread, 0, 1)
}

// SetFreqShift offsets every pitch by shift semitones.
func (b *Bank) SetFreqShift(shift float64) {
	b.params.FreqShift = shift
	b.retarget()
}

// SetInharm sets how far quantized pitches lean back to their originals.
func (b *Bank) SetInharm(inharm float64) {
	b.params.Inharm = dsp.Clamp(inharm, 0, 1)
	b.retarget()
}

// SetPanSpread sets the range used by the next RandomisePan.
func (b *Bank) SetPanSpread(spread float64) {
	b.params.PanSpread = dsp.Clamp(spread, 0, 1)
}

// SetMix sets the equal-power dry/wet balance.
func (b *Bank) SetMix(mix float64) {
	b.dry, b.wet = dsp.EqualPowerMix(dsp.Clamp(mix, 0, 1))
}

// Randomise draws new base pitches for every resonator.
func (b *Bank) Randomise(rng *rand.Rand) {
	lo := dsp.Lerp(noteMin, 78, 1-b.params.FreqSpread)
	hi := dsp.Lerp(66, noteMax, b.params.FreqSpread)
	for i := range b.voices {
		b.voices[i].base = lo + rng.Float64()*(hi-lo)
	}
	b.retarget()
}

// RandomisePan spreads the resonators across the stereo field.
func (b *Bank) RandomisePan(rng *rand.Rand) {
	for i := range b.voices {
		pan := (2*rng.Float64() - 1) * b.params.PanSpread
		b.voices[i].gl, b.voices[i].gr = dsp.PanGains(pan)
	}
}

// Pitch returns the current and target pitch of resonator i.
func (b *Bank) Pitch(i int) (current, target float64) {
	v := &b.voices[i]
	return v.pitch.Current(), v.pitch.Target()
}

func (b *Bank) target(base float64) float64 {
	original := base + b.params.FreqShift
	if !b.params.Quantize {
		return original
	}
	q := b.params.Scale.Quantize(original, b.params.RootNote)
	return dsp.Lerp(q, original, b.params.Inharm*inharmScale)
}

func (b *Bank) retarget() {
	for i := range b.voices {
		v := &b.voices[i]
		v.pitch.SetTarget(b.target(v.base))
	}
}

// ProcessStereo runs one stereo sample through the active resonators.
func (b *Bank) ProcessStereo(l, r float64) (float64, float64) {
	var outL, outR float64
	for i := 0; i < b.count; i++ {
		v := &b.voices[i]
		if v.pitch.IsActive() {
			f := musical.NoteToFreq(v.pitch.Next())
			v.l.SetFreq(f)
			v.r.SetFreq(f)
		}
		outL += v.l.Process(l) * v.gl
		outR += v.r.Process(r) * v.gr
	}
	return l*b.dry + outL*b.wet, r*b.dry + outR*b.wet
}

// ProcessBlock processes left and right in place.
func (b *Bank) ProcessBlock(left, right []float64) {
	for i := range left {
		left[i], right[i] = b.ProcessStereo(left[i], right[i])
	}
}

// Reset clears the filter state and snaps every pitch to its target.
func (b *Bank) Reset() {
	for i := range b.voices {
		v := &b.voices[i]
		v.l.Reset()
		v.r.Reset()
		v.pitch.Reset(v.pitch.Target())
		f := musical.NoteToFreq(v.pitch.Current())
		v.l.SetFreq(f)
		v.r.SetFreq(f)
	}
}
