// Package musical holds pitch helpers shared by the voice engine and the
// resonator bank.
package musical

import (
	"fmt"
	"math"
	"strings"
)

// TuningHz is the frequency of MIDI note 69 (A4).
const TuningHz = 440.0

// NoteToFreq converts a (fractional) MIDI note to Hz.
func NoteToFreq(note float64) float64 {
	return TuningHz * math.Pow(2, (note-69)/12)
}

// FreqToNote converts Hz to a fractional MIDI note.
func FreqToNote(freq float64) float64 {
	return 69 + 12*math.Log2(freq/TuningHz)
}

// Scale is a set of semitone degrees within an octave.
type Scale int

const (
	Chromatic Scale = iota
	Major
	Minor
	MajorPentatonic
	MinorPentatonic
	Dorian
	WholeTone
)

var scaleDegrees = [...][]int{
	Chromatic:       {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	Major:           {0, 2, 4, 5, 7, 9, 11},
	Minor:           {0, 2, 3, 5, 7, 8, 10},
	MajorPentatonic: {0, 2, 4, 7, 9},
	MinorPentatonic: {0, 3, 5, 7, 10},
	Dorian:          {0, 2, 3, 5, 7, 9, 10},
	WholeTone:       {0, 2, 4, 6, 8, 10},
}

var scaleNames = [...]string{
	Chromatic:       "chromatic",
	Major:           "major",
	Minor:           "minor",
	MajorPentatonic: "major_pentatonic",
	MinorPentatonic: "minor_pentatonic",
	Dorian:          "dorian",
	WholeTone:       "whole_tone",
}

func (s Scale) valid() bool { return s >= Chromatic && s <= WholeTone }

func (s Scale) String() string {
	if !s.valid() {
		return fmt.Sprintf("scale(%d)", int(s))
	}
	return scaleNames[s]
}

// Degrees returns the semitone offsets of the scale from its root.
func (s Scale) Degrees() []int {
	if !s.valid() {
		return scaleDegrees[Chromatic]
	}
	return scaleDegrees[s]
}

// ParseScale maps a scale name to a Scale.
func ParseScale(name string) (Scale, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range scaleNames {
		if n == name {
			return Scale(i), nil
		}
	}
	return Chromatic, fmt.Errorf("unknown scale %q", name)
}

// Quantize moves note to the nearest degree of the scale rooted at root.
// Ties resolve downwards.
func (s Scale) Quantize(note, root float64) float64 {
	rel := note - root
	octave := math.Floor(rel / 12)
	within := rel - octave*12

	best := 0.0
	bestDist := math.Inf(1)
	for _, d := range s.Degrees() {
		if dist := math.Abs(within - float64(d)); dist < bestDist {
			best, bestDist = float64(d), dist
		}
	}
	if 12-within < bestDist {
		best = 12
	}
	return root + octave*12 + best
}
