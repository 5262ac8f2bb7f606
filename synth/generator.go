package synth

import (
	"fmt"
	"math"
	"strings"
)

// GeneratorKind selects the oscillator a voice plays.
type GeneratorKind int

const (
	GeneratorNoise GeneratorKind = iota
	GeneratorSaw
	GeneratorSine
)

func (k GeneratorKind) String() string {
	switch k {
	case GeneratorNoise:
		return "noise"
	case GeneratorSaw:
		return "saw"
	case GeneratorSine:
		return "sine"
	default:
		return fmt.Sprintf("generator(%d)", int(k))
	}
}

// ParseGenerator maps a generator name to its kind.
func ParseGenerator(name string) (GeneratorKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "noise", "":
		return GeneratorNoise, nil
	case "saw":
		return GeneratorSaw, nil
	case "sine":
		return GeneratorSine, nil
	default:
		return GeneratorNoise, fmt.Errorf("unknown generator %q", name)
	}
}

// Generator is the oscillator state owned by a voice. It is a plain value
// so voices can be stored without boxing.
type Generator struct {
	kind  GeneratorKind
	freq  float64
	phase float64
	inc   float64
	state uint64
}

// Reset configures the generator for kind at freq Hz. seed decorrelates
// noise between voices.
func (g *Generator) Reset(kind GeneratorKind, freq, sampleRate float64, seed uint64) {
	g.kind = kind
	g.phase = 0
	g.state = seed*0x9E3779B97F4A7C15 | 1
	g.SetFreq(freq, sampleRate)
}

// SetFreq retunes the oscillator.
func (g *Generator) SetFreq(freq, sampleRate float64) {
	g.freq = freq
	g.inc = freq / sampleRate
}

// Kind returns the generator kind.
func (g *Generator) Kind() GeneratorKind { return g.kind }

// Freq returns the oscillator frequency in Hz.
func (g *Generator) Freq() float64 { return g.freq }

// Next returns the next sample in [-1,1].
func (g *Generator) Next() float64 {
	switch g.kind {
	case GeneratorSaw:
		y := 2*g.phase - 1 - polyBLEP(g.phase, g.inc)
		g.advance()
		return y
	case GeneratorSine:
		y := math.Sin(2 * math.Pi * g.phase)
		g.advance()
		return y
	default:
		// xorshift64*
		g.state ^= g.state >> 12
		g.state ^= g.state << 25
		g.state ^= g.state >> 27
		r := g.state * 2685821657736338717
		return float64(r>>11)/(1<<52) - 1
	}
}

func (g *Generator) advance() {
	g.phase += g.inc
	if g.phase >= 1 {
		g.phase -= math.Floor(g.phase)
	}
}

// polyBLEP smooths the saw discontinuity at phase wrap.
func polyBLEP(t, dt float64) float64 {
	switch {
	case dt <= 0:
		return 0
	case t < dt:
		t /= dt
		return t + t - t*t - 1
	case t > 1-dt:
		t = (t - 1) / dt
		return t*t + t + t + 1
	default:
		return 0
	}
}
