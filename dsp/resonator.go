package dsp

import "math"

// DefaultResonance is the pole radius used for very narrow resonators.
const DefaultResonance = 0.9999

// TwoPoleResonator is a constant peak gain bandpass with zeros at DC and
// Nyquist:
//
//	y[n] = g*(x[n] - x[n-2]) + 2*r*cos(w)*y[n-1] - r*r*y[n-2]
//
// with g = (1 - r*r)/2, which keeps the gain at the centre close to one.
type TwoPoleResonator struct {
	sampleRate float64
	freq       float64
	r          float64

	g, c1, c2 float64
	x1, x2    float64
	y1, y2    float64
}

// NewTwoPoleResonator creates a resonator at freq Hz.
func NewTwoPoleResonator(sampleRate, freq float64) *TwoPoleResonator {
	t := &TwoPoleResonator{sampleRate: sampleRate, r: DefaultResonance}
	t.SetFreq(freq)
	return t
}

// SetResonance sets the pole radius in (0,1).
func (t *TwoPoleResonator) SetResonance(r float64) {
	t.r = Clamp(r, 0, 0.999999)
	t.update()
}

// SetFreq retunes the resonator, clamped below Nyquist.
func (t *TwoPoleResonator) SetFreq(freq float64) {
	t.freq = Clamp(freq, 1, t.sampleRate*0.499)
	t.update()
}

// Freq returns the centre frequency.
func (t *TwoPoleResonator) Freq() float64 { return t.freq }

func (t *TwoPoleResonator) update() {
	w := 2 * math.Pi * t.freq / t.sampleRate
	t.g = (1 - t.r*t.r) / 2
	t.c1 = 2 * t.r * math.Cos(w)
	t.c2 = -t.r * t.r
}

// Process filters one sample.
func (t *TwoPoleResonator) Process(x float64) float64 {
	y := t.g*(x-t.x2) + t.c1*t.y1 + t.c2*t.y2
	y = FlushDenormals(y)
	t.x2, t.x1 = t.x1, x
	t.y2, t.y1 = t.y1, y
	return y
}

// Reset clears the state.
func (t *TwoPoleResonator) Reset() {
	t.x1, t.x2, t.y1, t.y2 = 0, 0, 0, 0
}
