package dsp

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
)

// BiquadType selects the RBJ design used by a Biquad.
type BiquadType int

const (
	BiquadPeak BiquadType = iota
	BiquadLowpass
	BiquadHighpass
	BiquadLowShelf
	BiquadHighShelf
	BiquadBandpass
	BiquadNotch
	BiquadAllpass
)

func (t BiquadType) String() string {
	switch t {
	case BiquadPeak:
		return "peak"
	case BiquadLowpass:
		return "lowpass"
	case BiquadHighpass:
		return "highpass"
	case BiquadLowShelf:
		return "lowshelf"
	case BiquadHighShelf:
		return "highshelf"
	case BiquadBandpass:
		return "bandpass"
	case BiquadNotch:
		return "notch"
	case BiquadAllpass:
		return "allpass"
	default:
		return fmt.Sprintf("biquad(%d)", int(t))
	}
}

// ButterworthQ is the Q of a maximally flat second order section.
const ButterworthQ = math.Sqrt2 / 2

// BiquadParams describes a biquad design.
type BiquadParams struct {
	Type   BiquadType
	Freq   float64
	Q      float64
	GainDB float64
}

// Validate checks the design against the sample rate.
func (p BiquadParams) Validate(sampleRate float64) error {
	if err := checkSampleRate(sampleRate); err != nil {
		return err
	}
	if !(p.Freq > 0 && p.Freq <= sampleRate/2) {
		return fmt.Errorf("%w: got %g Hz at %g Hz", ErrInvalidFrequency, p.Freq, sampleRate)
	}
	if !(p.Q > 0) || math.IsInf(p.Q, 0) {
		return fmt.Errorf("%w: got %g", ErrInvalidQ, p.Q)
	}
	if p.Type < BiquadPeak || p.Type > BiquadAllpass {
		return fmt.Errorf("%w: unknown biquad type %d", ErrInvalidParameter, int(p.Type))
	}
	return nil
}

// Biquad implements a second-order IIR filter (no heap allocations in Process).
// Setters only flag the coefficients; they are recomputed on the next Process.
type Biquad struct {
	sampleRate float64
	params     BiquadParams

	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 float64
	y1, y2 float64

	needsRecompute bool
	suspended      bool
}

// NewBiquad creates a validated biquad filter.
func NewBiquad(sampleRate float64, p BiquadParams) (*Biquad, error) {
	if err := p.Validate(sampleRate); err != nil {
		return nil, err
	}
	b := &Biquad{sampleRate: sampleRate, params: p}
	b.recompute()
	return b, nil
}

// SetParams replaces the whole design after validating it.
func (b *Biquad) SetParams(p BiquadParams) error {
	if err := p.Validate(b.sampleRate); err != nil {
		return err
	}
	b.params = p
	b.flag()
	return nil
}

// SetFreq sets the cutoff or centre frequency, clamped to (0, sampleRate/2].
func (b *Biquad) SetFreq(freq float64) {
	freq = Clamp(freq, 1e-3, b.sampleRate/2)
	if freq == b.params.Freq && !b.suspended {
		return
	}
	b.params.Freq = freq
	b.flag()
}

// SetQ sets the quality factor, floored at a small positive value.
func (b *Biquad) SetQ(q float64) {
	q = math.Max(q, 1e-3)
	if q == b.params.Q && !b.suspended {
		return
	}
	b.params.Q = q
	b.flag()
}

// SetGain sets the gain in dB used by peak and shelf types.
func (b *Biquad) SetGain(gainDB float64) {
	if gainDB == b.params.GainDB && !b.suspended {
		return
	}
	b.params.GainDB = gainDB
	b.flag()
}

// SetType switches the filter design.
func (b *Biquad) SetType(t BiquadType) {
	if t == b.params.Type && !b.suspended {
		return
	}
	b.params.Type = t
	b.flag()
}

// Params returns the current design.
func (b *Biquad) Params() BiquadParams { return b.params }

// Suspend switches to identity coefficients while keeping the design.
func (b *Biquad) Suspend() {
	b.suspended = true
	b.b0, b.b1, b.b2, b.a1, b.a2 = 1, 0, 0, 0, 0
	b.needsRecompute = false
}

// Suspended reports whether the filter is passing audio unchanged.
func (b *Biquad) Suspended() bool { return b.suspended }

// ForceRecompute resumes filtering with freshly computed coefficients.
func (b *Biquad) ForceRecompute() {
	b.flag()
}

func (b *Biquad) flag() {
	b.suspended = false
	b.needsRecompute = true
}

// Process filters one sample.
func (b *Biquad) Process(x float64) float64 {
	if b.needsRecompute {
		b.recompute()
	}
	y := b.b0*x + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	y = FlushDenormals(y)
	b.x2, b.x1 = b.x1, x
	b.y2, b.y1 = b.y1, y
	return y
}

// ProcessBlock filters buf in place.
func (b *Biquad) ProcessBlock(buf []float64) {
	for i, x := range buf {
		buf[i] = b.Process(x)
	}
}

// Reset clears the filter state
func (b *Biquad) Reset() {
	b.x1, b.x2 = 0, 0
	b.y1, b.y2 = 0, 0
}

// Coefficients exports the normalised coefficients in algo-dsp form.
func (b *Biquad) Coefficients() biquad.Coefficients {
	if b.needsRecompute {
		b.recompute()
	}
	return biquad.Coefficients{B0: b.b0, B1: b.b1, B2: b.b2, A1: b.a1, A2: b.a2}
}

func (b *Biquad) recompute() {
	b.needsRecompute = false
	if b.suspended {
		return
	}
	p := b.params
	w0 := 2 * math.Pi * p.Freq / b.sampleRate
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * p.Q)
	A := math.Pow(10, p.GainDB/40)

	var b0, b1, b2, a0, a1, a2 float64
	switch p.Type {
	case BiquadLowpass:
		b0 = (1 - cosw) / 2
		b1 = 1 - cosw
		b2 = b0
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case BiquadHighpass:
		b0 = (1 + cosw) / 2
		b1 = -(1 + cosw)
		b2 = b0
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case BiquadBandpass:
		b0, b1, b2 = alpha, 0, -alpha
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case BiquadNotch:
		b0, b1, b2 = 1, -2*cosw, 1
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case BiquadAllpass:
		b0, b1, b2 = 1-alpha, -2*cosw, 1+alpha
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case BiquadLowShelf:
		sq := 2 * math.Sqrt(A) * alpha
		b0 = A * ((A + 1) - (A-1)*cosw + sq)
		b1 = 2 * A * ((A - 1) - (A+1)*cosw)
		b2 = A * ((A + 1) - (A-1)*cosw - sq)
		a0 = (A + 1) + (A-1)*cosw + sq
		a1 = -2 * ((A - 1) + (A+1)*cosw)
		a2 = (A + 1) + (A-1)*cosw - sq
	case BiquadHighShelf:
		sq := 2 * math.Sqrt(A) * alpha
		b0 = A * ((A + 1) + (A-1)*cosw + sq)
		b1 = -2 * A * ((A - 1) + (A+1)*cosw)
		b2 = A * ((A + 1) + (A-1)*cosw - sq)
		a0 = (A + 1) - (A-1)*cosw + sq
		a1 = 2 * ((A - 1) - (A+1)*cosw)
		a2 = (A + 1) - (A-1)*cosw - sq
	default: // peak
		b0, b1, b2 = 1+alpha*A, -2*cosw, 1-alpha*A
		a0, a1, a2 = 1+alpha/A, -2*cosw, 1-alpha/A
	}

	b.b0, b.b1, b.b2 = b0/a0, b1/a0, b2/a0
	b.a1, b.a2 = a1/a0, a2/a0
}
