package dsp

import (
	"fmt"
	"math"
)

// Distortion selects the waveshaper transfer function.
type Distortion int

const (
	DistortionNone Distortion = iota
	DistortionSoft
	DistortionHard
	DistortionWrap
	DistortionCrush
)

func (d Distortion) String() string {
	switch d {
	case DistortionNone:
		return "none"
	case DistortionSoft:
		return "soft"
	case DistortionHard:
		return "hard"
	case DistortionWrap:
		return "wrap"
	case DistortionCrush:
		return "crush"
	default:
		return fmt.Sprintf("distortion(%d)", int(d))
	}
}

// ParseDistortion maps a name to a Distortion.
func ParseDistortion(name string) (Distortion, error) {
	for d := DistortionNone; d <= DistortionCrush; d++ {
		if d.String() == name {
			return d, nil
		}
	}
	return DistortionNone, fmt.Errorf("%w: unknown distortion %q", ErrInvalidParameter, name)
}

// Waveshaper applies a memoryless transfer function driven by an amount
// in [0,1].
type Waveshaper struct {
	kind   Distortion
	amount float64
}

// SetKind selects the transfer function.
func (w *Waveshaper) SetKind(kind Distortion) { w.kind = kind }

// Kind returns the transfer function in use.
func (w *Waveshaper) Kind() Distortion { return w.kind }

// SetAmount sets the drive, clamped to [0,1].
func (w *Waveshaper) SetAmount(amount float64) { w.amount = Clamp(amount, 0, 1) }

// Process shapes one sample. The output is not clipped.
func (w *Waveshaper) Process(x float64) float64 {
	cv := w.amount
	switch w.kind {
	case DistortionSoft:
		d := 1 + 9*cv
		return Lerp(x, math.Tanh(d*x)/math.Tanh(d), cv)
	case DistortionHard:
		k := math.Max(cv*15, 0.01)
		return math.Tanh(k*x) / math.Tanh(k) * mapRange(k, 0.15, 15, 1, 0.15)
	case DistortionWrap:
		t := 1 - cv
		x = Clamp(x, -1, 1)
		if x >= t {
			return 2*t - x
		}
		if x <= -t {
			return -2*t - x
		}
		return x
	case DistortionCrush:
		steps := Lerp(80, 2, cv)
		return math.Floor(steps*x) / steps
	default:
		return x
	}
}

// ProcessBlock shapes buf in place.
func (w *Waveshaper) ProcessBlock(buf []float64) {
	if w.kind == DistortionNone {
		return
	}
	for i, x := range buf {
		buf[i] = w.Process(x)
	}
}

func mapRange(v, inMin, inMax, outMin, outMax float64) float64 {
	return outMin + (v-inMin)/(inMax-inMin)*(outMax-outMin)
}
