package dsp

import "math"

// Interpolation selects how fractional delay reads are resolved.
type Interpolation int

const (
	InterpNone Interpolation = iota
	InterpLinear
	InterpCosine
	InterpHermite
	InterpCatmullRom
)

const (
	hermiteTension = -0.5
	hermiteBias    = 0.2
)

// Interpolate returns the value between y1 and y2 at position t in [0,1].
// y0 and y3 are the outer neighbours used by the cubic kinds.
func Interpolate(kind Interpolation, y0, y1, y2, y3, t float64) float64 {
	switch kind {
	case InterpLinear:
		return y1 + t*(y2-y1)
	case InterpCosine:
		t2 := (1 - math.Cos(t*math.Pi)) * 0.5
		return y1 + t2*(y2-y1)
	case InterpHermite:
		return hermite(y0, y1, y2, y3, t, hermiteTension, hermiteBias)
	case InterpCatmullRom:
		return catmullRom(y0, y1, y2, y3, t)
	default:
		return y1
	}
}

func hermite(y0, y1, y2, y3, t, tension, bias float64) float64 {
	t2 := t * t
	t3 := t2 * t
	k := (1 - tension) * 0.5
	m0 := (y1-y0)*(1+bias)*k + (y2-y1)*(1-bias)*k
	m1 := (y2-y1)*(1+bias)*k + (y3-y2)*(1-bias)*k
	a0 := 2*t3 - 3*t2 + 1
	a1 := t3 - 2*t2 + t
	a2 := t3 - t2
	a3 := -2*t3 + 3*t2
	return a0*y1 + a1*m0 + a2*m1 + a3*y2
}

func catmullRom(y0, y1, y2, y3, t float64) float64 {
	c1 := 0.5 * (y2 - y0)
	c2 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	c3 := 0.5*(y3-y0) + 1.5*(y1-y2)
	return ((c3*t+c2)*t+c1)*t + y1
}
