package dsp

import (
	"errors"
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

const (
	// MinusInfinityDB is the level treated as silence.
	MinusInfinityDB = -100.0
	// MinusInfinityGain is MinusInfinityDB as a linear gain.
	MinusInfinityGain = 1e-5
)

var (
	ErrInvalidSampleRate = errors.New("sample rate must be > 0")
	ErrInvalidFrequency  = errors.New("frequency must be in (0, sampleRate/2]")
	ErrInvalidQ          = errors.New("q must be > 0")
	ErrInvalidParameter  = errors.New("invalid parameter")
)

// FlushDenormals converts denormal numbers to zero to avoid performance issues
func FlushDenormals(x float64) float64 {
	return dspcore.FlushDenormals(x)
}

// Lerp linearly interpolates between a and b.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// DBToGain converts decibels to a linear gain. Levels at or below
// MinusInfinityDB map to zero.
func DBToGain(db float64) float64 {
	if db <= MinusInfinityDB {
		return 0
	}
	return math.Pow(10, db/20)
}

// GainToDB converts a linear gain to decibels, floored at MinusInfinityDB.
func GainToDB(gain float64) float64 {
	if gain <= MinusInfinityGain {
		return MinusInfinityDB
	}
	return 20 * math.Log10(gain)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EqualPowerMix returns the dry and wet gains for a mix amount in [0,1].
func EqualPowerMix(mix float64) (dry, wet float64) {
	mix = Clamp(mix, 0, 1)
	return math.Cos(mix * math.Pi / 2), math.Sin(mix * math.Pi / 2)
}

// PanGains returns the equal-power left/right gains for pan in [-1,1].
func PanGains(pan float64) (l, r float64) {
	p := (Clamp(pan, -1, 1) + 1) * math.Pi / 4
	return math.Cos(p), math.Sin(p)
}

func checkSampleRate(sampleRate float64) error {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return ErrInvalidSampleRate
	}
	return nil
}
