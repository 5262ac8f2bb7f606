package dsp

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-approx"
)

// SmoothingShape selects the ramp curve used by a Smoother.
type SmoothingShape int

const (
	SmoothLinear SmoothingShape = iota
	SmoothCosine
	// SmoothCurve is an exponential ramp whose bend is set by SetTension.
	SmoothCurve
)

// Smoother ramps from its current value to a target over a fixed time so
// that control changes never step the audio signal.
type Smoother struct {
	shape      SmoothingShape
	sampleRate float64
	durationMs float64
	tension    float64
	curveK     float64
	curveDen   float64

	start   float64
	target  float64
	current float64
	steps   int
	pos     int
}

// NewSmoother creates a smoother resting at initial.
func NewSmoother(shape SmoothingShape, durationMs, sampleRate, initial float64) *Smoother {
	s := &Smoother{}
	s.Prepare(shape, durationMs, sampleRate, initial)
	return s
}

// Prepare (re)initialises the smoother in place.
func (s *Smoother) Prepare(shape SmoothingShape, durationMs, sampleRate, initial float64) {
	s.shape = shape
	s.sampleRate = math.Max(sampleRate, 0)
	s.durationMs = math.Max(durationMs, 0)
	s.Reset(initial)
}

// SetTension sets the bend of SmoothCurve in [-1,1]. Positive values start
// slow and finish fast, negative values the opposite.
func (s *Smoother) SetTension(tension float64) {
	s.tension = Clamp(tension, -1, 1)
	s.curveK = s.tension * 6
	if math.Abs(s.curveK) > 1e-6 {
		s.curveDen = float64(approx.FastExp(float32(s.curveK))) - 1
	}
}

// SetDuration changes the ramp time used by the next SetTarget.
func (s *Smoother) SetDuration(durationMs float64) {
	s.durationMs = math.Max(durationMs, 0)
}

// SetTarget starts a new ramp from the current value.
func (s *Smoother) SetTarget(target float64) {
	if target == s.target {
		return
	}
	s.start = s.current
	s.target = target
	s.pos = 0
	s.steps = int(math.Round(s.durationMs * 0.001 * s.sampleRate))
	if s.steps <= 0 {
		s.current = target
		s.steps = 0
	}
}

// Reset jumps straight to v.
func (s *Smoother) Reset(v float64) {
	s.start = v
	s.target = v
	s.current = v
	s.steps = 0
	s.pos = 0
}

// Next advances one sample and returns the new value.
func (s *Smoother) Next() float64 {
	if s.pos >= s.steps {
		return s.current
	}
	s.pos++
	if s.pos == s.steps {
		s.current = s.target
		return s.current
	}
	t := float64(s.pos) / float64(s.steps)
	s.current = s.start + (s.target-s.start)*s.shapeAt(t)
	return s.current
}

// Skip advances n samples at once and returns the value reached.
func (s *Smoother) Skip(n int) float64 {
	if n <= 0 || s.pos >= s.steps {
		return s.current
	}
	if s.pos+n >= s.steps {
		s.pos = s.steps
		s.current = s.target
		return s.current
	}
	s.pos += n - 1
	return s.Next()
}

// Current returns the latest value without advancing.
func (s *Smoother) Current() float64 { return s.current }

// Target returns the value being ramped towards.
func (s *Smoother) Target() float64 { return s.target }

// IsActive reports whether a ramp is in progress.
func (s *Smoother) IsActive() bool { return s.pos < s.steps }

func (s *Smoother) shapeAt(t float64) float64 {
	switch s.shape {
	case SmoothCosine:
		return 0.5 - 0.5*math.Cos(math.Pi*t)
	case SmoothCurve:
		return curveShape(t, s.curveK, s.curveDen)
	default:
		return t
	}
}

func curveShape(t, k, den float64) float64 {
	if math.Abs(k) <= 1e-6 || den == 0 {
		return t
	}
	return (float64(approx.FastExp(float32(k*t))) - 1) / den
}

// AtomicSmoother pairs a Smoother with a target that can be stored from
// another goroutine. The audio side calls Next or Skip, which pick up the
// latest stored target without blocking.
type AtomicSmoother struct {
	bits   atomic.Uint64
	last   float64
	smooth Smoother
}

// NewAtomicSmoother creates an atomic smoother resting at initial.
func NewAtomicSmoother(shape SmoothingShape, durationMs, sampleRate, initial float64) *AtomicSmoother {
	a := &AtomicSmoother{last: initial}
	a.smooth.Prepare(shape, durationMs, sampleRate, initial)
	a.bits.Store(math.Float64bits(initial))
	return a
}

// Store sets a new target. Safe for concurrent use.
func (a *AtomicSmoother) Store(v float64) {
	a.bits.Store(math.Float64bits(v))
}

// Load returns the most recently stored target. Safe for concurrent use.
func (a *AtomicSmoother) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}

func (a *AtomicSmoother) poll() {
	v := a.Load()
	if v != a.last {
		a.last = v
		a.smooth.SetTarget(v)
	}
}

// Next advances one sample. Audio goroutine only.
func (a *AtomicSmoother) Next() float64 {
	a.poll()
	return a.smooth.Next()
}

// Skip advances n samples. Audio goroutine only.
func (a *AtomicSmoother) Skip(n int) float64 {
	a.poll()
	return a.smooth.Skip(n)
}

// Current returns the smoothed value without advancing. Audio goroutine only.
func (a *AtomicSmoother) Current() float64 {
	return a.smooth.Current()
}

// IsActive picks up a stored target and reports whether a ramp is running.
// Audio goroutine only.
func (a *AtomicSmoother) IsActive() bool {
	a.poll()
	return a.smooth.IsActive()
}
