package dsp

import (
	"fmt"
	"math"
)

// Stage is the state of an ADSR envelope.
type Stage int

const (
	StageIdle Stage = iota
	StageAttack
	StageDecay
	StageSustain
	StageRelease
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageAttack:
		return "attack"
	case StageDecay:
		return "decay"
	case StageSustain:
		return "sustain"
	case StageRelease:
		return "release"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ADSRParams holds the envelope times in milliseconds, the sustain level in
// [0,1] and the curve bend in [-1,1].
type ADSRParams struct {
	AttackMs  float64
	DecayMs   float64
	Sustain   float64
	ReleaseMs float64
	Curve     float64
}

// Validate checks the parameter ranges.
func (p ADSRParams) Validate() error {
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"attack_ms", p.AttackMs},
		{"decay_ms", p.DecayMs},
		{"release_ms", p.ReleaseMs},
	} {
		if !(v.val >= 0) || math.IsInf(v.val, 0) {
			return fmt.Errorf("%w: %s must be >= 0", ErrInvalidParameter, v.name)
		}
	}
	if !(p.Sustain >= 0 && p.Sustain <= 1) {
		return fmt.Errorf("%w: sustain must be in [0,1]", ErrInvalidParameter)
	}
	if !(p.Curve >= -1 && p.Curve <= 1) {
		return fmt.Errorf("%w: curve must be in [-1,1]", ErrInvalidParameter)
	}
	return nil
}

// ADSR is a four stage level generator. The trigger is level sensitive: a
// change is picked up by the following call to Next.
type ADSR struct {
	sampleRate float64
	params     ADSRParams
	curveK     float64
	curveDen   float64

	trigger bool
	gate    bool
	stage   Stage
	level   float64

	start  float64
	target float64
	steps  int
	pos    int
}

// NewADSR creates an idle envelope.
func NewADSR(sampleRate float64, p ADSRParams) (*ADSR, error) {
	if err := checkSampleRate(sampleRate); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e := &ADSR{sampleRate: sampleRate}
	e.params = p
	e.setCurve(p.Curve)
	return e, nil
}

// SetParameters updates the stage times and sustain level. Running ramps keep
// their length; the next stage change uses the new values.
func (e *ADSR) SetParameters(attackMs, decayMs, sustain, releaseMs float64) error {
	p := e.params
	p.AttackMs, p.DecayMs, p.Sustain, p.ReleaseMs = attackMs, decayMs, sustain, releaseMs
	if err := p.Validate(); err != nil {
		return err
	}
	e.params = p
	return nil
}

// SetCurve sets the stage bend in [-1,1]; 0 is linear.
func (e *ADSR) SetCurve(curve float64) error {
	if !(curve >= -1 && curve <= 1) {
		return fmt.Errorf("%w: curve must be in [-1,1]", ErrInvalidParameter)
	}
	e.params.Curve = curve
	e.setCurve(curve)
	return nil
}

func (e *ADSR) setCurve(curve float64) {
	var s Smoother
	s.SetTension(curve)
	e.curveK, e.curveDen = s.curveK, s.curveDen
}

// Params returns the current parameters.
func (e *ADSR) Params() ADSRParams { return e.params }

// SetTrigger opens (true) or closes (false) the gate.
func (e *ADSR) SetTrigger(on bool) { e.trigger = on }

// Stage returns the current stage.
func (e *ADSR) Stage() Stage { return e.stage }

// Level returns the latest output level.
func (e *ADSR) Level() float64 { return e.level }

// IsIdle reports whether the envelope has finished.
func (e *ADSR) IsIdle() bool { return e.stage == StageIdle }

// Reset forces the envelope to idle with zero level.
func (e *ADSR) Reset() {
	e.trigger, e.gate = false, false
	e.stage = StageIdle
	e.level = 0
	e.steps, e.pos = 0, 0
}

// Next advances the envelope by one sample and returns its level.
func (e *ADSR) Next() float64 {
	if e.trigger != e.gate {
		e.gate = e.trigger
		if e.gate {
			e.enter(StageAttack)
		} else if e.stage != StageIdle {
			e.enter(StageRelease)
		}
	}

	switch e.stage {
	case StageIdle:
		e.level = 0
		return 0
	case StageSustain:
		e.level = e.params.Sustain
		return e.level
	}

	if e.pos >= e.steps {
		e.level = e.target
		e.advance()
		return e.level
	}
	e.pos++
	t := float64(e.pos) / float64(e.steps)
	e.level = Clamp(e.start+(e.target-e.start)*curveShape(t, e.curveK, e.curveDen), 0, 1)
	if e.pos >= e.steps {
		e.level = e.target
		e.advance()
	}
	return e.level
}

func (e *ADSR) advance() {
	switch e.stage {
	case StageAttack:
		e.enter(StageDecay)
	case StageDecay:
		e.enter(StageSustain)
	case StageRelease:
		e.enter(StageIdle)
	}
}

func (e *ADSR) enter(stage Stage) {
	e.stage = stage
	e.start = e.level
	e.pos = 0
	var ms float64
	switch stage {
	case StageAttack:
		e.target, ms = 1, e.params.AttackMs
	case StageDecay:
		e.target, ms = e.params.Sustain, e.params.DecayMs
	case StageRelease:
		e.target, ms = 0, e.params.ReleaseMs
	case StageSustain:
		e.target = e.params.Sustain
	case StageIdle:
		e.target = 0
		e.level = 0
	}
	e.steps = int(math.Round(ms * 0.001 * e.sampleRate))
}
