package synth

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-synth/dsp"
	"github.com/cwbudde/algo-synth/musical"
)

// AtomicFloat is a float64 cell safe for concurrent Load and Store.
type AtomicFloat struct{ bits atomic.Uint64 }

// NewAtomicFloat returns a cell holding v.
func NewAtomicFloat(v float64) *AtomicFloat {
	a := &AtomicFloat{}
	a.Store(v)
	return a
}

func (a *AtomicFloat) Load() float64   { return math.Float64frombits(a.bits.Load()) }
func (a *AtomicFloat) Store(v float64) { a.bits.Store(math.Float64bits(v)) }

const paramSmoothMs = 50.0

// Params is the control surface shared between the control goroutine and
// the audio goroutine. Writers store without waiting; the engine reads a
// consistent scalar per field and smooths continuous values.
type Params struct {
	MasterGain *dsp.AtomicSmoother // linear
	VoiceGain  *dsp.AtomicSmoother // linear

	Generator atomic.Int32 // GeneratorKind

	AttackMs      *AtomicFloat
	DecayMs       *AtomicFloat
	Sustain       *AtomicFloat
	ReleaseMs     *AtomicFloat
	EnvelopeCurve *AtomicFloat

	Oversampling atomic.Int32 // power of two factor

	LowCutoff  *dsp.AtomicSmoother
	LowQ       *dsp.AtomicSmoother
	LowGainDB  *dsp.AtomicSmoother
	LowShelf   atomic.Bool
	HighCutoff *dsp.AtomicSmoother
	HighQ      *dsp.AtomicSmoother
	HighGainDB *dsp.AtomicSmoother
	HighShelf  atomic.Bool

	Distortion atomic.Int32 // dsp.Distortion
	DistAmount *dsp.AtomicSmoother

	ResoScale    atomic.Int32 // musical.Scale
	ResoRoot     atomic.Int32 // MIDI note
	ResoQuantize atomic.Bool
	ResoCount    atomic.Int32
	ResoSpread   *dsp.AtomicSmoother
	ResoShift    *dsp.AtomicSmoother
	ResoInharm   *dsp.AtomicSmoother
	ResoPan      *dsp.AtomicSmoother
	ResoMix      *dsp.AtomicSmoother

	MaskEnabled    atomic.Bool
	MaskPostFX     atomic.Bool
	MaskResolution atomic.Int32 // FFT size
	MaskMix        *dsp.AtomicSmoother

	DelayMs       *AtomicFloat
	DelayFeedback *dsp.AtomicSmoother
	DelayMix      *dsp.AtomicSmoother
	PingPong      atomic.Bool

	CompThresholdDB *AtomicFloat
	CompRatio       *AtomicFloat
	CompAttackMs    *AtomicFloat
	CompReleaseMs   *AtomicFloat
}

// NewParams creates the control surface with the engine defaults for
// sampleRate.
func NewParams(sampleRate float64, cfg Config) *Params {
	smooth := func(v float64) *dsp.AtomicSmoother {
		return dsp.NewAtomicSmoother(dsp.SmoothLinear, paramSmoothMs, sampleRate, v)
	}
	comp := dsp.DefaultCompressorParams()
	p := &Params{
		MasterGain: smooth(1),
		VoiceGain:  smooth(1),

		AttackMs:      NewAtomicFloat(cfg.Envelope.AttackMs),
		DecayMs:       NewAtomicFloat(cfg.Envelope.DecayMs),
		Sustain:       NewAtomicFloat(cfg.Envelope.Sustain),
		ReleaseMs:     NewAtomicFloat(cfg.Envelope.ReleaseMs),
		EnvelopeCurve: NewAtomicFloat(cfg.Envelope.Curve),

		LowCutoff:  smooth(20),
		LowQ:       smooth(dsp.ButterworthQ),
		LowGainDB:  smooth(0),
		HighCutoff: smooth(18000),
		HighQ:      smooth(dsp.ButterworthQ),
		HighGainDB: smooth(0),

		DistAmount: smooth(0),

		ResoSpread: smooth(0),
		ResoShift:  smooth(0),
		ResoInharm: smooth(0),
		ResoPan:    smooth(0),
		ResoMix:    smooth(0),

		MaskMix: smooth(1),

		DelayMs:       NewAtomicFloat(dsp.DefaultDelayMs),
		DelayFeedback: smooth(0.5),
		DelayMix:      smooth(0),

		CompThresholdDB: NewAtomicFloat(comp.ThresholdDB),
		CompRatio:       NewAtomicFloat(1),
		CompAttackMs:    NewAtomicFloat(comp.AttackMs),
		CompReleaseMs:   NewAtomicFloat(comp.ReleaseMs),
	}
	p.Generator.Store(int32(cfg.Generator))
	p.Oversampling.Store(int32(cfg.Oversampling))
	p.Distortion.Store(int32(dsp.DistortionNone))
	p.ResoScale.Store(int32(musical.Chromatic))
	p.ResoRoot.Store(69)
	p.ResoCount.Store(int32(cfg.ResonatorCount))
	p.MaskResolution.Store(int32(cfg.MaskBlockSize))
	return p
}

// SetMasterGainDB sets the output level in decibels.
func (p *Params) SetMasterGainDB(db float64) {
	p.MasterGain.Store(dsp.DBToGain(db))
}

// SetGenerator selects the oscillator for new voices.
func (p *Params) SetGenerator(k GeneratorKind) { p.Generator.Store(int32(k)) }

// SetDistortion selects the waveshaper curve and its drive in [0,1].
func (p *Params) SetDistortion(kind dsp.Distortion, amount float64) {
	p.Distortion.Store(int32(kind))
	p.DistAmount.Store(dsp.Clamp(amount, 0, 1))
}

// SetEnvelope stores new envelope settings for the next voices.
func (p *Params) SetEnvelope(e dsp.ADSRParams) {
	p.AttackMs.Store(e.AttackMs)
	p.DecayMs.Store(e.DecayMs)
	p.Sustain.Store(e.Sustain)
	p.ReleaseMs.Store(e.ReleaseMs)
	p.EnvelopeCurve.Store(e.Curve)
}

// Envelope returns the stored envelope settings, clamped to valid ranges.
func (p *Params) Envelope() dsp.ADSRParams {
	clampTime := func(v float64) float64 {
		if math.IsNaN(v) || v < 0 {
			return 0
		}
		return math.Min(v, 60000)
	}
	return dsp.ADSRParams{
		AttackMs:  clampTime(p.AttackMs.Load()),
		DecayMs:   clampTime(p.DecayMs.Load()),
		Sustain:   dsp.Clamp(p.Sustain.Load(), 0, 1),
		ReleaseMs: clampTime(p.ReleaseMs.Load()),
		Curve:     dsp.Clamp(p.EnvelopeCurve.Load(), -1, 1),
	}
}

// SetResonatorScale sets the quantization scale and root note.
func (p *Params) SetResonatorScale(s musical.Scale, root int) {
	p.ResoScale.Store(int32(s))
	p.ResoRoot.Store(int32(root))
}

// SetCompressor stores new compressor settings.
func (p *Params) SetCompressor(c dsp.CompressorParams) {
	p.CompThresholdDB.Store(c.ThresholdDB)
	p.CompRatio.Store(c.Ratio)
	p.CompAttackMs.Store(c.AttackMs)
	p.CompReleaseMs.Store(c.ReleaseMs)
}

// Compressor returns the stored compressor settings.
func (p *Params) Compressor() dsp.CompressorParams {
	c := dsp.DefaultCompressorParams()
	c.ThresholdDB = p.CompThresholdDB.Load()
	c.Ratio = p.CompRatio.Load()
	c.AttackMs = p.CompAttackMs.Load()
	c.ReleaseMs = p.CompReleaseMs.Load()
	return c
}
