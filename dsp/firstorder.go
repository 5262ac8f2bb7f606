package dsp

import (
	"fmt"
	"math"
)

// FirstOrderType selects a first order response.
type FirstOrderType int

const (
	FirstOrderLowpass FirstOrderType = iota
	FirstOrderHighpass
)

// FirstOrder is a bilinear one-pole, one-zero filter with lazily
// recomputed coefficients.
type FirstOrder struct {
	sampleRate float64
	kind       FirstOrderType
	freq       float64

	b0, b1, a1 float64
	x1, y1     float64

	needsRecompute bool
}

// NewFirstOrder creates a first order filter.
func NewFirstOrder(sampleRate float64, kind FirstOrderType, freq float64) (*FirstOrder, error) {
	if err := checkSampleRate(sampleRate); err != nil {
		return nil, err
	}
	if !(freq > 0 && freq <= sampleRate/2) {
		return nil, fmt.Errorf("%w: got %g Hz", ErrInvalidFrequency, freq)
	}
	f := &FirstOrder{sampleRate: sampleRate, kind: kind, freq: freq}
	f.recompute()
	return f, nil
}

// SetFreq sets the corner frequency, clamped to the valid range.
func (f *FirstOrder) SetFreq(freq float64) {
	freq = Clamp(freq, 1e-3, f.sampleRate/2*0.999)
	if freq != f.freq {
		f.freq = freq
		f.needsRecompute = true
	}
}

// SetType switches between lowpass and highpass.
func (f *FirstOrder) SetType(kind FirstOrderType) {
	if kind != f.kind {
		f.kind = kind
		f.needsRecompute = true
	}
}

// Process filters one sample.
func (f *FirstOrder) Process(x float64) float64 {
	if f.needsRecompute {
		f.recompute()
	}
	y := FlushDenormals(f.b0*x + f.b1*f.x1 - f.a1*f.y1)
	f.x1, f.y1 = x, y
	return y
}

// Reset clears the filter state.
func (f *FirstOrder) Reset() { f.x1, f.y1 = 0, 0 }

func (f *FirstOrder) recompute() {
	f.needsRecompute = false
	k := math.Tan(math.Pi * math.Min(f.freq, f.sampleRate/2*0.999) / f.sampleRate)
	f.a1 = (k - 1) / (k + 1)
	if f.kind == FirstOrderHighpass {
		f.b0 = 1 / (1 + k)
		f.b1 = -f.b0
		return
	}
	f.b0 = k / (1 + k)
	f.b1 = f.b0
}

// OnePole is a leaky integrator parameterised by a time constant.
type OnePole struct {
	sampleRate float64
	coeff      float64
	y          float64
}

// NewOnePole creates a one pole smoother with the given time constant.
func NewOnePole(sampleRate, timeMs float64) *OnePole {
	o := &OnePole{sampleRate: sampleRate}
	o.SetTime(timeMs)
	return o
}

// SetTime sets the time constant in milliseconds. Zero passes input through.
func (o *OnePole) SetTime(timeMs float64) {
	if timeMs <= 0 || o.sampleRate <= 0 {
		o.coeff = 0
		return
	}
	o.coeff = math.Exp(-1 / (timeMs * 0.001 * o.sampleRate))
}

// Process advances one sample towards x.
func (o *OnePole) Process(x float64) float64 {
	o.y = FlushDenormals(x + o.coeff*(o.y-x))
	return o.y
}

// Reset sets the state to v.
func (o *OnePole) Reset(v float64) { o.y = v }

// DCBlocker removes the DC offset with a cascade of one-pole highpass
// sections, y = x - x1 + R*y1.
type DCBlocker struct {
	r      float64
	stages []dcStage
}

type dcStage struct{ x1, y1 float64 }

const dcBlockerCornerHz = 10.0

// NewDCBlocker creates a DC blocker with order cascaded sections.
func NewDCBlocker(sampleRate float64, order int) (*DCBlocker, error) {
	if err := checkSampleRate(sampleRate); err != nil {
		return nil, err
	}
	if order < 1 {
		return nil, fmt.Errorf("%w: dc blocker order must be >= 1", ErrInvalidParameter)
	}
	return &DCBlocker{
		r:      1 - 2*math.Pi*dcBlockerCornerHz/sampleRate,
		stages: make([]dcStage, order),
	}, nil
}

// Process filters one sample.
func (d *DCBlocker) Process(x float64) float64 {
	for i := range d.stages {
		s := &d.stages[i]
		y := FlushDenormals(x - s.x1 + d.r*s.y1)
		s.x1, s.y1 = x, y
		x = y
	}
	return x
}

// ProcessBlock filters buf in place.
func (d *DCBlocker) ProcessBlock(buf []float64) {
	for i, x := range buf {
		buf[i] = d.Process(x)
	}
}

// Reset clears every section.
func (d *DCBlocker) Reset() {
	for i := range d.stages {
		d.stages[i] = dcStage{}
	}
}
