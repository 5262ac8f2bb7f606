package dsp

import (
	"fmt"
	"math"
)

// CombMode selects where the delayed signal is taken from.
type CombMode int

const (
	// CombFeedforward adds the delayed input: y = x + g*x[n-D].
	CombFeedforward CombMode = iota
	// CombFeedback adds the delayed output: y = x + g*F(y[n-D]).
	CombFeedback
)

// SubFilterKind tags the variant held by a SubFilter.
type SubFilterKind int

const (
	SubFilterNone SubFilterKind = iota
	SubFilterBiquad
	SubFilterFirstOrder
)

// SubFilter is a closed set of filters that can shape a comb's delayed
// signal. The variant is stored by value so the chain needs no boxing.
type SubFilter struct {
	Kind       SubFilterKind
	Biquad     Biquad
	FirstOrder FirstOrder
}

// BiquadSubFilter wraps a copy of b.
func BiquadSubFilter(b *Biquad) SubFilter {
	return SubFilter{Kind: SubFilterBiquad, Biquad: *b}
}

// FirstOrderSubFilter wraps a copy of f.
func FirstOrderSubFilter(f *FirstOrder) SubFilter {
	return SubFilter{Kind: SubFilterFirstOrder, FirstOrder: *f}
}

// Process runs the held filter.
func (s *SubFilter) Process(x float64) float64 {
	switch s.Kind {
	case SubFilterBiquad:
		return s.Biquad.Process(x)
	case SubFilterFirstOrder:
		return s.FirstOrder.Process(x)
	default:
		return x
	}
}

// Reset clears the held filter's state.
func (s *SubFilter) Reset() {
	switch s.Kind {
	case SubFilterBiquad:
		s.Biquad.Reset()
	case SubFilterFirstOrder:
		s.FirstOrder.Reset()
	}
}

// MaxCombSubFilters is the number of chained filters a Comb can hold.
const MaxCombSubFilters = 4

// Comb is a tuned comb filter with a fractional delay read.
type Comb struct {
	sampleRate float64
	mode       CombMode
	minFreq    float64

	freq     float64
	delay    float64
	gainDB   float64
	positive bool
	g        float64

	line    *DelayLine
	filters [MaxCombSubFilters]SubFilter
	nFilter int
}

// NewComb creates a comb whose lowest tunable frequency is minFreq.
func NewComb(sampleRate float64, mode CombMode, minFreq float64) (*Comb, error) {
	if err := checkSampleRate(sampleRate); err != nil {
		return nil, err
	}
	if !(minFreq > 0 && minFreq <= sampleRate/2) {
		return nil, fmt.Errorf("%w: comb min frequency %g", ErrInvalidFrequency, minFreq)
	}
	c := &Comb{
		sampleRate: sampleRate,
		mode:       mode,
		minFreq:    minFreq,
		gainDB:     MinusInfinityDB,
		positive:   true,
		line:       NewDelayLine(int(math.Ceil(sampleRate/minFreq)) + 4),
	}
	c.SetFreq(440)
	return c, nil
}

// SetFreq tunes the comb; the delay is one period of freq.
func (c *Comb) SetFreq(freq float64) {
	c.freq = Clamp(freq, c.minFreq, c.sampleRate/2)
	c.delay = c.sampleRate / c.freq
}

// SetGainDB sets the comb level in dB, which must be <= 0.
func (c *Comb) SetGainDB(gainDB float64) error {
	if gainDB > 0 || math.IsNaN(gainDB) {
		return fmt.Errorf("%w: comb gain must be <= 0 dB", ErrInvalidParameter)
	}
	c.gainDB = gainDB
	c.updateGain()
	return nil
}

// SetPositivePolarity selects the sign of the delayed path.
func (c *Comb) SetPositivePolarity(positive bool) {
	c.positive = positive
	c.updateGain()
}

// SetInterpolation selects the fractional read method.
func (c *Comb) SetInterpolation(kind Interpolation) {
	c.line.SetInterpolation(kind)
}

// AddSubFilter appends a filter to the delayed path.
func (c *Comb) AddSubFilter(f SubFilter) error {
	if c.nFilter == MaxCombSubFilters {
		return fmt.Errorf("%w: comb holds at most %d sub filters", ErrInvalidParameter, MaxCombSubFilters)
	}
	c.filters[c.nFilter] = f
	c.nFilter++
	return nil
}

// ClearSubFilters removes every chained filter.
func (c *Comb) ClearSubFilters() {
	for i := range c.filters {
		c.filters[i] = SubFilter{}
	}
	c.nFilter = 0
}

// Process filters one sample.
func (c *Comb) Process(x float64) float64 {
	d := c.line.ReadFractional(c.delay)
	for i := 0; i < c.nFilter; i++ {
		d = c.filters[i].Process(d)
	}
	y := x + c.g*d
	if c.mode == CombFeedback {
		c.line.Write(FlushDenormals(y))
	} else {
		c.line.Write(x)
	}
	return y
}

// Reset clears the delay and every sub filter.
func (c *Comb) Reset() {
	c.line.Reset()
	for i := 0; i < c.nFilter; i++ {
		c.filters[i].Reset()
	}
}

func (c *Comb) updateGain() {
	c.g = DBToGain(c.gainDB)
	if !c.positive {
		c.g = -c.g
	}
}
