package synth

import (
	"fmt"
	"math"
	"math/bits"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/cwbudde/algo-synth/dsp"
	"github.com/cwbudde/algo-synth/internal/triple"
	"github.com/cwbudde/algo-synth/musical"
	"github.com/cwbudde/algo-synth/oversample"
	"github.com/cwbudde/algo-synth/resonator"
	"github.com/cwbudde/algo-synth/spectral"
)

const (
	toneShelfHz     = 3200.0
	toneShelfGainDB = 2.0
	tonePeakHz      = 300.0
	tonePeakGainDB  = -1.5
)

// toneChain is the nonlinear section that runs at the oversampled rate.
// One chain exists per supported factor so switching factors never
// reallocates.
type toneChain struct {
	factor int
	low    [2]*dsp.Biquad
	high   [2]*dsp.Biquad
	eq     [2]*biquad.Chain // fixed shelf and peak
	shaper dsp.Waveshaper
	dc     [2]*dsp.DCBlocker
}

func newToneChain(sampleRate float64, factor int) (*toneChain, error) {
	sr := sampleRate * float64(factor)
	nyq := sr / 2
	c := &toneChain{factor: factor}
	for ch := range 2 {
		var err error
		if c.low[ch], err = dsp.NewBiquad(sr, dsp.BiquadParams{Type: dsp.BiquadHighpass, Freq: math.Min(20, nyq), Q: dsp.ButterworthQ}); err != nil {
			return nil, fmt.Errorf("low filter: %w", err)
		}
		if c.high[ch], err = dsp.NewBiquad(sr, dsp.BiquadParams{Type: dsp.BiquadLowpass, Freq: math.Min(18000, nyq), Q: dsp.ButterworthQ}); err != nil {
			return nil, fmt.Errorf("high filter: %w", err)
		}
		c.eq[ch] = biquad.NewChain([]biquad.Coefficients{
			design.HighShelf(math.Min(toneShelfHz, nyq), toneShelfGainDB, dsp.ButterworthQ, sr),
			design.Peak(math.Min(tonePeakHz, nyq), tonePeakGainDB, dsp.ButterworthQ, sr),
		})
		if c.dc[ch], err = dsp.NewDCBlocker(sr, 1); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *toneChain) reset() {
	for ch := range 2 {
		c.low[ch].Reset()
		c.high[ch].Reset()
		c.eq[ch].Reset()
		c.dc[ch].Reset()
	}
}

func (c *toneChain) process(up [][]float64) {
	for ch, buf := range up {
		low, high, eq, dc := c.low[ch], c.high[ch], c.eq[ch], c.dc[ch]
		for i, x := range buf {
			x = low.Process(x)
			x = high.Process(x)
			x = eq.ProcessSample(x)
			x = c.shaper.Process(x)
			buf[i] = dc.Process(x)
		}
	}
}

// resoState remembers the resonator controls last pushed into the bank.
type resoState struct {
	count    int
	scale    musical.Scale
	root     int32
	quantize bool
	shift    float64
	inharm   float64
}

// fxChain is the fixed effects chain behind the voices. It runs on the
// audio goroutine in chunks of at most MaxSubBlock frames and pulls its
// controls from Params once per chunk.
type fxChain struct {
	sampleRate float64
	params     *Params

	dcPre  [2]*dsp.DCBlocker
	os     *oversample.Oversampler
	tones  []*toneChain // indexed by log2(factor)
	tone   *toneChain
	factor int
	inner  func(up [][]float64)

	bank *resonator.Bank
	reso resoState

	mask        *spectral.MaskFilter
	maskInput   *triple.Buffer[spectral.Mask]
	maskScratch spectral.Mask
	maskOn      bool
	maskPost    bool

	delay *dsp.StereoDelay
	comp  *dsp.Compressor

	views [2][]float64

	faults atomic.Uint64
}

func newFXChain(cfg Config, params *Params, maskInput *triple.Buffer[spectral.Mask]) (*fxChain, error) {
	sr := cfg.SampleRate
	maxStages := bits.TrailingZeros(uint(cfg.MaxOversampling))
	fx := &fxChain{
		sampleRate:  sr,
		params:      params,
		tones:       make([]*toneChain, maxStages+1),
		maskInput:   maskInput,
		maskScratch: make(spectral.Mask, cfg.MaskMaxBlockSize/2),
	}

	var err error
	for ch := range 2 {
		if fx.dcPre[ch], err = dsp.NewDCBlocker(sr, 1); err != nil {
			return nil, err
		}
	}
	if fx.os, err = oversample.New(2, MaxSubBlock, maxStages); err != nil {
		return nil, fmt.Errorf("oversampler: %w", err)
	}
	for i := range fx.tones {
		if fx.tones[i], err = newToneChain(sr, 1<<i); err != nil {
			return nil, fmt.Errorf("tone chain x%d: %w", 1<<i, err)
		}
	}
	fx.factor = cfg.Oversampling
	fx.tone = fx.tones[bits.TrailingZeros(uint(cfg.Oversampling))]
	// fx.tone is read on every call so factor switches need no new closure.
	fx.inner = func(up [][]float64) { fx.tone.process(up) }

	if fx.bank, err = resonator.NewBank(sr, cfg.ResonatorMax); err != nil {
		return nil, fmt.Errorf("resonator bank: %w", err)
	}
	if err = fx.bank.SetCount(cfg.ResonatorCount); err != nil {
		return nil, err
	}
	fx.reso = resoState{count: cfg.ResonatorCount, scale: musical.Chromatic, root: -1}

	if fx.mask, err = spectral.NewMaskFilter(2, cfg.MaskMaxBlockSize); err != nil {
		return nil, fmt.Errorf("mask filter: %w", err)
	}
	// Build every FFT plan now so resolution changes on the audio
	// goroutine only switch between cached plans.
	for n := spectral.MinBlockSize; n <= cfg.MaskMaxBlockSize; n *= 2 {
		if err = fx.mask.SetBlockSize(n); err != nil {
			return nil, err
		}
	}
	if err = fx.mask.SetBlockSize(cfg.MaskBlockSize); err != nil {
		return nil, err
	}

	if fx.delay, err = dsp.NewStereoDelay(sr, maxDelayMs); err != nil {
		return nil, fmt.Errorf("delay: %w", err)
	}
	if fx.comp, err = dsp.NewCompressor(sr, params.Compressor()); err != nil {
		return nil, fmt.Errorf("compressor: %w", err)
	}
	return fx, nil
}

// sanitizeFactor maps a requested oversampling factor onto a supported
// power of two.
func (fx *fxChain) sanitizeFactor(f int) int {
	if f < 1 {
		return 1
	}
	maxFactor := 1 << (len(fx.tones) - 1)
	if f > maxFactor {
		return maxFactor
	}
	return 1 << (bits.Len(uint(f)) - 1)
}

// latency is the delay in frames added by the chain with the current
// controls.
func (fx *fxChain) latency() int {
	p := fx.params
	n := fx.os.Latency(fx.sanitizeFactor(int(p.Oversampling.Load())))
	if p.MaskEnabled.Load() {
		n += int(p.MaskResolution.Load())
	}
	return n
}

func (fx *fxChain) reset() {
	for ch := range 2 {
		fx.dcPre[ch].Reset()
	}
	fx.os.Reset()
	fx.tone.reset()
	fx.bank.Reset()
	fx.mask.Clear()
	fx.delay.Reset()
	fx.comp.Reset()
}

// process runs the whole chain over left and right in place.
func (fx *fxChain) process(left, right []float64) {
	n := min(len(left), len(right))
	for off := 0; off < n; off += MaxSubBlock {
		end := min(off+MaxSubBlock, n)
		fx.chunk(left[off:end], right[off:end])
	}
}

func (fx *fxChain) chunk(left, right []float64) {
	fx.update(len(left))
	fx.views[0], fx.views[1] = left, right
	views := fx.views[:]

	if fx.maskOn && !fx.maskPost {
		fx.mask.ProcessBlock(views)
	}
	fx.dcPre[0].ProcessBlock(left)
	fx.dcPre[1].ProcessBlock(right)
	if fx.os.Process(views, fx.factor, fx.inner) != nil {
		fx.faults.Add(1)
	}
	fx.bank.ProcessBlock(left, right)
	if fx.maskOn && fx.maskPost {
		fx.mask.ProcessBlock(views)
	}
	fx.delay.ProcessBlock(left, right)
	fx.comp.ProcessBlock(left, right)

	master := fx.params.MasterGain
	for i := range left {
		g := master.Next()
		left[i] = dsp.Clamp(left[i]*g, -1, 1)
		right[i] = dsp.Clamp(right[i]*g, -1, 1)
	}
}

// update pulls the controls for the next chunk of n frames.
func (fx *fxChain) update(n int) {
	p := fx.params

	if f := fx.sanitizeFactor(int(p.Oversampling.Load())); f != fx.factor {
		fx.factor = f
		fx.os.Reset()
		fx.tone = fx.tones[bits.TrailingZeros(uint(f))]
		fx.tone.reset()
	}

	lowShelf := p.LowShelf.Load()
	lowFreq, lowQ, lowGain := p.LowCutoff.Skip(n), p.LowQ.Skip(n), p.LowGainDB.Skip(n)
	highShelf := p.HighShelf.Load()
	highFreq, highQ, highGain := p.HighCutoff.Skip(n), p.HighQ.Skip(n), p.HighGainDB.Skip(n)
	for ch := range 2 {
		low, high := fx.tone.low[ch], fx.tone.high[ch]
		if lowShelf {
			low.SetType(dsp.BiquadLowShelf)
			low.SetQ(dsp.ButterworthQ)
			low.SetGain(lowGain)
		} else {
			low.SetType(dsp.BiquadHighpass)
			low.SetQ(lowQ)
		}
		low.SetFreq(lowFreq)
		if highShelf {
			high.SetType(dsp.BiquadHighShelf)
			high.SetQ(dsp.ButterworthQ)
			high.SetGain(highGain)
		} else {
			high.SetType(dsp.BiquadLowpass)
			high.SetQ(highQ)
		}
		high.SetFreq(highFreq)
	}
	fx.tone.shaper.SetKind(dsp.Distortion(p.Distortion.Load()))
	fx.tone.shaper.SetAmount(p.DistAmount.Skip(n))

	fx.updateResonator(n)
	fx.updateMask(n)

	fx.delay.SetDelayMs(p.DelayMs.Load())
	fx.delay.SetFeedback(p.DelayFeedback.Skip(n))
	fx.delay.SetPingPong(p.PingPong.Load())
	fx.delay.SetMix(p.DelayMix.Skip(n))

	if c := p.Compressor(); c != fx.comp.Params() {
		fx.comp.SetParams(c)
	}
}

func (fx *fxChain) updateResonator(n int) {
	p := fx.params
	b := fx.bank
	r := &fx.reso

	if count := int(p.ResoCount.Load()); count != r.count {
		count = min(max(count, 1), b.Capacity())
		if b.SetCount(count) == nil {
			r.count = count
		}
	}
	if s := musical.Scale(p.ResoScale.Load()); s != r.scale {
		r.scale = s
		b.SetScale(s)
	}
	if root := p.ResoRoot.Load(); root != r.root {
		r.root = root
		b.SetRootNote(float64(root))
	}
	if q := p.ResoQuantize.Load(); q != r.quantize {
		r.quantize = q
		b.SetQuantize(q)
	}
	if shift := p.ResoShift.Skip(n); shift != r.shift {
		r.shift = shift
		b.SetFreqShift(shift)
	}
	if inharm := p.ResoInharm.Skip(n); inharm != r.inharm {
		r.inharm = inharm
		b.SetInharm(inharm)
	}
	b.SetFreqSpread(p.ResoSpread.Skip(n))
	b.SetPanSpread(p.ResoPan.Skip(n))
	b.SetMix(p.ResoMix.Skip(n))
}

func (fx *fxChain) updateMask(n int) {
	p := fx.params
	on := p.MaskEnabled.Load()
	post := p.MaskPostFX.Load()
	if on != fx.maskOn || post != fx.maskPost {
		fx.mask.Clear()
		fx.maskOn, fx.maskPost = on, post
	}
	fx.mask.SetMix(p.MaskMix.Skip(n))

	resized := false
	res := int(p.MaskResolution.Load())
	if res != fx.mask.BlockSize() && isPow2(res) && res >= spectral.MinBlockSize && res <= fx.mask.MaxBlockSize() {
		resized = fx.mask.SetBlockSize(res) == nil
	}
	m, fresh := fx.maskInput.Read()
	if !fresh && !resized {
		return
	}
	if len(*m) == 0 {
		return
	}
	scratch := fx.maskScratch[:fx.mask.BlockSize()/2]
	scratch.Resample(*m)
	if fx.mask.SetMask(scratch) != nil {
		fx.faults.Add(1)
	}
}
