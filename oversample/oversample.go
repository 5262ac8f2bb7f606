// Package oversample runs a processing callback at a power-of-two multiple
// of the base sample rate using cascaded Lanczos half-band stages.
package oversample

import (
	"errors"
	"fmt"
	"math/bits"
)

// MaxFactor is the largest supported oversampling factor.
const MaxFactor = 16

var (
	ErrFactor    = errors.New("oversampling factor must be a power of two")
	ErrBlockSize = errors.New("block exceeds max block size")
	ErrChannels  = errors.New("channel count must be > 0")
)

// Oversampler holds per-stage ring buffers for every channel. Process never
// allocates; SetChannels does.
type Oversampler struct {
	channels int
	maxBlock int
	stages   []*stage
	views    [][]float64
}

// New creates an oversampler able to run up to 2^maxStages times the base
// rate on blocks of at most maxBlock frames.
func New(channels, maxBlock, maxStages int) (*Oversampler, error) {
	if channels <= 0 {
		return nil, ErrChannels
	}
	if maxBlock <= 0 {
		return nil, fmt.Errorf("max block must be > 0: %w", ErrBlockSize)
	}
	if maxStages < 0 || 1<<maxStages > MaxFactor {
		return nil, fmt.Errorf("max stages %d exceeds factor %d: %w", maxStages, MaxFactor, ErrFactor)
	}
	o := &Oversampler{
		channels: channels,
		maxBlock: maxBlock,
		stages:   make([]*stage, maxStages),
		views:    make([][]float64, channels),
	}
	for i := range o.stages {
		o.stages[i] = newStage(i, channels, maxBlock)
	}
	return o, nil
}

// Channels returns the configured channel count.
func (o *Oversampler) Channels() int { return o.channels }

// MaxFactor returns the largest factor this instance supports.
func (o *Oversampler) MaxFactor() int { return 1 << len(o.stages) }

// SetChannels reallocates every stage for n channels. Not real-time safe.
func (o *Oversampler) SetChannels(n int) error {
	if n <= 0 {
		return ErrChannels
	}
	o.channels = n
	o.views = make([][]float64, n)
	for _, s := range o.stages {
		s.allocate(n, o.maxBlock)
	}
	return nil
}

// Reset clears all stage history.
func (o *Oversampler) Reset() {
	for _, s := range o.stages {
		s.reset()
	}
}

func (o *Oversampler) stageCount(factor int) (int, error) {
	if factor <= 0 || factor&(factor-1) != 0 {
		return 0, fmt.Errorf("factor %d: %w", factor, ErrFactor)
	}
	n := bits.TrailingZeros(uint(factor))
	if n > len(o.stages) {
		return 0, fmt.Errorf("factor %d above %d: %w", factor, o.MaxFactor(), ErrFactor)
	}
	return n, nil
}

// Latency returns the round trip delay at factor in base-rate samples.
func (o *Oversampler) Latency(factor int) int {
	n, err := o.stageCount(factor)
	if err != nil {
		return 0
	}
	total := 0
	for _, s := range o.stages[:n] {
		total += s.latency()
	}
	return total
}

// Process upsamples block by factor, calls inner once with the upsampled
// channels and downsamples the result back into block. All channels in
// block must have the same length. A factor of 1 calls inner on block
// directly.
func (o *Oversampler) Process(block [][]float64, factor int, inner func(up [][]float64)) error {
	n, err := o.stageCount(factor)
	if err != nil {
		return err
	}
	if len(block) != o.channels {
		return fmt.Errorf("got %d channels, configured for %d: %w", len(block), o.channels, ErrChannels)
	}
	if len(block) == 0 {
		return nil
	}
	frames := len(block[0])
	if frames > o.maxBlock {
		return fmt.Errorf("%d frames > %d: %w", frames, o.maxBlock, ErrBlockSize)
	}
	if n == 0 {
		inner(block)
		return nil
	}

	in := block
	length := frames
	for _, s := range o.stages[:n] {
		s.upsample(in, length)
		length *= 2
		for ch := range o.views {
			o.views[ch] = s.scratch[ch][:length]
		}
		in = o.views
	}

	inner(o.views)

	for i := n - 1; i >= 0; i-- {
		length /= 2
		dst := block
		if i > 0 {
			prev := o.stages[i-1]
			for ch := range o.views {
				o.views[ch] = prev.scratch[ch][:length]
			}
			dst = o.views
		}
		o.stages[i].downsample(dst, length)
	}
	return nil
}
