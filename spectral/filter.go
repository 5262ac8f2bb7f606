package spectral

import (
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"
)

// Overlap is the number of analysis frames covering each sample.
const Overlap = 4

type channelState struct {
	in   []float64 // input history ring
	acc  []float64 // overlap-add accumulator ring
	pos  int
	hop  int
	time []complex128
	freq []complex128
}

// MaskFilter multiplies the spectrum of a stream by a Mask using a sine
// windowed overlap-add STFT. The output is delayed by the block size.
type MaskFilter struct {
	maxBlock int
	size     int

	window      []float64
	synthWindow []float64
	mask        Mask
	plan        *algofft.Plan[complex128]
	plans       map[int]*algofft.Plan[complex128]

	channels []channelState
	dry, wet float64
}

// NewMaskFilter creates a filter for channels streams with FFT sizes up to
// maxBlock. The block size starts at maxBlock.
func NewMaskFilter(channels, maxBlock int) (*MaskFilter, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("channels must be > 0")
	}
	if err := checkBlockSize(maxBlock, MaxBlockSize); err != nil {
		return nil, err
	}
	f := &MaskFilter{
		maxBlock:    maxBlock,
		window:      make([]float64, maxBlock),
		synthWindow: make([]float64, maxBlock),
		mask:        make(Mask, maxBlock/2),
		plans:       make(map[int]*algofft.Plan[complex128]),
		channels:    make([]channelState, channels),
		wet:         1,
	}
	for i := range f.channels {
		f.channels[i] = channelState{
			in:   make([]float64, maxBlock),
			acc:  make([]float64, maxBlock),
			time: make([]complex128, maxBlock),
			freq: make([]complex128, maxBlock),
		}
	}
	if err := f.SetBlockSize(maxBlock); err != nil {
		return nil, err
	}
	return f, nil
}

// BlockSize returns the current FFT size.
func (f *MaskFilter) BlockSize() int { return f.size }

// MaxBlockSize returns the largest FFT size this filter accepts.
func (f *MaskFilter) MaxBlockSize() int { return f.maxBlock }

// Latency returns the delay in samples, equal to the block size.
func (f *MaskFilter) Latency() int { return f.size }

// SetBlockSize changes the FFT size, resets the stream and the mask to all
// ones. Plans are cached per size.
func (f *MaskFilter) SetBlockSize(n int) error {
	if err := checkBlockSize(n, f.maxBlock); err != nil {
		return err
	}
	plan, ok := f.plans[n]
	if !ok {
		var err error
		plan, err = algofft.NewPlan64(n)
		if err != nil {
			return fmt.Errorf("fft plan %d: %w", n, err)
		}
		f.plans[n] = plan
	}
	f.plan = plan
	f.size = n

	// sine^2 sums to Overlap/2 across the frames covering a sample; the
	// inverse transform also needs 1/n.
	comp := 1 / (Overlap * 0.5) / float64(n)
	for i := 0; i < n; i++ {
		w := math.Sin(math.Pi * (float64(i) + 0.5) / float64(n))
		f.window[i] = w
		f.synthWindow[i] = w * comp
	}
	f.mask = f.mask[:n/2]
	f.mask.Fill(1)
	f.Clear()
	return nil
}

// SetMask copies m into the filter. len(m) must equal BlockSize()/2.
func (f *MaskFilter) SetMask(m Mask) error {
	if len(m) != len(f.mask) {
		return fmt.Errorf("got %d bins, want %d: %w", len(m), len(f.mask), ErrMaskLength)
	}
	copy(f.mask, m)
	return nil
}

// Mask returns the active mask. The slice is owned by the filter.
func (f *MaskFilter) Mask() Mask { return f.mask }

// SetMix crossfades linearly between the delayed dry signal and the
// filtered signal.
func (f *MaskFilter) SetMix(mix float64) {
	mix = math.Max(0, math.Min(1, mix))
	f.dry, f.wet = 1-mix, mix
}

// Clear zeroes the stream history.
func (f *MaskFilter) Clear() {
	for i := range f.channels {
		c := &f.channels[i]
		clear(c.in)
		clear(c.acc)
		c.pos, c.hop = 0, 0
	}
}

// ProcessBlock filters each channel in place. len(channels) must not exceed
// the configured channel count.
func (f *MaskFilter) ProcessBlock(channels [][]float64) {
	for ch, buf := range channels {
		if ch >= len(f.channels) {
			return
		}
		f.processChannel(&f.channels[ch], buf)
	}
}

func (f *MaskFilter) processChannel(c *channelState, buf []float64) {
	n := f.size
	hop := n / Overlap
	for i, x := range buf {
		delayed := c.in[c.pos]
		y := c.acc[c.pos]
		c.acc[c.pos] = 0
		c.in[c.pos] = x
		c.pos++
		if c.pos == n {
			c.pos = 0
		}
		buf[i] = f.dry*delayed + f.wet*y

		c.hop++
		if c.hop == hop {
			c.hop = 0
			f.processFrame(c)
		}
	}
}

func (f *MaskFilter) processFrame(c *channelState) {
	n := f.size
	time := c.time[:n]
	freq := c.freq[:n]

	idx := c.pos
	for i := 0; i < n; i++ {
		time[i] = complex(c.in[idx]*f.window[i], 0)
		idx++
		if idx == n {
			idx = 0
		}
	}
	if err := f.plan.Forward(freq, time); err != nil {
		return
	}

	half := n / 2
	freq[0] = 0
	freq[half] *= complex(f.mask[half-1], 0)
	for k := 1; k < half; k++ {
		g := complex(f.mask[k], 0)
		freq[k] *= g
		freq[n-k] *= g
	}

	// Inverse transform through the forward plan: x = conj(F(conj(X))).
	// The spectrum is Hermitian, so the real part is all that is needed.
	for k := range freq {
		freq[k] = cmplx.Conj(freq[k])
	}
	if err := f.plan.Forward(time, freq); err != nil {
		return
	}

	idx = c.pos
	for i := 0; i < n; i++ {
		c.acc[idx] += real(time[i]) * f.synthWindow[i]
		idx++
		if idx == n {
			idx = 0
		}
	}
}
