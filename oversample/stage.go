package oversample

// Lanczos (a=3) half-band kernels. The upsampling kernel carries the factor
// two lost to zero stuffing; the downsampling kernel is half of it.
var (
	upKernel = [kernelLen]float64{
		0.02431708, 0, -0.13509491, 0, 0.6079271, 1, 0.6079271, 0, -0.13509491, 0, 0.02431708,
	}
	downKernel = [kernelLen]float64{
		0.01215854, 0, -0.06754746, 0, 0.30396355, 0.5, 0.30396355, 0, -0.06754746, 0, 0.01215854,
	}
)

const (
	kernelLen     = 11
	kernelLatency = kernelLen / 2
)

// stage doubles the rate of its input. Stage i runs at mult = 2^(i+1) times
// the base rate and pads its upsampling delay so that its round trip is a
// whole number of base-rate samples.
type stage struct {
	mult  int
	extra int

	up    [][]float64 // per channel ring, kernelLen+extra
	upPos int

	down    [][]float64 // per channel ring, kernelLen
	downPos int

	scratch [][]float64 // per channel, maxBlock*mult
}

func newStage(index, channels, maxBlock int) *stage {
	mult := 1 << (index + 1)
	raw := kernelLatency * 2
	extra := ((-raw)%mult + mult) % mult
	s := &stage{mult: mult, extra: extra}
	s.allocate(channels, maxBlock)
	return s
}

func (s *stage) allocate(channels, maxBlock int) {
	s.up = make([][]float64, channels)
	s.down = make([][]float64, channels)
	s.scratch = make([][]float64, channels)
	for ch := 0; ch < channels; ch++ {
		s.up[ch] = make([]float64, kernelLen+s.extra)
		s.down[ch] = make([]float64, kernelLen)
		s.scratch[ch] = make([]float64, maxBlock*s.mult)
	}
	s.upPos, s.downPos = 0, 0
}

func (s *stage) reset() {
	for ch := range s.up {
		clear(s.up[ch])
		clear(s.down[ch])
	}
	s.upPos, s.downPos = 0, 0
}

// latency is the round trip delay in base-rate samples.
func (s *stage) latency() int {
	return (kernelLatency*2 + s.extra) / s.mult
}

// upsample writes 2*n samples per channel into scratch.
func (s *stage) upsample(in [][]float64, n int) {
	start := s.upPos
	for ch, src := range in {
		ring := s.up[ch]
		size := len(ring)
		out := s.scratch[ch][:2*n]
		pos := start
		for i := range out {
			x := 0.0
			if i&1 == 0 {
				x = src[i>>1]
			}
			ring[pos] = x
			pos++
			if pos == size {
				pos = 0
			}
			if i&1 == kernelLatency&1 {
				// The centre tap lands on an original sample.
				out[i] = ring[(pos+kernelLatency)%size]
			} else {
				out[i] = convolveRing(ring, &upKernel, pos)
			}
		}
	}
	s.upPos = (start + 2*n) % (kernelLen + s.extra)
}

// downsample reads 2*n samples per channel from scratch into out.
func (s *stage) downsample(out [][]float64, n int) {
	start := s.downPos
	for ch, dst := range out {
		ring := s.down[ch]
		src := s.scratch[ch][:2*n]
		pos := start
		for i, x := range src {
			ring[pos] = x
			pos++
			if pos == kernelLen {
				pos = 0
			}
			if i&1 == 0 {
				dst[i>>1] = convolveRing(ring, &downKernel, pos)
			}
		}
	}
	s.downPos = (start + 2*n) % kernelLen
}

// convolveRing applies kernel to the kernelLen oldest samples of ring,
// starting at pos.
func convolveRing(ring []float64, kernel *[kernelLen]float64, pos int) float64 {
	size := len(ring)
	var sum float64
	for k := 0; k < kernelLen; k++ {
		idx := pos + k
		if idx >= size {
			idx -= size
		}
		sum += kernel[kernelLen-1-k] * ring[idx]
	}
	return sum
}
