package analysis

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/window"
)

const (
	// DefaultFFTSize is the analysis frame length.
	DefaultFFTSize = 8192
	// DefaultOverlap is the number of frames covering each input sample.
	DefaultOverlap = 4

	AttackMs  = 120.0
	ReleaseMs = 110.0

	// FloorDB is the lowest level a bin reports.
	FloorDB = -120.0
)

var ErrFFTSize = errors.New("fft size must be a power of two >= 16")

// Spectrum is a windowed FFT magnitude analyzer with attack/release
// ballistics. Every channel feeds the same smoothed magnitude array.
// Spectrum is not safe for concurrent use.
type Spectrum struct {
	size       int
	hop        int
	sampleRate float64

	win  []float64
	norm float64
	plan *algofft.Plan[complex128]
	in   []complex128
	out  []complex128

	rings   [][]float64
	pos     []int
	counter []int

	mags          []float64
	attackWeight  float64
	releaseWeight float64
	frames        uint64
}

// NewSpectrum creates an analyzer for the given number of channels.
// overlap <= 0 selects DefaultOverlap.
func NewSpectrum(sampleRate float64, fftSize, overlap, channels int) (*Spectrum, error) {
	if !(sampleRate > 0) {
		return nil, fmt.Errorf("sample rate must be > 0")
	}
	if fftSize < 16 || fftSize&(fftSize-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrFFTSize, fftSize)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channels must be > 0")
	}
	if overlap <= 0 {
		overlap = DefaultOverlap
	}
	hop := max(fftSize/overlap, 1)

	win := window.Generate(window.TypeHann, fftSize, window.WithPeriodic())
	if len(win) != fftSize {
		return nil, fmt.Errorf("invalid analyzer window size: %d", fftSize)
	}
	sum := 0.0
	for _, w := range win {
		sum += w
	}
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("spectrum init fft plan: %w", err)
	}

	s := &Spectrum{
		size:       fftSize,
		hop:        hop,
		sampleRate: sampleRate,
		win:        win,
		norm:       sum,
		plan:       plan,
		in:         make([]complex128, fftSize),
		out:        make([]complex128, fftSize),
		rings:      make([][]float64, channels),
		pos:        make([]int, channels),
		counter:    make([]int, channels),
		mags:       make([]float64, fftSize/2+1),
	}
	for ch := range s.rings {
		s.rings[ch] = make([]float64, fftSize)
	}
	if s.norm <= 0 {
		s.norm = 1
	}

	// Ballistics run once per analysed frame, so the time constants are
	// expressed in frames.
	rate := sampleRate / float64(fftSize) * float64(fftSize/hop) * float64(channels)
	s.attackWeight = ballisticWeight(AttackMs, rate)
	s.releaseWeight = ballisticWeight(ReleaseMs, rate)
	return s, nil
}

func ballisticWeight(ms, rate float64) float64 {
	frames := ms / 1000 * rate
	if frames <= 0 {
		return 0
	}
	return math.Pow(0.25, 1/frames)
}

// Size returns the FFT length.
func (s *Spectrum) Size() int { return s.size }

// Bins returns the number of magnitude bins, Size()/2+1.
func (s *Spectrum) Bins() int { return len(s.mags) }

// BinFreq returns the center frequency of bin k in Hz.
func (s *Spectrum) BinFreq(k int) float64 {
	return float64(k) * s.sampleRate / float64(s.size)
}

// Frames returns the number of analysed frames.
func (s *Spectrum) Frames() uint64 { return s.frames }

// Weights returns the attack and release smoothing coefficients.
func (s *Spectrum) Weights() (attack, release float64) {
	return s.attackWeight, s.releaseWeight
}

// Reset clears history and the smoothed spectrum.
func (s *Spectrum) Reset() {
	for ch := range s.rings {
		clear(s.rings[ch])
		s.pos[ch] = 0
		s.counter[ch] = 0
	}
	clear(s.mags)
	s.frames = 0
}

// Process feeds one block per channel. Extra channels are ignored. It
// reports whether at least one frame was analysed.
func (s *Spectrum) Process(channels ...[]float64) bool {
	analysed := false
	for ch, x := range channels {
		if ch >= len(s.rings) {
			break
		}
		ring := s.rings[ch]
		for _, v := range x {
			ring[s.pos[ch]] = v
			s.pos[ch]++
			if s.pos[ch] == s.size {
				s.pos[ch] = 0
			}
			s.counter[ch]++
			if s.counter[ch] >= s.hop {
				s.counter[ch] = 0
				s.analyse(ch)
				analysed = true
			}
		}
	}
	return analysed
}

func (s *Spectrum) analyse(ch int) {
	ring := s.rings[ch]
	start := s.pos[ch]
	for i := 0; i < s.size; i++ {
		s.in[i] = complex(ring[(start+i)%s.size]*s.win[i], 0)
	}
	if err := s.plan.Forward(s.out, s.in); err != nil {
		return
	}
	half := s.size / 2
	for k := 0; k <= half; k++ {
		mag := cmplxAbs(s.out[k]) / s.norm
		if k > 0 && k < half {
			mag *= 2
		}
		cur := s.mags[k]
		w := s.releaseWeight
		if mag > cur {
			w = s.attackWeight
		}
		s.mags[k] = cur*w + mag*(1-w)
	}
	s.frames++
}

func cmplxAbs(c complex128) float64 { return math.Hypot(real(c), imag(c)) }

// Magnitudes returns the smoothed linear magnitudes. The slice is owned
// by the analyzer.
func (s *Spectrum) Magnitudes() []float64 { return s.mags }

// DB writes the smoothed spectrum in decibels into dst, growing it if
// needed, and returns it.
func (s *Spectrum) DB(dst []float64) []float64 {
	if cap(dst) < len(s.mags) {
		dst = make([]float64, len(s.mags))
	}
	dst = dst[:len(s.mags)]
	for k, m := range s.mags {
		dst[k] = MagToDB(m)
	}
	return dst
}

// MagToDB converts a linear magnitude to decibels floored at FloorDB.
func MagToDB(m float64) float64 {
	db := 20 * math.Log10(math.Max(m, 1e-12))
	if db < FloorDB {
		return FloorDB
	}
	return db
}
