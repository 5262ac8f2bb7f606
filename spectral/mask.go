// Package spectral implements STFT based filtering by a per-bin gain mask.
package spectral

import (
	"errors"
	"fmt"
)

// MaxBlockSize is the largest supported FFT size.
const MaxBlockSize = 16384

// MinBlockSize is the smallest supported FFT size.
const MinBlockSize = 4

var (
	ErrMaskLength = errors.New("mask length must be half the block size")
	ErrBlockSize  = errors.New("block size must be a power of two in range")
)

// Mask holds one gain per frequency bin, from DC up to just below Nyquist.
type Mask []float64

// NewMask returns a transparent mask of n bins.
func NewMask(n int) Mask {
	m := make(Mask, n)
	m.Fill(1)
	return m
}

// Fill sets every bin to v.
func (m Mask) Fill(v float64) {
	for i := range m {
		m[i] = v
	}
}

// BinFreq returns the centre frequency of bin i in Hz.
func (m Mask) BinFreq(i int, sampleRate float64) float64 {
	if len(m) == 0 {
		return 0
	}
	return float64(i) * sampleRate / 2 / float64(len(m))
}

// Resample stretches src onto m by linear interpolation. It lets producers
// that work at a fixed resolution feed filters of any block size.
func (m Mask) Resample(src Mask) {
	if len(m) == 0 {
		return
	}
	if len(src) == 0 {
		m.Fill(1)
		return
	}
	if len(src) == len(m) {
		copy(m, src)
		return
	}
	scale := float64(len(src)-1) / float64(max(len(m)-1, 1))
	for i := range m {
		pos := float64(i) * scale
		j := int(pos)
		if j >= len(src)-1 {
			m[i] = src[len(src)-1]
			continue
		}
		frac := pos - float64(j)
		m[i] = src[j] + (src[j+1]-src[j])*frac
	}
}

func checkBlockSize(n, maxBlock int) error {
	if n < MinBlockSize || n > maxBlock || n&(n-1) != 0 {
		return fmt.Errorf("block size %d (max %d): %w", n, maxBlock, ErrBlockSize)
	}
	return nil
}
