package synth

import (
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newTestEngine builds an engine with a transparent effects chain: no
// oversampling and every wet control at zero.
func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Oversampling = 1
	cfg.Logger = quietLogger()
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func renderFrames(e *Engine, frames, block int) (left, right []float64) {
	left = make([]float64, frames)
	right = make([]float64, frames)
	for off := 0; off < frames; off += block {
		end := min(off+block, frames)
		e.RenderFloat64(left[off:end], right[off:end])
	}
	return left, right
}

func peakAbs(x []float64) float64 {
	var p float64
	for _, v := range x {
		p = math.Max(p, math.Abs(v))
	}
	return p
}

// risingCrossings counts negative-to-positive zero crossings.
func risingCrossings(x []float64) int {
	n := 0
	for i := 1; i < len(x); i++ {
		if x[i-1] < 0 && x[i] >= 0 {
			n++
		}
	}
	return n
}
