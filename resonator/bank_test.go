package resonator

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/cwbudde/algo-synth/musical"
)

const testSampleRate = 44100.0

func newTestBank(t *testing.T) *Bank {
	t.Helper()
	b, err := NewBank(testSampleRate, DefaultCapacity)
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}
	return b
}

func TestBankCount(t *testing.T) {
	b := newTestBank(t)
	if b.Count() != DefaultCount || b.Capacity() != DefaultCapacity {
		t.Fatalf("count=%d capacity=%d", b.Count(), b.Capacity())
	}
	if err := b.SetCount(DefaultCapacity); err != nil {
		t.Fatalf("SetCount(capacity): %v", err)
	}
	if err := b.SetCount(DefaultCapacity + 1); !errors.Is(err, ErrCount) {
		t.Fatalf("SetCount over capacity err=%v", err)
	}
	if err := b.SetCount(0); err == nil {
		t.Fatalf("expected error for zero count")
	}
	if _, err := NewBank(0, 4); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
}

func TestRandomiseRespectsSpread(t *testing.T) {
	b := newTestBank(t)
	rng := rand.New(rand.NewPCG(1, 2))

	b.SetFreqSpread(0)
	b.Randomise(rng)
	for i := 0; i < b.Capacity(); i++ {
		if _, target := b.Pitch(i); target < 66 || target > 78 {
			t.Fatalf("spread 0 pitch %d=%g outside one octave", i, target)
		}
	}

	b.SetFreqSpread(1)
	b.Randomise(rng)
	for i := 0; i < b.Capacity(); i++ {
		if _, target := b.Pitch(i); target < noteMin || target > noteMax {
			t.Fatalf("spread 1 pitch %d=%g outside [%g,%g]", i, target, noteMin, noteMax)
		}
	}
}

func TestFreqShiftIsNotCumulative(t *testing.T) {
	b := newTestBank(t)
	b.Randomise(rand.New(rand.NewPCG(3, 4)))
	_, before := b.Pitch(0)
	b.SetFreqShift(5)
	b.SetFreqShift(5)
	if _, after := b.Pitch(0); math.Abs(after-before-5) > 1e-12 {
		t.Fatalf("shift applied twice: before=%g after=%g", before, after)
	}
	b.SetFreqShift(0)
	if _, back := b.Pitch(0); math.Abs(back-before) > 1e-12 {
		t.Fatalf("shift not reversible: %g vs %g", back, before)
	}
}

func TestQuantizeGlidesToScale(t *testing.T) {
	b := newTestBank(t)
	b.Randomise(rand.New(rand.NewPCG(5, 6)))
	p := b.Params()
	p.Quantize = true
	p.Scale = musical.MajorPentatonic
	p.RootNote = 60
	b.SetParams(p)

	for i := 0; i < int(testSampleRate*1.1); i++ {
		b.ProcessStereo(0, 0)
	}
	for i := 0; i < b.Count(); i++ {
		cur, target := b.Pitch(i)
		if cur != target {
			t.Fatalf("resonator %d still gliding: %g -> %g", i, cur, target)
		}
		if target != math.Round(target) {
			t.Fatalf("resonator %d not on a semitone: %g", i, target)
		}
		if musical.MajorPentatonic.Quantize(target, 60) != target {
			t.Fatalf("resonator %d not on scale: %g", i, target)
		}
	}
}

func TestRetargetIsClickFree(t *testing.T) {
	b := newTestBank(t)
	b.Randomise(rand.New(rand.NewPCG(7, 8)))
	b.Reset()
	noise := rand.New(rand.NewPCG(9, 10))

	var prev, maxStep float64
	for i := 0; i < 40000; i++ {
		x := noise.Float64()*2 - 1
		l, _ := b.ProcessStereo(x, x)
		if i > 20000 {
			maxStep = math.Max(maxStep, math.Abs(l-prev))
		}
		prev = l
	}

	b.SetFreqShift(12)
	b.SetScale(musical.Minor)
	x := noise.Float64()*2 - 1
	l, _ := b.ProcessStereo(x, x)
	if step := math.Abs(l - prev); step > maxStep*1.5+1e-9 {
		t.Fatalf("retarget step=%g exceeds steady state max %g", step, maxStep)
	}
	if cur, target := b.Pitch(0); cur == target {
		t.Fatalf("pitch jumped to target %g instead of gliding", target)
	}
}

func TestMixEndpoints(t *testing.T) {
	b := newTestBank(t)
	b.SetMix(0)
	if l, r := b.ProcessStereo(0.5, -0.25); math.Abs(l-0.5) > 1e-12 || math.Abs(r+0.25) > 1e-12 {
		t.Fatalf("dry mix changed the signal: %g %g", l, r)
	}
}
