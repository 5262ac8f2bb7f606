package dsp

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

func TestBiquadSuspendIsIdentity(t *testing.T) {
	b, err := NewBiquad(48000, BiquadParams{Type: BiquadPeak, Freq: 1000, Q: 0.7, GainDB: 12})
	if err != nil {
		t.Fatalf("NewBiquad: %v", err)
	}
	for i := 0; i < 64; i++ {
		b.Process(math.Sin(float64(i)))
	}
	b.Suspend()
	for _, x := range []float64{0, 1, -1, 0.25, -0.731, 1e-3, 42} {
		if got := b.Process(x); got != x {
			t.Fatalf("suspended Process(%g)=%g, want identity", x, got)
		}
	}

	b.ForceRecompute()
	if b.Suspended() {
		t.Fatalf("expected ForceRecompute to resume filtering")
	}
	if c := b.Coefficients(); c.B0 == 1 && c.A1 == 0 {
		t.Fatalf("expected non identity coefficients after resume: %+v", c)
	}
}

func TestBiquadSetterResumesAfterSuspend(t *testing.T) {
	b, err := NewBiquad(48000, BiquadParams{Type: BiquadLowpass, Freq: 500, Q: ButterworthQ})
	if err != nil {
		t.Fatalf("NewBiquad: %v", err)
	}
	b.Suspend()
	b.SetFreq(600)
	if b.Suspended() {
		t.Fatalf("setter should clear suspension")
	}
}

func TestBiquadLowpassMatchesAlgoDSPDesign(t *testing.T) {
	const sr = 48000.0
	b, err := NewBiquad(sr, BiquadParams{Type: BiquadLowpass, Freq: 2000, Q: ButterworthQ})
	if err != nil {
		t.Fatalf("NewBiquad: %v", err)
	}
	got := b.Coefficients()
	want := design.Lowpass(2000, ButterworthQ, sr)
	for _, pair := range [][2]float64{
		{got.B0, want.B0}, {got.B1, want.B1}, {got.B2, want.B2}, {got.A1, want.A1}, {got.A2, want.A2},
	} {
		if !approxEqual(pair[0], pair[1], 1e-6) {
			t.Fatalf("coefficient mismatch: got=%+v want=%+v", got, want)
		}
	}
}

func TestBiquadLazyRecompute(t *testing.T) {
	b, err := NewBiquad(48000, BiquadParams{Type: BiquadLowpass, Freq: 1000, Q: 1})
	if err != nil {
		t.Fatalf("NewBiquad: %v", err)
	}
	before := b.Coefficients()
	b.SetFreq(4000)
	if !b.needsRecompute {
		t.Fatalf("expected setter to flag recompute")
	}
	b.Process(0)
	if b.needsRecompute {
		t.Fatalf("expected Process to recompute")
	}
	if b.Coefficients() == before {
		t.Fatalf("coefficients did not change")
	}
}

func TestBiquadValidation(t *testing.T) {
	cases := []BiquadParams{
		{Type: BiquadLowpass, Freq: 0, Q: 1},
		{Type: BiquadLowpass, Freq: 30000, Q: 1},
		{Type: BiquadLowpass, Freq: 1000, Q: 0},
		{Type: BiquadType(99), Freq: 1000, Q: 1},
	}
	for _, p := range cases {
		if _, err := NewBiquad(48000, p); err == nil {
			t.Fatalf("expected error for %+v", p)
		}
	}
	_, err := NewBiquad(48000, BiquadParams{Type: BiquadLowpass, Freq: 24001, Q: 1})
	if !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
	if _, err := NewBiquad(48000, BiquadParams{Type: BiquadLowpass, Freq: 24000, Q: 1}); err != nil {
		t.Fatalf("nyquist should be accepted: %v", err)
	}
}

func TestBiquadResponses(t *testing.T) {
	const sr = 48000.0
	const n = 16384
	measure := func(p BiquadParams, freq float64) float64 {
		b, err := NewBiquad(sr, p)
		if err != nil {
			t.Fatalf("NewBiquad(%+v): %v", p, err)
		}
		buf := sineBuffer(freq, sr, n)
		b.ProcessBlock(buf)
		return peakAbs(buf[n/2:])
	}

	if g := measure(BiquadParams{Type: BiquadLowpass, Freq: 500, Q: ButterworthQ}, 8000); g > 0.01 {
		t.Fatalf("lowpass stopband too loud: %g", g)
	}
	if g := measure(BiquadParams{Type: BiquadHighpass, Freq: 5000, Q: ButterworthQ}, 100); g > 0.01 {
		t.Fatalf("highpass stopband too loud: %g", g)
	}
	if g := measure(BiquadParams{Type: BiquadBandpass, Freq: 1000, Q: 2}, 1000); !approxEqual(g, 1, 0.02) {
		t.Fatalf("bandpass centre gain=%g, want 1", g)
	}
	if g := measure(BiquadParams{Type: BiquadNotch, Freq: 1000, Q: 2}, 1000); g > 0.02 {
		t.Fatalf("notch centre gain=%g, want ~0", g)
	}
	if g := measure(BiquadParams{Type: BiquadAllpass, Freq: 3000, Q: 1}, 1000); !approxEqual(g, 1, 0.02) {
		t.Fatalf("allpass gain=%g, want 1", g)
	}
	if g := measure(BiquadParams{Type: BiquadPeak, Freq: 1000, Q: 1, GainDB: 6}, 1000); !approxEqual(g, DBToGain(6), 0.03) {
		t.Fatalf("peak gain=%g, want %g", g, DBToGain(6))
	}
	if g := measure(BiquadParams{Type: BiquadLowShelf, Freq: 1000, Q: ButterworthQ, GainDB: -12}, 30); !approxEqual(g, DBToGain(-12), 0.03) {
		t.Fatalf("low shelf gain=%g, want %g", g, DBToGain(-12))
	}
	if g := measure(BiquadParams{Type: BiquadHighShelf, Freq: 1000, Q: ButterworthQ, GainDB: 6}, 15000); !approxEqual(g, DBToGain(6), 0.05) {
		t.Fatalf("high shelf gain=%g, want %g", g, DBToGain(6))
	}
}
