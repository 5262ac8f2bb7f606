package analysis

import (
	"math"
	"math/rand"
	"testing"
)

func TestCompareIdenticalSignalsHasLowDistance(t *testing.T) {
	sr := 48000
	x := makeDecaySine(sr, 440.0, 1.5, 0.7)
	m := Compare(x, x, sr)
	if m.Score > 0.05 {
		t.Fatalf("expected very low score for identical signals, got %f", m.Score)
	}
	if m.Similarity < 0.85 {
		t.Fatalf("expected high similarity for identical signals, got %f", m.Similarity)
	}
}

func TestCompareDifferentSignalsHasHigherDistance(t *testing.T) {
	sr := 48000
	a := makeDecaySine(sr, 261.63, 1.8, 0.8)
	b := makeDecaySine(sr, 330.0, 0.8, 0.25)
	m := Compare(a, b, sr)
	if m.Score < 0.25 {
		t.Fatalf("expected higher score for different signals, got %f", m.Score)
	}
}

func TestCompareEmptyIsWorst(t *testing.T) {
	m := Compare(nil, makeDecaySine(48000, 440, 0.1, 0.1), 48000)
	if m.Score != 1 {
		t.Fatalf("Score = %f, want 1", m.Score)
	}
}

func TestEstimateLagFindsPositiveShift(t *testing.T) {
	const (
		n      = 8192
		shift  = 237
		maxLag = 600
	)
	ref := randomSignal(n, 7)
	cand := make([]float64, n)
	copy(cand, ref[shift:])

	got := estimateLag(ref, cand, maxLag)
	if got != shift {
		t.Fatalf("estimateLag() = %d, want %d", got, shift)
	}
}

func TestEstimateLagFindsNegativeShift(t *testing.T) {
	const (
		n      = 8192
		shift  = -191
		maxLag = 600
	)
	ref := randomSignal(n, 11)
	cand := make([]float64, n)
	copy(cand[-shift:], ref)

	got := estimateLag(ref, cand, maxLag)
	if got != shift {
		t.Fatalf("estimateLag() = %d, want %d", got, shift)
	}
}

func TestEstimateLagMatchesDirect(t *testing.T) {
	const (
		n      = 16000
		shift  = 443
		maxLag = 1000
	)
	ref := randomSignal(n, 23)
	cand := make([]float64, n)
	copy(cand, ref[shift:])

	got := estimateLag(ref, cand, maxLag)
	want := estimateLagDirect(ref, cand, maxLag)
	if got != want {
		t.Fatalf("estimateLag() = %d, direct = %d", got, want)
	}
}

func TestAverageSpectrumPeak(t *testing.T) {
	const sr = 48000
	x := make([]float64, sr/2)
	binHz := float64(sr) / CompareFFTSize
	freq := 100 * binHz
	for i := range x {
		x[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/sr)
	}
	mags, err := AverageSpectrum(x, CompareFFTSize)
	if err != nil {
		t.Fatalf("AverageSpectrum: %v", err)
	}
	peak := 0
	for k := range mags {
		if mags[k] > mags[peak] {
			peak = k
		}
	}
	if peak != 100 {
		t.Fatalf("peak bin = %d, want 100", peak)
	}
	if math.Abs(mags[peak]-0.5) > 0.01 {
		t.Fatalf("peak magnitude = %f, want 0.5", mags[peak])
	}
}

func TestBandReportFindsLouderBand(t *testing.T) {
	const sr = 48000
	ref := make([]float64, sr)
	cand := make([]float64, sr)
	for i := range ref {
		ph := 2 * math.Pi * 1500 * float64(i) / sr
		ref[i] = 0.1 * math.Sin(ph)
		cand[i] = 0.4 * math.Sin(ph)
	}
	diffs, err := BandReport(ref, cand, sr, []Window{{"all", 0, 1}}, DefaultBands)
	if err != nil {
		t.Fatalf("BandReport: %v", err)
	}
	var mid *BandDiff
	for i := range diffs {
		if diffs[i].Band == "mid" {
			mid = &diffs[i]
		}
	}
	if mid == nil {
		t.Fatalf("no mid band in %+v", diffs)
	}
	want := 20 * math.Log10(4)
	if math.Abs(mid.DiffDB()-want) > 0.5 {
		t.Fatalf("mid diff = %.2f dB, want %.2f", mid.DiffDB(), want)
	}
}

func makeDecaySine(sr int, freq float64, durationSec float64, decaySec float64) []float64 {
	n := max(int(float64(sr)*durationSec), 1)
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(sr)
		out[i] = math.Exp(-t/decaySec) * math.Sin(2*math.Pi*freq*t)
	}
	return out
}

func randomSignal(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()*2 - 1
	}
	return out
}
