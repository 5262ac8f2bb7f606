package spectral

import (
	"errors"
	"math"
	"testing"
)

func sine(freq, sampleRate float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
	}
	return out
}

func runFilter(t *testing.T, f *MaskFilter, in []float64, chunk int) []float64 {
	t.Helper()
	out := append([]float64(nil), in...)
	for start := 0; start < len(out); start += chunk {
		end := min(start+chunk, len(out))
		f.ProcessBlock([][]float64{out[start:end]})
	}
	return out
}

func TestOnesMaskIsIdentityAfterLatency(t *testing.T) {
	f, err := NewMaskFilter(1, 512)
	if err != nil {
		t.Fatalf("NewMaskFilter: %v", err)
	}
	in := sine(1000, 44100, 8192)
	out := runFilter(t, f, in, 100)
	lat := f.Latency()
	if lat != 512 {
		t.Fatalf("Latency=%d, want 512", lat)
	}
	var maxErr float64
	for i := 2 * lat; i < len(in); i++ {
		maxErr = math.Max(maxErr, math.Abs(out[i]-in[i-lat]))
	}
	if maxErr > 0.01 {
		t.Fatalf("ones mask reconstruction error %g", maxErr)
	}
}

func TestZerosMaskIsSilent(t *testing.T) {
	f, err := NewMaskFilter(1, 256)
	if err != nil {
		t.Fatalf("NewMaskFilter: %v", err)
	}
	m := NewMask(128)
	m.Fill(0)
	if err := f.SetMask(m); err != nil {
		t.Fatalf("SetMask: %v", err)
	}
	out := runFilter(t, f, sine(440, 44100, 4096), 64)
	for i, v := range out {
		if math.Abs(v) > 1e-9 {
			t.Fatalf("sample %d=%g, want silence", i, v)
		}
	}
}

func TestMaskAttenuatesSelectedBins(t *testing.T) {
	const sr = 44100.0
	f, err := NewMaskFilter(2, 1024)
	if err != nil {
		t.Fatalf("NewMaskFilter: %v", err)
	}
	m := NewMask(512)
	for i := range m {
		if m.BinFreq(i, sr) > 4000 {
			m[i] = 0
		}
	}
	if err := f.SetMask(m); err != nil {
		t.Fatalf("SetMask: %v", err)
	}
	low := sine(500, sr, 16384)
	high := sine(10000, sr, 16384)
	f.ProcessBlock([][]float64{low, high})

	tail := func(x []float64) float64 {
		var peak float64
		for _, v := range x[len(x)-4096:] {
			peak = math.Max(peak, math.Abs(v))
		}
		return peak
	}
	if p := tail(low); math.Abs(p-1) > 0.02 {
		t.Fatalf("passband peak=%g, want ~1", p)
	}
	if p := tail(high); p > 0.01 {
		t.Fatalf("stopband peak=%g, want ~0", p)
	}
}

func TestDryMixIsDelayedInput(t *testing.T) {
	f, err := NewMaskFilter(1, 64)
	if err != nil {
		t.Fatalf("NewMaskFilter: %v", err)
	}
	f.SetMix(0)
	in := sine(300, 8000, 512)
	out := runFilter(t, f, in, 17)
	for i := 64; i < len(in); i++ {
		if out[i] != in[i-64] {
			t.Fatalf("dry sample %d=%g, want %g", i, out[i], in[i-64])
		}
	}
}

func TestBlockSizeAndMaskValidation(t *testing.T) {
	f, err := NewMaskFilter(1, 2048)
	if err != nil {
		t.Fatalf("NewMaskFilter: %v", err)
	}
	for _, n := range []int{0, 2, 100, 4096} {
		if err := f.SetBlockSize(n); !errors.Is(err, ErrBlockSize) {
			t.Fatalf("SetBlockSize(%d) err=%v", n, err)
		}
	}
	if err := f.SetBlockSize(256); err != nil {
		t.Fatalf("SetBlockSize(256): %v", err)
	}
	if f.Latency() != 256 || len(f.Mask()) != 128 {
		t.Fatalf("latency=%d mask=%d after resize", f.Latency(), len(f.Mask()))
	}
	if err := f.SetMask(NewMask(256)); !errors.Is(err, ErrMaskLength) {
		t.Fatalf("SetMask wrong length err=%v", err)
	}
	if err := f.SetBlockSize(2048); err != nil {
		t.Fatalf("SetBlockSize back to max: %v", err)
	}
	if len(f.plans) != 2 {
		t.Fatalf("plans cached=%d, want 2", len(f.plans))
	}
	if _, err := NewMaskFilter(1, 32768); err == nil {
		t.Fatalf("expected error above MaxBlockSize")
	}
}

func TestMaskResample(t *testing.T) {
	dst := make(Mask, 5)
	dst.Resample(Mask{0, 1, 0})
	want := []float64{0, 0.5, 1, 0.5, 0}
	for i := range want {
		if math.Abs(dst[i]-want[i]) > 1e-12 {
			t.Fatalf("Resample=%v, want %v", dst, want)
		}
	}
}
