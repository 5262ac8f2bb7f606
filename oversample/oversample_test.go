package oversample

import (
	"errors"
	"math"
	"testing"
)

func TestStageLatencies(t *testing.T) {
	o, err := New(1, 64, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := map[int]int{1: 0, 2: 5, 4: 8, 8: 10, 16: 11}
	for factor, lat := range want {
		if got := o.Latency(factor); got != lat {
			t.Fatalf("Latency(%d)=%d, want %d", factor, got, lat)
		}
	}
}

func TestRoundTripReproducesSine(t *testing.T) {
	const (
		sr    = 44100.0
		freq  = 1000.0
		block = 64
		total = 4096
	)
	for _, factor := range []int{2, 4, 8, 16} {
		o, err := New(2, block, 4)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		in := make([]float64, total)
		for i := range in {
			in[i] = math.Sin(2 * math.Pi * freq * float64(i) / sr)
		}
		out := make([]float64, total)
		left := make([]float64, block)
		right := make([]float64, block)
		calls := 0
		for start := 0; start < total; start += block {
			copy(left, in[start:start+block])
			copy(right, in[start:start+block])
			err := o.Process([][]float64{left, right}, factor, func(up [][]float64) {
				calls++
				if len(up) != 2 || len(up[0]) != block*factor {
					t.Fatalf("factor %d: inner got %d x %d", factor, len(up), len(up[0]))
				}
			})
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			copy(out[start:], left)
			for i := range left {
				if left[i] != right[i] {
					t.Fatalf("channels diverged at %d", start+i)
				}
			}
		}
		if calls != total/block {
			t.Fatalf("inner called %d times, want %d", calls, total/block)
		}

		lat := o.Latency(factor)
		var maxErr float64
		for i := 256; i < total; i++ {
			maxErr = math.Max(maxErr, math.Abs(out[i]-in[i-lat]))
		}
		if maxErr > 0.05 {
			t.Fatalf("factor %d: round trip error %g", factor, maxErr)
		}
	}
}

func TestInnerRunsAtHigherRate(t *testing.T) {
	o, err := New(1, 32, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	block := make([]float64, 32)
	for i := range block {
		block[i] = 1
	}
	for i := 0; i < 8; i++ {
		if err := o.Process([][]float64{block}, 4, func(up [][]float64) {
			for j := range up[0] {
				up[0][j] *= 0.5
			}
		}); err != nil {
			t.Fatalf("Process: %v", err)
		}
		for j := range block {
			block[j] = 1
		}
	}
	if err := o.Process([][]float64{block}, 4, func(up [][]float64) {
		for j := range up[0] {
			up[0][j] *= 0.5
		}
	}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if math.Abs(block[31]-0.5) > 0.02 {
		t.Fatalf("dc through halving inner=%g, want ~0.5", block[31])
	}
}

func TestProcessValidation(t *testing.T) {
	o, err := New(1, 16, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	noop := func([][]float64) {}
	if err := o.Process([][]float64{make([]float64, 16)}, 3, noop); !errors.Is(err, ErrFactor) {
		t.Fatalf("factor 3 err=%v", err)
	}
	if err := o.Process([][]float64{make([]float64, 16)}, 8, noop); !errors.Is(err, ErrFactor) {
		t.Fatalf("factor above max err=%v", err)
	}
	if err := o.Process([][]float64{make([]float64, 32)}, 2, noop); !errors.Is(err, ErrBlockSize) {
		t.Fatalf("oversized block err=%v", err)
	}
	if err := o.Process([][]float64{make([]float64, 4), make([]float64, 4)}, 2, noop); !errors.Is(err, ErrChannels) {
		t.Fatalf("channel mismatch err=%v", err)
	}
	if err := o.SetChannels(2); err != nil {
		t.Fatalf("SetChannels: %v", err)
	}
	if err := o.Process([][]float64{make([]float64, 4), make([]float64, 4)}, 2, noop); err != nil {
		t.Fatalf("Process after SetChannels: %v", err)
	}
	if _, err := New(1, 16, 5); err == nil {
		t.Fatalf("expected error for 32x")
	}
}
