package maskgen

import (
	"context"
	"io"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-synth/internal/triple"
	"github.com/cwbudde/algo-synth/spectral"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Bins = 256
	l := logrus.New()
	l.SetOutput(io.Discard)
	cfg.Logger = l
	return cfg
}

func roughness(m spectral.Mask) float64 {
	var sum float64
	for i := 1; i < len(m); i++ {
		d := m[i] - m[i-1]
		sum += d * d
	}
	return sum / float64(len(m)-1)
}

func TestMaskStaysWithinBounds(t *testing.T) {
	cfg := testConfig()
	cfg.Floor, cfg.Ceil = 0.2, 0.8
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for range 20 {
		m, err := g.Step(0.1)
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		for i, v := range m {
			if v < 0.2 || v > 0.8 {
				t.Fatalf("bin %d = %v outside [0.2, 0.8]", i, v)
			}
		}
	}
}

func TestMaskIsDeterministicPerSeed(t *testing.T) {
	a, _ := New(testConfig())
	b, _ := New(testConfig())
	cfg := testConfig()
	cfg.Seed = 7
	c, _ := New(cfg)
	if !slices.Equal(a.Mask(), b.Mask()) {
		t.Fatalf("same seed gave different masks")
	}
	if slices.Equal(a.Mask(), c.Mask()) {
		t.Fatalf("different seeds gave the same mask")
	}
}

func TestSmoothnessReducesRoughness(t *testing.T) {
	rough := testConfig()
	rough.Smoothness = 0.5
	smooth := testConfig()
	smooth.Smoothness = 16
	gr, err := New(rough)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gs, err := New(smooth)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r, s := roughness(gr.Mask()), roughness(gs.Mask()); s >= r/4 {
		t.Fatalf("roughness smooth=%v rough=%v, want smooth much lower", s, r)
	}
}

func TestSmallStepsEvolveSlowly(t *testing.T) {
	g, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := slices.Clone(g.Mask())
	m, err := g.Step(0.001)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	var diff float64
	for i := range m {
		diff = math.Max(diff, math.Abs(m[i]-before[i]))
	}
	if diff == 0 {
		t.Fatalf("mask did not change")
	}
	if diff > 0.2 {
		t.Fatalf("1 ms step changed a bin by %v", diff)
	}
}

func TestRunPublishes(t *testing.T) {
	g, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := triple.New(func() spectral.Mask { return nil })
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := g.Run(ctx, out, 5*time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}
	m, fresh := out.Read()
	if !fresh || len(*m) != 256 {
		t.Fatalf("published mask len %d fresh %v", len(*m), fresh)
	}
	if g.Steps() == 0 {
		t.Fatalf("Run never stepped")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bins = 100
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for non power of two bins")
	}
	cfg = DefaultConfig()
	cfg.Floor, cfg.Ceil = 1, 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for floor > ceil")
	}
}
