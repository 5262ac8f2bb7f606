package main

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/internal/offline"
	"github.com/cwbudde/algo-synth/synth"
)

func TestReserveEvalStopsAtMax(t *testing.T) {
	var evals int64
	for i := 1; i <= 3; i++ {
		n, ok := reserveEval(&evals, 3)
		if !ok || n != int64(i) {
			t.Fatalf("reserve %d = %d, %v", i, n, ok)
		}
	}
	if _, ok := reserveEval(&evals, 3); ok {
		t.Fatal("reserved past max")
	}
}

func TestUpdateTopCandidatesKeepsBest(t *testing.T) {
	defs := []knobDef{{Name: "x", Min: 0, Max: 1}}
	var top []topCandidate
	for i, s := range []float64{0.5, 0.2, 0.9, 0.2, 0.1} {
		top = updateTopCandidates(top, 3, i+1, analysis.Metrics{Score: s}, defs, candidate{Vals: []float64{s}})
	}
	if len(top) != 3 {
		t.Fatalf("len = %d, want 3", len(top))
	}
	if top[0].Score != 0.1 || top[1].Eval != 2 || top[2].Eval != 4 {
		t.Fatalf("top = %+v", top)
	}
}

func TestNewMayflyConfigRejectsUnknownVariant(t *testing.T) {
	if _, err := newMayflyConfig("nope", 4, 3, 1); err == nil {
		t.Fatal("expected error")
	}
	cfg, err := newMayflyConfig("desma", 4, 3, 7)
	if err != nil {
		t.Fatalf("newMayflyConfig: %v", err)
	}
	if cfg.ProblemSize != 3 || cfg.MaxIterations != 7 || cfg.NPop != 4 || cfg.NC != 8 {
		t.Fatalf("config = %+v", cfg)
	}
}

func testOptimizationConfig(t *testing.T) *optimizationConfig {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	render := offline.DefaultOptions()
	render.MaxDuration = 0.3
	cfg := &optimizationConfig{
		note:          69,
		releaseAfter:  0.1,
		sampleRate:    44100,
		generator:     synth.GeneratorSaw,
		oversampling:  1,
		seed:          1,
		timeBudget:    time.Minute,
		render:        render,
		mayflyVariant: "ma",
		mayflyPop:     2,
		mayflyRounds:  4,
		workers:       1,
		topK:          3,
		log:           log,
	}
	cfg.defs, cfg.initCandidate = initCandidate(nil, map[string]bool{"tone": true})
	return cfg
}

func TestEvaluateCandidateMatchesOwnRender(t *testing.T) {
	cfg := testOptimizationConfig(t)
	ref, err := renderCandidate(cfg, cfg.initCandidate)
	if err != nil {
		t.Fatalf("renderCandidate: %v", err)
	}
	cfg.reference = ref
	m, err := evaluateCandidate(cfg, cfg.initCandidate)
	if err != nil {
		t.Fatalf("evaluateCandidate: %v", err)
	}
	if m.Score > 0.05 {
		t.Fatalf("self score = %f, want near 0", m.Score)
	}
}

func TestRunOptimizationRespectsEvalBudget(t *testing.T) {
	cfg := testOptimizationConfig(t)
	darker := cloneCandidate(cfg.initCandidate)
	darker.Vals[2] = 1500 // high_cutoff_hz
	ref, err := renderCandidate(cfg, darker)
	if err != nil {
		t.Fatalf("renderCandidate: %v", err)
	}
	cfg.reference = ref
	cfg.maxEvals = 6
	res, err := runOptimization(cfg)
	if err != nil {
		t.Fatalf("runOptimization: %v", err)
	}
	if res.evals > cfg.maxEvals {
		t.Fatalf("evals = %d, want <= %d", res.evals, cfg.maxEvals)
	}
	if len(res.top) == 0 || res.top[0].Score != res.bestMetrics.Score {
		t.Fatalf("top candidates %+v do not lead with best %f", res.top, res.bestMetrics.Score)
	}
}
