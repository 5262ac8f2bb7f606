package main

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/mayfly"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/internal/offline"
	"github.com/cwbudde/algo-synth/internal/wavio"
	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/spectral"
	"github.com/cwbudde/algo-synth/synth"
)

type topCandidate struct {
	Eval       int                `json:"eval"`
	Score      float64            `json:"score"`
	Similarity float64            `json:"similarity"`
	Knobs      map[string]float64 `json:"knobs"`
}

type optimizationConfig struct {
	reference     []float64
	base          *preset.File
	defs          []knobDef
	initCandidate candidate
	note          uint8
	releaseAfter  float64
	sampleRate    int
	generator     synth.GeneratorKind
	oversampling  int
	seed          int64
	timeBudget    time.Duration
	maxEvals      int
	reportEvery   int
	render        offline.Options
	mayflyVariant string
	mayflyPop     int
	mayflyRounds  int // eval budget per round
	workers       int
	topK          int
	log           logrus.FieldLogger
	onImprove     func(best candidate, m analysis.Metrics, evals int, top []topCandidate)
}

type optimizationResult struct {
	best        candidate
	bestMetrics analysis.Metrics
	top         []topCandidate
	evals       int
	improves    int
	elapsed     time.Duration
}

type optimizationState struct {
	mu       sync.Mutex
	best     candidate
	bestM    analysis.Metrics
	top      []topCandidate
	improves int
}

// runOptimization runs independent Mayfly rounds on cfg.workers goroutines
// until the eval or time budget is spent. Every round searches the whole
// normalized knob space; the best candidate is shared through state.
func runOptimization(cfg *optimizationConfig) (*optimizationResult, error) {
	start := time.Now()
	deadline := start.Add(cfg.timeBudget)
	variant := strings.ToLower(cfg.mayflyVariant)
	if _, err := newMayflyConfig(variant, cfg.mayflyPop, len(cfg.defs), 1); err != nil {
		return nil, err
	}

	initM, err := evaluateCandidate(cfg, cfg.initCandidate)
	if err != nil {
		return nil, fmt.Errorf("initial evaluation failed: %w", err)
	}
	cfg.log.WithFields(logrus.Fields{
		"score":      initM.Score,
		"similarity": initM.Similarity,
	}).Info("start")

	state := &optimizationState{
		best:  cloneCandidate(cfg.initCandidate),
		bestM: initM,
		top:   updateTopCandidates(nil, cfg.topK, 1, initM, cfg.defs, cfg.initCandidate),
	}

	var evals int64 = 1
	var rounds int64
	workers := cfg.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				remaining := cfg.maxEvals - int(atomic.LoadInt64(&evals))
				if remaining <= 0 {
					return
				}
				round := atomic.AddInt64(&rounds, 1)
				budget := min(cfg.mayflyRounds, remaining)
				iters := max(1, budget/(2*cfg.mayflyPop))

				mc, err := newMayflyConfig(variant, cfg.mayflyPop, len(cfg.defs), iters)
				if err != nil {
					return
				}
				mc.Rand = rand.New(rand.NewSource(cfg.seed + round*7919))
				mc.ObjectiveFunc = func(pos []float64) float64 {
					if time.Now().After(deadline) {
						return currentBestScore(state) + 1
					}
					evalNum, ok := reserveEval(&evals, cfg.maxEvals)
					if !ok {
						return currentBestScore(state) + 1
					}
					cand := fromNormalized(pos, cfg.defs)
					m, err := evaluateCandidate(cfg, cand)
					if err != nil {
						cfg.log.WithError(err).Debug("candidate failed")
						return currentBestScore(state) + 0.8
					}
					recordResult(cfg, state, int(evalNum), cand, m)
					if cfg.reportEvery > 0 && evalNum%int64(cfg.reportEvery) == 0 {
						cfg.log.WithFields(logrus.Fields{
							"eval":    evalNum,
							"max":     cfg.maxEvals,
							"elapsed": time.Since(start).Round(time.Millisecond),
							"best":    currentBestScore(state),
						}).Info("progress")
					}
					return m.Score
				}
				if _, err := runMayfly(mc); err != nil {
					cfg.log.WithError(err).WithField("round", round).Warn("mayfly round failed")
				}
			}
		}()
	}
	wg.Wait()

	state.mu.Lock()
	defer state.mu.Unlock()
	return &optimizationResult{
		best:        cloneCandidate(state.best),
		bestMetrics: state.bestM,
		top:         cloneTopCandidates(state.top),
		evals:       int(atomic.LoadInt64(&evals)),
		improves:    state.improves,
		elapsed:     time.Since(start),
	}, nil
}

func recordResult(cfg *optimizationConfig, state *optimizationState, evalNum int, cand candidate, m analysis.Metrics) {
	state.mu.Lock()
	state.top = updateTopCandidates(state.top, cfg.topK, evalNum, m, cfg.defs, cand)
	if m.Score >= state.bestM.Score {
		state.mu.Unlock()
		return
	}
	state.best = cloneCandidate(cand)
	state.bestM = m
	state.improves++
	best, top, improves := state.best, cloneTopCandidates(state.top), state.improves
	state.mu.Unlock()

	cfg.log.WithFields(logrus.Fields{
		"improve":    improves,
		"eval":       evalNum,
		"score":      m.Score,
		"similarity": m.Similarity,
	}).Info("improved")
	if cfg.onImprove != nil {
		cfg.onImprove(best, m, evalNum, top)
	}
}

// evaluateCandidate renders the fitted note with cand applied and scores
// it against the reference.
func evaluateCandidate(cfg *optimizationConfig, cand candidate) (analysis.Metrics, error) {
	mono, err := renderCandidate(cfg, cand)
	if err != nil {
		return analysis.Metrics{}, err
	}
	return analysis.Compare(cfg.reference, mono, cfg.sampleRate), nil
}

func renderCandidate(cfg *optimizationConfig, cand candidate) ([]float64, error) {
	f := applyCandidate(cfg.base, cfg.defs, cand)

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	ec := synth.DefaultConfig()
	ec.SampleRate = float64(cfg.sampleRate)
	ec.Generator = cfg.generator
	ec.Oversampling = cfg.oversampling
	ec.MaxOversampling = cfg.oversampling
	ec.Seed = uint64(cfg.seed)
	ec.Logger = quiet
	if f.Mask == nil {
		ec.MaskMaxBlockSize = spectral.MinBlockSize
		ec.MaskBlockSize = spectral.MinBlockSize
	}
	if f.Oversampling != nil {
		ec.MaxOversampling = max(ec.MaxOversampling, *f.Oversampling)
	}
	if f.Resonator != nil && f.Resonator.Count != nil {
		ec.ResonatorMax = max(ec.ResonatorMax, *f.Resonator.Count)
	}
	e, err := synth.NewEngine(ec)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	if err := preset.ApplyToEngine(e, f); err != nil {
		return nil, err
	}
	left, right, err := offline.Render(e, []offline.Note{{Key: cfg.note, Duration: cfg.releaseAfter}}, cfg.render)
	if err != nil {
		return nil, err
	}
	return wavio.Mix(left, right), nil
}

func newMayflyConfig(variant string, pop int, dims int, iters int) (*mayfly.Config, error) {
	var cfg *mayfly.Config
	switch variant {
	case "ma":
		cfg = mayfly.NewDefaultConfig()
	case "desma":
		cfg = mayfly.NewDESMAConfig()
	case "olce":
		cfg = mayfly.NewOLCEConfig()
	case "eobbma":
		cfg = mayfly.NewEOBBMAConfig()
	case "gsasma":
		cfg = mayfly.NewGSASMAConfig()
	case "mpma":
		cfg = mayfly.NewMPMAConfig()
	case "aoblmoa":
		cfg = mayfly.NewAOBLMOAConfig()
	default:
		return nil, fmt.Errorf("unsupported mayfly variant %q", variant)
	}
	cfg.ProblemSize = dims
	cfg.LowerBound = 0
	cfg.UpperBound = 1
	cfg.MaxIterations = iters
	cfg.NPop = pop
	cfg.NPopF = pop
	cfg.NC = 2 * pop
	cfg.NM = max(1, int(math.Round(0.05*float64(pop))))
	return cfg, nil
}

func runMayfly(cfg *mayfly.Config) (_ *mayfly.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mayfly panic: %v", r)
		}
	}()
	return mayfly.Optimize(cfg)
}

func reserveEval(evals *int64, maxEvals int) (int64, bool) {
	for {
		cur := atomic.LoadInt64(evals)
		if cur >= int64(maxEvals) {
			return 0, false
		}
		if atomic.CompareAndSwapInt64(evals, cur, cur+1) {
			return cur + 1, true
		}
	}
}

func currentBestScore(state *optimizationState) float64 {
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.bestM.Score
}

func updateTopCandidates(top []topCandidate, topK int, eval int, m analysis.Metrics, defs []knobDef, cand candidate) []topCandidate {
	top = append(top, topCandidate{
		Eval:       eval,
		Score:      m.Score,
		Similarity: m.Similarity,
		Knobs:      knobMap(defs, cand),
	})
	sort.Slice(top, func(i, j int) bool {
		if top[i].Score == top[j].Score {
			return top[i].Eval < top[j].Eval
		}
		return top[i].Score < top[j].Score
	})
	if len(top) > topK {
		top = top[:topK]
	}
	return top
}

func cloneTopCandidates(top []topCandidate) []topCandidate {
	out := make([]topCandidate, len(top))
	copy(out, top)
	return out
}
