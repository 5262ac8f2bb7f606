package main

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/internal/offline"
	"github.com/cwbudde/algo-synth/internal/wavio"
	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/synth"
)

// CLI defines the command-line interface.
type CLI struct {
	Reference    string  `arg:"" help:"Reference WAV file to fit" type:"existingfile"`
	Preset       string  `short:"p" help:"Base preset JSON file" type:"existingfile"`
	Output       string  `short:"o" help:"Fitted preset JSON file" default:"fitted.json" type:"path"`
	Report       string  `help:"Report JSON file (default: <output>.report.json)" type:"path"`
	RenderBest   string  `help:"Also write the best candidate to this WAV file" type:"path"`
	Optimize     string  `help:"Comma separated knob groups: tone, envelope, drive, resonator" default:"tone,envelope"`
	Note         int     `help:"MIDI note the reference plays" default:"60"`
	ReleaseAfter float64 `help:"Seconds before note off" default:"0.5"`
	SampleRate   int     `help:"Render and analysis sample rate" default:"44100"`
	Generator    string  `help:"Oscillator (${enum})" enum:"noise,saw,sine" default:"saw"`
	Oversampling int     `help:"Oversampling factor while fitting" default:"1"`
	Seed         int64   `help:"Random seed" default:"1"`
	TimeBudget   float64 `help:"Optimization time budget in seconds" default:"120"`
	MaxEvals     int     `help:"Maximum objective evaluations" default:"2000"`
	ReportEvery  int     `help:"Log progress every N evaluations" default:"20"`
	DecayDBFS    float64 `name:"decay-dbfs" help:"Stop renders once the output stays below this level" default:"-90"`
	MaxDuration  float64 `help:"Maximum render duration in seconds" default:"6"`
	Workers      string  `help:"Parallel workers running independent Mayfly rounds (number or 'auto')" default:"1"`
	TopK         int     `help:"Top candidates kept in the report" default:"5"`
	Resume       bool    `help:"Start from best_knobs of an existing report" default:"true" negatable:""`

	MayflyVariant string `help:"Mayfly variant (${enum})" enum:"ma,desma,olce,eobbma,gsasma,mpma,aoblmoa" default:"desma"`
	MayflyPop     int    `help:"Male and female population size per Mayfly round" default:"10"`
	MayflyRound   int    `help:"Eval budget per Mayfly round" default:"240"`

	LogLevel string `help:"Log level (${enum})" enum:"debug,info,warn,error" default:"info"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("synth-fit"),
		kong.Description("Fit synth preset parameters to a reference recording of one note."),
		kong.UsageOnError(),
	)

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, _ := logrus.ParseLevel(cli.LogLevel)
	log.SetLevel(level)

	if err := run(&cli, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cli *CLI, log *logrus.Logger) error {
	groups, err := parseOptimizeGroups(cli.Optimize)
	if err != nil {
		return fmt.Errorf("invalid --optimize: %w", err)
	}
	if cli.Note < 0 || cli.Note > 127 {
		return fmt.Errorf("note must be in [0,127]")
	}
	if cli.MaxEvals < 1 {
		return fmt.Errorf("max-evals must be >= 1")
	}
	if cli.TimeBudget <= 0 {
		return fmt.Errorf("time-budget must be > 0")
	}
	workers, err := parseWorkers(cli.Workers)
	if err != nil {
		return fmt.Errorf("invalid --workers: %w", err)
	}
	gen, err := synth.ParseGenerator(cli.Generator)
	if err != nil {
		return err
	}
	reportPath := cli.Report
	if reportPath == "" {
		reportPath = defaultReportPath(cli.Output)
	}

	var base *preset.File
	if cli.Preset != "" {
		if base, err = preset.LoadJSON(cli.Preset); err != nil {
			return fmt.Errorf("loading preset: %w", err)
		}
	}

	ref, rate, err := wavio.ReadMono(cli.Reference)
	if err != nil {
		return fmt.Errorf("reading reference: %w", err)
	}
	if rate != cli.SampleRate {
		if ref, err = wavio.Resample(ref, rate, cli.SampleRate); err != nil {
			return fmt.Errorf("resampling reference: %w", err)
		}
	}

	defs, first := initCandidate(base, groups)
	if cli.Resume {
		var resumed bool
		if first, resumed, err = loadResumeKnobs(reportPath, defs, first); err != nil {
			log.WithError(err).Warn("ignoring resume report")
		} else if resumed {
			log.WithField("report", reportPath).Info("resuming from previous best")
		}
	}

	render := offline.DefaultOptions()
	render.MaxDuration = max(cli.MaxDuration, cli.ReleaseAfter)
	render.MinDuration = cli.ReleaseAfter
	render.DecayDBFS = min(cli.DecayDBFS, 0)
	pop := max(cli.MayflyPop, 2)

	cfg := &optimizationConfig{
		reference:     ref,
		base:          base,
		defs:          defs,
		initCandidate: first,
		note:          uint8(cli.Note),
		releaseAfter:  max(cli.ReleaseAfter, 0.05),
		sampleRate:    cli.SampleRate,
		generator:     gen,
		oversampling:  cli.Oversampling,
		seed:          cli.Seed,
		timeBudget:    time.Duration(cli.TimeBudget * float64(time.Second)),
		maxEvals:      cli.MaxEvals,
		reportEvery:   max(cli.ReportEvery, 1),
		render:        render,
		mayflyVariant: cli.MayflyVariant,
		mayflyPop:     pop,
		mayflyRounds:  max(cli.MayflyRound, 2*pop),
		workers:       workers,
		topK:          max(cli.TopK, 1),
		log:           log,
	}

	report := func(best candidate, m analysis.Metrics, evals, improves int, elapsed time.Duration, top []topCandidate) runReport {
		return runReport{
			ReferencePath:  cli.Reference,
			PresetPath:     cli.Preset,
			OutputPreset:   cli.Output,
			SampleRate:     cli.SampleRate,
			Note:           cli.Note,
			ReleaseAfter:   cfg.releaseAfter,
			ElapsedSec:     elapsed.Seconds(),
			Evaluations:    evals,
			Improvements:   improves,
			MayflyVariant:  cli.MayflyVariant,
			BestScore:      m.Score,
			BestSimilarity: m.Similarity,
			BestMetrics:    m,
			BestKnobs:      knobMap(defs, best),
			TopCandidates:  top,
		}
	}

	// Checkpoint on every improvement so an interrupted run keeps its best.
	start := time.Now()
	var writeMu sync.Mutex
	improves := 0
	cfg.onImprove = func(best candidate, m analysis.Metrics, evals int, top []topCandidate) {
		writeMu.Lock()
		defer writeMu.Unlock()
		improves++
		r := report(best, m, evals, improves, time.Since(start), top)
		if err := writeOutputs(cli.Output, reportPath, applyCandidate(base, defs, best), r); err != nil {
			log.WithError(err).Warn("checkpoint write failed")
		}
	}

	res, err := runOptimization(cfg)
	if err != nil {
		return err
	}
	fitted := applyCandidate(base, defs, res.best)
	if err := writeOutputs(cli.Output, reportPath, fitted, report(res.best, res.bestMetrics, res.evals, res.improves, res.elapsed, res.top)); err != nil {
		return fmt.Errorf("writing outputs: %w", err)
	}
	log.WithFields(logrus.Fields{
		"evals":      res.evals,
		"elapsed":    res.elapsed.Round(time.Millisecond),
		"score":      res.bestMetrics.Score,
		"similarity": fmt.Sprintf("%.2f%%", res.bestMetrics.Similarity*100),
	}).Infof("wrote %s and %s", cli.Output, reportPath)

	if cli.RenderBest != "" {
		mono, err := renderCandidate(cfg, res.best)
		if err != nil {
			return fmt.Errorf("rendering best: %w", err)
		}
		if err := wavio.WriteMono(cli.RenderBest, mono, cli.SampleRate); err != nil {
			return fmt.Errorf("writing %s: %w", cli.RenderBest, err)
		}
	}
	return nil
}

// parseWorkers accepts a positive count or "auto" for GOMAXPROCS.
func parseWorkers(raw string) (int, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" || v == "auto" {
		return runtime.GOMAXPROCS(0), nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("must be a positive integer or 'auto'")
	}
	if n < 1 || n > math.MaxInt16 {
		return 0, fmt.Errorf("must be >= 1")
	}
	return n, nil
}
