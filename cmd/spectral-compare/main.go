package main

import (
	"fmt"
	"math"
	"os"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/internal/wavio"
)

// CLI defines the command-line interface.
type CLI struct {
	Reference string `arg:"" help:"Reference WAV file" type:"existingfile"`
	Candidate string `arg:"" help:"Candidate WAV file" type:"existingfile"`
	Align     bool   `help:"Align the candidate to the reference by their peaks" default:"true" negatable:""`
	LogLevel  string `help:"Log level (${enum})" enum:"debug,info,warn,error" default:"info"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("spectral-compare"),
		kong.Description("Compare two WAV files band by band over the course of a note."),
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

func run(cli *CLI, log logrus.FieldLogger) error {
	ref, refRate, err := wavio.ReadMono(cli.Reference)
	if err != nil {
		return fmt.Errorf("reading reference: %w", err)
	}
	cand, candRate, err := wavio.ReadMono(cli.Candidate)
	if err != nil {
		return fmt.Errorf("reading candidate: %w", err)
	}
	if candRate != refRate {
		log.WithFields(logrus.Fields{"from": candRate, "to": refRate}).Info("resampling candidate")
		if cand, err = wavio.Resample(cand, candRate, refRate); err != nil {
			return err
		}
	}
	sr := refRate
	fmt.Printf("Reference: %d frames @ %d Hz (%.2fs)\n", len(ref), sr, float64(len(ref))/float64(sr))
	fmt.Printf("Candidate: %d frames @ %d Hz (%.2fs)\n", len(cand), sr, float64(len(cand))/float64(sr))

	refPeak, refAt := peak(ref)
	candPeak, candAt := peak(cand)
	fmt.Printf("Peak levels: ref=%.1f dB  cand=%.1f dB  diff=%+.1f dB\n",
		analysis.MagToDB(refPeak), analysis.MagToDB(candPeak),
		analysis.MagToDB(candPeak)-analysis.MagToDB(refPeak))

	if cli.Align {
		lag := candAt - refAt
		switch {
		case lag > 0 && lag < len(cand):
			cand = cand[lag:]
		case lag < 0 && -lag < len(ref):
			ref = ref[-lag:]
		}
		fmt.Printf("Aligned by %d samples (%.1f ms)\n", lag, float64(lag)/float64(sr)*1000)
	}
	fmt.Println()

	diffs, err := analysis.BandReport(ref, cand, sr, analysis.DefaultWindows, analysis.DefaultBands)
	if err != nil {
		return err
	}
	window := ""
	for _, d := range diffs {
		if d.Window != window {
			if window != "" {
				fmt.Println()
			}
			window = d.Window
			fmt.Printf("--- %s ---\n", window)
		}
		marker := ""
		switch {
		case d.RMSEDB > 25:
			marker = " <<< !!!"
		case d.RMSEDB > 15:
			marker = " <<<"
		}
		fmt.Printf("  %-10s RMSE=%5.1fdB  ref=%6.1fdB  cand=%6.1fdB  diff=%+5.1fdB%s\n",
			d.Band, d.RMSEDB, d.RefDB, d.CandDB, d.DiffDB(), marker)
	}

	m := analysis.Compare(ref, cand, sr)
	fmt.Printf("\nScore=%.4f  similarity=%.2f%%  spectral=%.1fdB  envelope=%.1fdB  decay diff=%.1fdB/s\n",
		m.Score, m.Similarity*100, m.SpectralRMSEDB, m.EnvelopeRMSEDB, m.DecayDiffDBPerS)
	return nil
}

func peak(x []float64) (float64, int) {
	p, at := 0.0, 0
	for i, v := range x {
		if a := math.Abs(v); a > p {
			p, at = a, i
		}
	}
	return p, at
}
