package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-synth/maskgen"
	"github.com/cwbudde/algo-synth/preset"
)

// CLI defines the command-line interface.
type CLI struct {
	Output     string  `short:"o" help:"Output mask JSON file" default:"mask.json" type:"path"`
	Bins       int     `help:"Mask length, power of two" default:"1024"`
	Smoothness float64 `help:"Correlation length across frequency in bins" default:"24"`
	Rate       float64 `help:"Evolution speed of the broad shape in 1/s" default:"0.5"`
	Floor      float64 `help:"Lowest gain" default:"0"`
	Ceil       float64 `help:"Highest gain" default:"1"`
	Seed       uint64  `help:"Random seed" default:"1"`
	Evolve     float64 `help:"Seconds to evolve the field before writing" default:"0"`
	Steps      int     `help:"Steps used to cover --evolve" default:"100"`
	SampleRate float64 `help:"Sample rate recorded in the file, informational" default:"44100"`
	LogLevel   string  `help:"Log level (${enum})" enum:"debug,info,warn,error" default:"info"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("mask-gen"),
		kong.Description("Generate a smooth random spectral mask for synth-render and presets."),
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
	gen, err := maskgen.New(maskgen.Config{
		Bins:       cli.Bins,
		Smoothness: cli.Smoothness,
		Rate:       cli.Rate,
		Floor:      cli.Floor,
		Ceil:       cli.Ceil,
		Seed:       cli.Seed,
		Logger:     log,
	})
	if err != nil {
		return err
	}
	if cli.Evolve > 0 {
		steps := max(cli.Steps, 1)
		dt := cli.Evolve / float64(steps)
		for range steps {
			if _, err := gen.Step(dt); err != nil {
				return err
			}
		}
	}

	m := gen.Mask()
	lo, hi, mean := m[0], m[0], 0.0
	for _, g := range m {
		lo, hi = min(lo, g), max(hi, g)
		mean += g
	}
	mean /= float64(len(m))

	if err := preset.SaveMask(cli.Output, &preset.MaskFile{SampleRate: cli.SampleRate, Bins: m}); err != nil {
		return fmt.Errorf("writing %s: %w", cli.Output, err)
	}
	log.WithFields(logrus.Fields{
		"bins":  len(m),
		"min":   lo,
		"max":   hi,
		"mean":  mean,
		"steps": gen.Steps(),
	}).Infof("wrote %s", cli.Output)
	return nil
}
