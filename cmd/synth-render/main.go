package main

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-synth/internal/offline"
	"github.com/cwbudde/algo-synth/internal/wavio"
	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/synth"
)

// CLI defines the command-line interface.
type CLI struct {
	Output     string  `short:"o" help:"Output WAV file" default:"output.wav" type:"path"`
	Notes      string  `short:"n" help:"Note script, comma separated key@start:duration in seconds" default:"69@0:1"`
	Preset     string  `short:"p" help:"Preset JSON file" type:"path"`
	Mask       string  `help:"Mask JSON file as written by mask-gen" type:"path"`
	SampleRate int     `help:"Render sample rate in Hz" default:"44100"`
	Generator  string  `short:"g" help:"Oscillator (${enum})" enum:"noise,saw,sine" default:"noise"`
	Polyphony  int     `help:"Voice slots" default:"16"`
	Seed       uint64  `help:"Random seed for noise and resonator layout" default:"1"`
	Tail       float64 `help:"Seconds rendered after the last note off" default:"1"`
	Duration   float64 `help:"Fixed duration in seconds, overrides the note script end plus tail" default:"0"`
	DecayDBFS  float64 `name:"decay-dbfs" help:"Stop once the output stays below this level (negative dBFS, 0 disables)" default:"0"`
	LogLevel   string  `help:"Log level (${enum})" enum:"debug,info,warn,error" default:"info"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("synth-render"),
		kong.Description("Render a note script through the synth engine to a WAV file."),
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
	notes, err := offline.ParseScript(cli.Notes)
	if err != nil {
		return err
	}
	gen, err := synth.ParseGenerator(cli.Generator)
	if err != nil {
		return err
	}

	cfg := synth.DefaultConfig()
	cfg.SampleRate = float64(cli.SampleRate)
	cfg.Generator = gen
	cfg.Polyphony = cli.Polyphony
	cfg.Seed = cli.Seed
	cfg.Logger = log
	e, err := synth.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	if cli.Preset != "" {
		f, err := preset.LoadJSON(cli.Preset)
		if err != nil {
			return fmt.Errorf("loading preset %q: %w", cli.Preset, err)
		}
		if err := preset.ApplyToEngine(e, f); err != nil {
			return fmt.Errorf("applying preset %q: %w", cli.Preset, err)
		}
	}
	if cli.Mask != "" {
		m, err := preset.LoadMask(cli.Mask)
		if err != nil {
			return fmt.Errorf("loading mask %q: %w", cli.Mask, err)
		}
		in := e.MaskInput()
		slot := in.WriteSlot()
		*slot = append((*slot)[:0], m.Bins...)
		in.Publish()
		e.Params().MaskEnabled.Store(true)
	}

	opt := offline.DefaultOptions()
	opt.MaxDuration = offline.End(notes) + cli.Tail
	if cli.Duration > 0 {
		opt.MaxDuration = cli.Duration
	}
	if cli.DecayDBFS < 0 {
		opt.DecayDBFS = cli.DecayDBFS
		opt.MinDuration = offline.End(notes)
	}

	log.WithFields(logrus.Fields{
		"notes":       len(notes),
		"sample_rate": cli.SampleRate,
		"max_seconds": opt.MaxDuration,
		"generator":   gen,
	}).Info("rendering")

	left, right, err := offline.Render(e, notes, opt)
	if err != nil {
		return err
	}

	// Drop the chain latency so note starts line up with the script.
	if lat := e.Latency(); lat > 0 && lat < len(left) {
		left, right = left[lat:], right[lat:]
	}

	path := cli.Output
	if !strings.HasSuffix(strings.ToLower(path), ".wav") {
		path += ".wav"
	}
	if err := wavio.WriteInterleaved(path, offline.Interleave(left, right), 2, cli.SampleRate); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	st := e.Stats()
	log.WithFields(logrus.Fields{
		"frames":        len(left),
		"seconds":       float64(len(left)) / float64(cli.SampleRate),
		"rms_dbfs":      dbfs(wavio.RMS(wavio.Mix(left, right))),
		"idle_blocks":   st.IdleSkipped,
		"dropped_notes": st.DroppedEvents,
	}).Infof("wrote %s", path)
	return nil
}

func dbfs(rms float64) float64 {
	return 20 * math.Log10(math.Max(rms, 1e-12))
}
