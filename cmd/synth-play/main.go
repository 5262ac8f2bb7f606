package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/cwbudde/algo-synth/maskgen"
	"github.com/cwbudde/algo-synth/midiin"
	"github.com/cwbudde/algo-synth/preset"
	"github.com/cwbudde/algo-synth/synth"
)

// CLI defines the command-line interface.
type CLI struct {
	Preset       string        `short:"p" help:"Preset JSON file" type:"existingfile"`
	Watch        bool          `short:"w" help:"Reload the preset when it changes"`
	SampleRate   int           `help:"Output sample rate in Hz" default:"48000"`
	Buffer       time.Duration `help:"Audio device buffer" default:"20ms"`
	Polyphony    int           `help:"Voice slots" default:"16"`
	Generator    string        `short:"g" help:"Oscillator (${enum})" enum:"noise,saw,sine" default:"noise"`
	Oversampling int           `help:"Initial oversampling factor" default:"4"`
	Seed         uint64        `help:"Random seed" default:"1"`
	Rerandomise  float64       `help:"Re-draw resonator pitches every N seconds (0 disables)" default:"0"`
	Octave       int           `help:"Keyboard octave, 4 puts 'a' on middle C" default:"4"`
	Hold         time.Duration `help:"How long a key sounds after its last repeat" default:"350ms"`
	Midi         string        `help:"MIDI input port name (substring match)"`
	MidiChannel  int           `help:"MIDI channel 1-16, 0 accepts all" default:"0"`
	ListMidi     bool          `help:"List MIDI input ports and exit"`
	MaskGen      bool          `help:"Drive the spectral mask from the generative mask source"`
	MaskRate     float64       `help:"Evolution speed of the generated mask in 1/s" default:"0.5"`
	Headless     bool          `help:"Run without the keyboard UI, even on a terminal"`
	LogLevel     string        `help:"Log level (${enum})" enum:"debug,info,warn,error" default:"info"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("synth-play"),
		kong.Description("Play the synth live from the computer keyboard or a MIDI controller."),
		kong.UsageOnError(),
	)

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, _ := logrus.ParseLevel(cli.LogLevel)
	log.SetLevel(level)

	if cli.ListMidi {
		for _, name := range midiin.PortNames() {
			fmt.Println(name)
		}
		return
	}

	if err := run(&cli, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cli *CLI, log *logrus.Logger) error {
	gen, err := synth.ParseGenerator(cli.Generator)
	if err != nil {
		return err
	}
	interactive := !cli.Headless && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))

	cfg := synth.DefaultConfig()
	cfg.SampleRate = float64(cli.SampleRate)
	cfg.Polyphony = cli.Polyphony
	cfg.Generator = gen
	cfg.Oversampling = cli.Oversampling
	cfg.Seed = cli.Seed
	cfg.ReRandomiseSeconds = cli.Rerandomise
	cfg.Analyzer = interactive
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if cli.Watch && cli.Preset != "" {
		g.Go(func() error {
			return preset.Watch(ctx, cli.Preset, log, func(f *preset.File) error {
				return preset.ApplyToEngine(e, f)
			})
		})
	}

	if cli.MaskGen {
		mcfg := maskgen.DefaultConfig()
		mcfg.Rate = cli.MaskRate
		mcfg.Seed = cli.Seed
		mcfg.Logger = log
		mg, err := maskgen.New(mcfg)
		if err != nil {
			return err
		}
		e.Params().MaskEnabled.Store(true)
		g.Go(func() error { return mg.Run(ctx, e.MaskInput(), 50*time.Millisecond) })
	}

	if cli.Midi != "" {
		in, err := midiin.FindIn(cli.Midi)
		if err != nil {
			return err
		}
		adapter := midiin.New(e.Queue(), e, midiin.Options{
			Channel:     cli.MidiChannel - 1,
			AllNotesOff: e.ReleaseAll,
			Logger:      log,
		})
		stopMIDI, err := adapter.Listen(in)
		if err != nil {
			return err
		}
		defer stopMIDI()
		log.WithField("port", in.String()).Info("listening for MIDI")
	}

	out, err := openAudio(e, cli.Buffer)
	if err != nil {
		return err
	}
	defer out.Close()

	if interactive {
		// Keep log lines from tearing the UI.
		log.SetLevel(logrus.ErrorLevel)
		p := tea.NewProgram(NewModel(e, cli.Hold, cli.Octave), tea.WithAltScreen(), tea.WithContext(ctx))
		g.Go(func() error {
			defer stop()
			_, err := p.Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		})
	} else {
		g.Go(func() error { return reportStats(ctx, e, log) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// reportStats logs engine counters until ctx is done.
func reportStats(ctx context.Context, e *synth.Engine, log logrus.FieldLogger) error {
	log.Info("running headless, press Ctrl+C to stop")
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			st := e.Stats()
			log.WithFields(logrus.Fields{
				"voices":  st.ActiveVoices,
				"blocks":  st.Blocks,
				"idle":    st.IdleSkipped,
				"dropped": st.DroppedEvents,
			}).Info("stats")
		}
	}
}
