package offline

import (
	"errors"
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-synth/synth"
)

func newEngine(t *testing.T) *synth.Engine {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := synth.DefaultConfig()
	cfg.Oversampling = 1
	cfg.Generator = synth.GeneratorSine
	cfg.Logger = log
	e, err := synth.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestParseScript(t *testing.T) {
	notes, err := ParseScript("60, 64@0.5, 67@1:0.25")
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	want := []Note{{60, 0, 1}, {64, 0.5, 1}, {67, 1, 0.25}}
	if len(notes) != len(want) {
		t.Fatalf("got %d notes, want %d", len(notes), len(want))
	}
	for i := range want {
		if notes[i] != want[i] {
			t.Fatalf("note %d = %+v, want %+v", i, notes[i], want[i])
		}
	}
	if got := End(notes); got != 1.5 {
		t.Fatalf("End = %v, want 1.5", got)
	}
}

func TestParseScriptErrors(t *testing.T) {
	for _, s := range []string{"", "x", "200", "60@-1", "60@0:0", "60@a:1"} {
		if _, err := ParseScript(s); !errors.Is(err, ErrScript) {
			t.Fatalf("ParseScript(%q) err = %v, want ErrScript", s, err)
		}
	}
}

func TestRenderPlaysNote(t *testing.T) {
	e := newEngine(t)
	opt := DefaultOptions()
	opt.MaxDuration = 0.5
	left, right, err := Render(e, []Note{{Key: 69, Start: 0.1, Duration: 0.2}}, opt)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(left) != 22050 || len(right) != 22050 {
		t.Fatalf("got %d/%d frames, want 22050", len(left), len(right))
	}
	lead := stereoRMS(left[:4000], right[:4000])
	body := stereoRMS(left[6000:12000], right[6000:12000])
	if lead > 1e-9 {
		t.Fatalf("output before note start: rms %g", lead)
	}
	if body < 1e-3 {
		t.Fatalf("note too quiet: rms %g", body)
	}
}

func TestRenderAutoStop(t *testing.T) {
	e := newEngine(t)
	opt := DefaultOptions()
	opt.MaxDuration = 5
	opt.MinDuration = 0.2
	opt.DecayDBFS = -80
	left, _, err := Render(e, []Note{{Key: 60, Duration: 0.1}}, opt)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(left) >= 5*44100 {
		t.Fatalf("auto-stop did not trigger, rendered %d frames", len(left))
	}
	if len(left) < int(0.2*44100) {
		t.Fatalf("stopped before min duration: %d frames", len(left))
	}
}

func TestInterleave(t *testing.T) {
	out := Interleave([]float64{1, 2}, []float64{-1, -2})
	want := []float32{1, -1, 2, -2}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 0 {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}
