package preset

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-synth/dsp"
	"github.com/cwbudde/algo-synth/musical"
	"github.com/cwbudde/algo-synth/synth"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newParams() *synth.Params {
	cfg := synth.DefaultConfig()
	return synth.NewParams(cfg.SampleRate, cfg)
}

func TestLoadJSONAppliesSettings(t *testing.T) {
	dir := t.TempDir()
	presetPath := filepath.Join(dir, "patch.json")
	writeFile(t, presetPath, `{
  "master_gain_db": -6,
  "generator": "saw",
  "envelope": {"attack_ms": 5, "sustain": 0.7},
  "oversampling": 8,
  "low_filter": {"cutoff_hz": 120, "shelf": true, "gain_db": -3},
  "distortion": {"type": "soft", "amount": 0.4},
  "resonator": {"count": 12, "scale": "dorian", "root_note": 62, "quantize": true, "mix": 0.5},
  "mask": {"enabled": true, "resolution": 1024, "path": "masks/m.json"},
  "delay": {"time_ms": 300, "ping_pong": true},
  "compressor": {"ratio": 4}
}`)

	f, err := LoadJSON(presetPath)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if want := filepath.Join(dir, "masks", "m.json"); f.Mask.Path != want {
		t.Fatalf("mask path = %q, want %q", f.Mask.Path, want)
	}

	p := newParams()
	if err := ApplyFile(p, f); err != nil {
		t.Fatalf("ApplyFile: %v", err)
	}
	if got := p.MasterGain.Load(); !approx(got, dsp.DBToGain(-6)) {
		t.Fatalf("master gain = %v", got)
	}
	if synth.GeneratorKind(p.Generator.Load()) != synth.GeneratorSaw {
		t.Fatalf("generator = %v", p.Generator.Load())
	}
	env := p.Envelope()
	if env.AttackMs != 5 || env.Sustain != 0.7 || env.DecayMs != 300 {
		t.Fatalf("envelope = %+v", env)
	}
	if p.Oversampling.Load() != 8 {
		t.Fatalf("oversampling = %d", p.Oversampling.Load())
	}
	if !p.LowShelf.Load() || p.LowCutoff.Load() != 120 || p.LowGainDB.Load() != -3 {
		t.Fatalf("low filter not applied")
	}
	if dsp.Distortion(p.Distortion.Load()) != dsp.DistortionSoft || p.DistAmount.Load() != 0.4 {
		t.Fatalf("distortion not applied")
	}
	if p.ResoCount.Load() != 12 || musical.Scale(p.ResoScale.Load()) != musical.Dorian || p.ResoRoot.Load() != 62 || !p.ResoQuantize.Load() {
		t.Fatalf("resonator settings not applied")
	}
	if !p.MaskEnabled.Load() || p.MaskResolution.Load() != 1024 {
		t.Fatalf("mask settings not applied")
	}
	if p.DelayMs.Load() != 300 || !p.PingPong.Load() {
		t.Fatalf("delay settings not applied")
	}
	if p.Compressor().Ratio != 4 {
		t.Fatalf("compressor ratio = %v", p.Compressor().Ratio)
	}
}

func TestLoadJSONRejectsInvalidRanges(t *testing.T) {
	cases := map[string]string{
		"sustain":      `{"envelope": {"sustain": 1.5}}`,
		"oversampling": `{"oversampling": 3}`,
		"generator":    `{"generator": "square"}`,
		"scale":        `{"resonator": {"scale": "lydian-ish"}}`,
		"mask size":    `{"mask": {"resolution": 100}}`,
		"ratio":        `{"compressor": {"ratio": 0.5}}`,
		"distortion":   `{"distortion": {"type": "fuzz"}}`,
	}
	dir := t.TempDir()
	for name, content := range cases {
		path := filepath.Join(dir, "bad.json")
		writeFile(t, path, content)
		if _, err := LoadJSON(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestApplyFileLeavesParamsOnError(t *testing.T) {
	p := newParams()
	gain := 0.25
	sustain := 2.0
	f := &File{VoiceGain: &gain, Envelope: &EnvelopeSetting{Sustain: &sustain}}
	if err := ApplyFile(p, f); err == nil {
		t.Fatalf("expected error")
	}
	if p.VoiceGain.Load() != 1 {
		t.Fatalf("voice gain changed to %v by a rejected file", p.VoiceGain.Load())
	}
}

func TestMaskRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mask.json")
	if err := SaveMask(path, &MaskFile{SampleRate: 48000, Bins: []float64{0, 0.5, 1}}); err != nil {
		t.Fatalf("SaveMask: %v", err)
	}
	m, err := LoadMask(path)
	if err != nil {
		t.Fatalf("LoadMask: %v", err)
	}
	if m.SampleRate != 48000 || len(m.Bins) != 3 || m.Bins[1] != 0.5 {
		t.Fatalf("mask = %+v", m)
	}

	writeFile(t, path, `{"bins": [1, -1]}`)
	if _, err := LoadMask(path); err == nil {
		t.Fatalf("expected error for negative gain")
	}
}

func TestApplyToEnginePublishesMask(t *testing.T) {
	dir := t.TempDir()
	if err := SaveMask(filepath.Join(dir, "m.json"), &MaskFile{Bins: []float64{0.25, 0.25}}); err != nil {
		t.Fatalf("SaveMask: %v", err)
	}
	presetPath := filepath.Join(dir, "patch.json")
	writeFile(t, presetPath, `{"mask": {"enabled": true, "path": "m.json"}}`)
	f, err := LoadJSON(presetPath)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}

	cfg := synth.DefaultConfig()
	cfg.Logger = quietLogger()
	e, err := synth.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()
	if err := ApplyToEngine(e, f); err != nil {
		t.Fatalf("ApplyToEngine: %v", err)
	}
	m, fresh := e.MaskInput().Read()
	if !fresh || len(*m) != 2 || (*m)[0] != 0.25 {
		t.Fatalf("published mask = %v (fresh %v)", *m, fresh)
	}
	if !e.Params().MaskEnabled.Load() {
		t.Fatalf("mask not enabled")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patch.json")
	writeFile(t, path, `{"voice_gain": 1}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan float64, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, quietLogger(), func(f *File) error {
			if f.VoiceGain != nil {
				got <- *f.VoiceGain
			}
			return nil
		})
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case v := <-got:
			if v != 0.5 {
				t.Fatalf("reloaded voice_gain = %v, want 0.5", v)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch: %v", err)
			}
			return
		case <-tick.C:
			// The watcher may not be registered yet; keep writing.
			writeFile(t, path, `{"voice_gain": 0.5}`)
		case <-deadline:
			t.Fatalf("no reload within 5s")
		}
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
