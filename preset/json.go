package preset

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-synth/dsp"
	"github.com/cwbudde/algo-synth/musical"
	"github.com/cwbudde/algo-synth/oversample"
	"github.com/cwbudde/algo-synth/spectral"
	"github.com/cwbudde/algo-synth/synth"
)

// File is the JSON schema for synth patches. Every field is optional;
// missing fields leave the current setting alone.
type File struct {
	MasterGainDB *float64           `json:"master_gain_db"`
	VoiceGain    *float64           `json:"voice_gain"`
	Generator    string             `json:"generator"`
	Envelope     *EnvelopeSetting   `json:"envelope"`
	Oversampling *int               `json:"oversampling"`
	LowFilter    *FilterSetting     `json:"low_filter"`
	HighFilter   *FilterSetting     `json:"high_filter"`
	Distortion   *DistortionSetting `json:"distortion"`
	Resonator    *ResonatorSetting  `json:"resonator"`
	Mask         *MaskSetting       `json:"mask"`
	Delay        *DelaySetting      `json:"delay"`
	Compressor   *CompressorSetting `json:"compressor"`
}

// EnvelopeSetting is a partial ADSR override.
type EnvelopeSetting struct {
	AttackMs  *float64 `json:"attack_ms"`
	DecayMs   *float64 `json:"decay_ms"`
	Sustain   *float64 `json:"sustain"`
	ReleaseMs *float64 `json:"release_ms"`
	Curve     *float64 `json:"curve"`
}

// FilterSetting configures the low or high tone filter. Shelf switches
// the low filter from highpass to low shelf and the high filter from
// lowpass to high shelf.
type FilterSetting struct {
	CutoffHz *float64 `json:"cutoff_hz"`
	Q        *float64 `json:"q"`
	GainDB   *float64 `json:"gain_db"`
	Shelf    *bool    `json:"shelf"`
}

// DistortionSetting selects the waveshaper.
type DistortionSetting struct {
	Type   string   `json:"type"`
	Amount *float64 `json:"amount"`
}

// ResonatorSetting configures the resonator bank.
type ResonatorSetting struct {
	Count     *int     `json:"count"`
	Scale     string   `json:"scale"`
	RootNote  *int     `json:"root_note"`
	Quantize  *bool    `json:"quantize"`
	Spread    *float64 `json:"spread"`
	Shift     *float64 `json:"shift"`
	Inharm    *float64 `json:"inharm"`
	PanSpread *float64 `json:"pan_spread"`
	Mix       *float64 `json:"mix"`
}

// MaskSetting configures the spectral mask. Path names a mask file as
// written by mask-gen; relative paths are resolved against the preset.
type MaskSetting struct {
	Enabled    *bool    `json:"enabled"`
	PostFX     *bool    `json:"post_fx"`
	Resolution *int     `json:"resolution"`
	Mix        *float64 `json:"mix"`
	Path       string   `json:"path"`
}

// DelaySetting configures the stereo delay.
type DelaySetting struct {
	TimeMs   *float64 `json:"time_ms"`
	Feedback *float64 `json:"feedback"`
	Mix      *float64 `json:"mix"`
	PingPong *bool    `json:"ping_pong"`
}

// CompressorSetting configures the output compressor. A ratio of 1
// bypasses it.
type CompressorSetting struct {
	ThresholdDB *float64 `json:"threshold_db"`
	Ratio       *float64 `json:"ratio"`
	AttackMs    *float64 `json:"attack_ms"`
	ReleaseMs   *float64 `json:"release_ms"`
}

// LoadJSON reads and validates a preset file.
func LoadJSON(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	if f.Mask != nil && f.Mask.Path != "" && !filepath.IsAbs(f.Mask.Path) {
		base := filepath.Dir(path)
		f.Mask.Path = filepath.Clean(filepath.Join(base, f.Mask.Path))
	}
	return &f, nil
}

func inRange(name string, v *float64, lo, hi float64) error {
	if v != nil && (*v < lo || *v > hi) {
		return fmt.Errorf("%s must be in [%g,%g]", name, lo, hi)
	}
	return nil
}

func nonNegative(name string, v *float64) error {
	if v != nil && *v < 0 {
		return fmt.Errorf("%s must be >= 0", name)
	}
	return nil
}

func positive(name string, v *float64) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("%s must be > 0", name)
	}
	return nil
}

// Validate checks every present field without touching any parameters.
func (f *File) Validate() error {
	if f == nil {
		return nil
	}
	if err := nonNegative("voice_gain", f.VoiceGain); err != nil {
		return err
	}
	if f.Generator != "" {
		if _, err := synth.ParseGenerator(f.Generator); err != nil {
			return fmt.Errorf("generator: %w", err)
		}
	}
	if e := f.Envelope; e != nil {
		for _, err := range []error{
			nonNegative("envelope.attack_ms", e.AttackMs),
			nonNegative("envelope.decay_ms", e.DecayMs),
			inRange("envelope.sustain", e.Sustain, 0, 1),
			nonNegative("envelope.release_ms", e.ReleaseMs),
			inRange("envelope.curve", e.Curve, -1, 1),
		} {
			if err != nil {
				return err
			}
		}
	}
	if o := f.Oversampling; o != nil {
		if *o < 1 || *o > oversample.MaxFactor || bits.OnesCount(uint(*o)) != 1 {
			return fmt.Errorf("oversampling must be a power of two in [1,%d]", oversample.MaxFactor)
		}
	}
	for name, fs := range map[string]*FilterSetting{"low_filter": f.LowFilter, "high_filter": f.HighFilter} {
		if fs == nil {
			continue
		}
		if err := positive(name+".cutoff_hz", fs.CutoffHz); err != nil {
			return err
		}
		if err := positive(name+".q", fs.Q); err != nil {
			return err
		}
	}
	if d := f.Distortion; d != nil {
		if d.Type != "" {
			if _, err := dsp.ParseDistortion(strings.ToLower(d.Type)); err != nil {
				return fmt.Errorf("distortion.type: %w", err)
			}
		}
		if err := inRange("distortion.amount", d.Amount, 0, 1); err != nil {
			return err
		}
	}
	if r := f.Resonator; r != nil {
		if r.Count != nil && *r.Count < 1 {
			return fmt.Errorf("resonator.count must be >= 1")
		}
		if r.Scale != "" {
			if _, err := musical.ParseScale(r.Scale); err != nil {
				return fmt.Errorf("resonator.scale: %w", err)
			}
		}
		if r.RootNote != nil && (*r.RootNote < 0 || *r.RootNote > 127) {
			return fmt.Errorf("resonator.root_note must be in [0,127]")
		}
		for _, err := range []error{
			inRange("resonator.spread", r.Spread, 0, 1),
			inRange("resonator.inharm", r.Inharm, 0, 1),
			inRange("resonator.pan_spread", r.PanSpread, 0, 1),
			inRange("resonator.mix", r.Mix, 0, 1),
		} {
			if err != nil {
				return err
			}
		}
	}
	if m := f.Mask; m != nil {
		if res := m.Resolution; res != nil {
			if *res < spectral.MinBlockSize || *res > spectral.MaxBlockSize || bits.OnesCount(uint(*res)) != 1 {
				return fmt.Errorf("mask.resolution must be a power of two in [%d,%d]", spectral.MinBlockSize, spectral.MaxBlockSize)
			}
		}
		if err := inRange("mask.mix", m.Mix, 0, 1); err != nil {
			return err
		}
	}
	if d := f.Delay; d != nil {
		for _, err := range []error{
			inRange("delay.time_ms", d.TimeMs, 0, 1000),
			inRange("delay.feedback", d.Feedback, 0, 1),
			inRange("delay.mix", d.Mix, 0, 1),
		} {
			if err != nil {
				return err
			}
		}
	}
	if c := f.Compressor; c != nil {
		if c.Ratio != nil && *c.Ratio < 1 {
			return fmt.Errorf("compressor.ratio must be >= 1")
		}
		if err := nonNegative("compressor.attack_ms", c.AttackMs); err != nil {
			return err
		}
		if err := nonNegative("compressor.release_ms", c.ReleaseMs); err != nil {
			return err
		}
	}
	return nil
}

func storeFloat(dst *synth.AtomicFloat, v *float64) {
	if v != nil {
		dst.Store(*v)
	}
}

func storeSmooth(dst *dsp.AtomicSmoother, v *float64) {
	if v != nil {
		dst.Store(*v)
	}
}

// ApplyFile validates f and stores it into the control surface.
func ApplyFile(dst *synth.Params, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination params")
	}
	if f == nil {
		return nil
	}
	if err := f.Validate(); err != nil {
		return err
	}

	if f.MasterGainDB != nil {
		dst.SetMasterGainDB(*f.MasterGainDB)
	}
	storeSmooth(dst.VoiceGain, f.VoiceGain)
	if f.Generator != "" {
		g, _ := synth.ParseGenerator(f.Generator)
		dst.SetGenerator(g)
	}
	if e := f.Envelope; e != nil {
		storeFloat(dst.AttackMs, e.AttackMs)
		storeFloat(dst.DecayMs, e.DecayMs)
		storeFloat(dst.Sustain, e.Sustain)
		storeFloat(dst.ReleaseMs, e.ReleaseMs)
		storeFloat(dst.EnvelopeCurve, e.Curve)
	}
	if f.Oversampling != nil {
		dst.Oversampling.Store(int32(*f.Oversampling))
	}
	if fs := f.LowFilter; fs != nil {
		storeSmooth(dst.LowCutoff, fs.CutoffHz)
		storeSmooth(dst.LowQ, fs.Q)
		storeSmooth(dst.LowGainDB, fs.GainDB)
		if fs.Shelf != nil {
			dst.LowShelf.Store(*fs.Shelf)
		}
	}
	if fs := f.HighFilter; fs != nil {
		storeSmooth(dst.HighCutoff, fs.CutoffHz)
		storeSmooth(dst.HighQ, fs.Q)
		storeSmooth(dst.HighGainDB, fs.GainDB)
		if fs.Shelf != nil {
			dst.HighShelf.Store(*fs.Shelf)
		}
	}
	if d := f.Distortion; d != nil {
		if d.Type != "" {
			kind, _ := dsp.ParseDistortion(strings.ToLower(d.Type))
			dst.Distortion.Store(int32(kind))
		}
		storeSmooth(dst.DistAmount, d.Amount)
	}
	if r := f.Resonator; r != nil {
		if r.Count != nil {
			dst.ResoCount.Store(int32(*r.Count))
		}
		if r.Scale != "" {
			s, _ := musical.ParseScale(r.Scale)
			dst.ResoScale.Store(int32(s))
		}
		if r.RootNote != nil {
			dst.ResoRoot.Store(int32(*r.RootNote))
		}
		if r.Quantize != nil {
			dst.ResoQuantize.Store(*r.Quantize)
		}
		storeSmooth(dst.ResoSpread, r.Spread)
		storeSmooth(dst.ResoShift, r.Shift)
		storeSmooth(dst.ResoInharm, r.Inharm)
		storeSmooth(dst.ResoPan, r.PanSpread)
		storeSmooth(dst.ResoMix, r.Mix)
	}
	if m := f.Mask; m != nil {
		if m.Enabled != nil {
			dst.MaskEnabled.Store(*m.Enabled)
		}
		if m.PostFX != nil {
			dst.MaskPostFX.Store(*m.PostFX)
		}
		if m.Resolution != nil {
			dst.MaskResolution.Store(int32(*m.Resolution))
		}
		storeSmooth(dst.MaskMix, m.Mix)
	}
	if d := f.Delay; d != nil {
		storeFloat(dst.DelayMs, d.TimeMs)
		storeSmooth(dst.DelayFeedback, d.Feedback)
		storeSmooth(dst.DelayMix, d.Mix)
		if d.PingPong != nil {
			dst.PingPong.Store(*d.PingPong)
		}
	}
	if c := f.Compressor; c != nil {
		storeFloat(dst.CompThresholdDB, c.ThresholdDB)
		storeFloat(dst.CompRatio, c.Ratio)
		storeFloat(dst.CompAttackMs, c.AttackMs)
		storeFloat(dst.CompReleaseMs, c.ReleaseMs)
	}
	return nil
}

// ApplyToEngine applies f to the engine's controls and publishes the mask
// file it names, if any.
func ApplyToEngine(e *synth.Engine, f *File) error {
	if f != nil && f.Mask != nil && f.Mask.Path != "" {
		// Load before touching any control so a bad mask leaves the
		// engine unchanged.
		m, err := LoadMask(f.Mask.Path)
		if err != nil {
			return err
		}
		if err := ApplyFile(e.Params(), f); err != nil {
			return err
		}
		in := e.MaskInput()
		slot := in.WriteSlot()
		*slot = append((*slot)[:0], m.Bins...)
		in.Publish()
		return nil
	}
	return ApplyFile(e.Params(), f)
}
