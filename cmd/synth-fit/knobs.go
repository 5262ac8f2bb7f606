package main

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/cwbudde/algo-synth/preset"
)

type knobDef struct {
	Name  string
	Min   float64
	Max   float64
	Log   bool // search on a logarithmic scale
	Group string
}

type candidate struct {
	Vals []float64
}

var allKnobs = []knobDef{
	{Name: "low_cutoff_hz", Min: 20, Max: 2000, Log: true, Group: "tone"},
	{Name: "low_q", Min: 0.3, Max: 4, Log: true, Group: "tone"},
	{Name: "high_cutoff_hz", Min: 500, Max: 20000, Log: true, Group: "tone"},
	{Name: "high_q", Min: 0.3, Max: 4, Log: true, Group: "tone"},
	{Name: "attack_ms", Min: 0.5, Max: 300, Log: true, Group: "envelope"},
	{Name: "decay_ms", Min: 5, Max: 3000, Log: true, Group: "envelope"},
	{Name: "sustain", Min: 0, Max: 1, Group: "envelope"},
	{Name: "release_ms", Min: 5, Max: 3000, Log: true, Group: "envelope"},
	{Name: "distortion_amount", Min: 0, Max: 1, Group: "drive"},
	{Name: "resonator_mix", Min: 0, Max: 1, Group: "resonator"},
	{Name: "resonator_spread", Min: 0, Max: 1, Group: "resonator"},
	{Name: "resonator_shift", Min: -12, Max: 12, Group: "resonator"},
	{Name: "resonator_inharm", Min: 0, Max: 1, Group: "resonator"},
}

var knobGroupNames = []string{"tone", "envelope", "drive", "resonator"}

// parseOptimizeGroups parses a comma-separated list of knob groups.
func parseOptimizeGroups(raw string) (map[string]bool, error) {
	groups := make(map[string]bool)
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !slices.Contains(knobGroupNames, s) {
			return nil, fmt.Errorf("unknown optimize group %q (valid: %s)", s, strings.Join(knobGroupNames, ", "))
		}
		groups[s] = true
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("no optimize groups specified")
	}
	return groups, nil
}

// initCandidate selects the knobs of the active groups and seeds them from
// base, falling back to engine defaults for missing fields.
func initCandidate(base *preset.File, groups map[string]bool) ([]knobDef, candidate) {
	var defs []knobDef
	var vals []float64
	for _, d := range allKnobs {
		if !groups[d.Group] {
			continue
		}
		defs = append(defs, d)
		vals = append(vals, clampKnob(d, knobValue(base, d.Name)))
	}
	return defs, candidate{Vals: vals}
}

func knobValue(f *preset.File, name string) float64 {
	get := func(p *float64, def float64) float64 {
		if p != nil {
			return *p
		}
		return def
	}
	var low, high preset.FilterSetting
	var env preset.EnvelopeSetting
	var dist preset.DistortionSetting
	var reso preset.ResonatorSetting
	if f != nil {
		if f.LowFilter != nil {
			low = *f.LowFilter
		}
		if f.HighFilter != nil {
			high = *f.HighFilter
		}
		if f.Envelope != nil {
			env = *f.Envelope
		}
		if f.Distortion != nil {
			dist = *f.Distortion
		}
		if f.Resonator != nil {
			reso = *f.Resonator
		}
	}
	switch name {
	case "low_cutoff_hz":
		return get(low.CutoffHz, 20)
	case "low_q":
		return get(low.Q, math.Sqrt2/2)
	case "high_cutoff_hz":
		return get(high.CutoffHz, 18000)
	case "high_q":
		return get(high.Q, math.Sqrt2/2)
	case "attack_ms":
		return get(env.AttackMs, 15)
	case "decay_ms":
		return get(env.DecayMs, 300)
	case "sustain":
		return get(env.Sustain, 1)
	case "release_ms":
		return get(env.ReleaseMs, 20)
	case "distortion_amount":
		return get(dist.Amount, 0)
	case "resonator_mix":
		return get(reso.Mix, 0)
	case "resonator_spread":
		return get(reso.Spread, 0)
	case "resonator_shift":
		return get(reso.Shift, 0)
	case "resonator_inharm":
		return get(reso.Inharm, 0)
	}
	return 0
}

// applyCandidate returns a copy of base with the candidate's knobs set.
// Groups that are not optimized keep base's values.
func applyCandidate(base *preset.File, defs []knobDef, cand candidate) *preset.File {
	f := clonePreset(base)
	ptr := func(v float64) *float64 { return &v }
	for i, d := range defs {
		v := clampKnob(d, cand.Vals[i])
		switch d.Name {
		case "low_cutoff_hz":
			f.LowFilter.CutoffHz = ptr(v)
		case "low_q":
			f.LowFilter.Q = ptr(v)
		case "high_cutoff_hz":
			f.HighFilter.CutoffHz = ptr(v)
		case "high_q":
			f.HighFilter.Q = ptr(v)
		case "attack_ms":
			f.Envelope.AttackMs = ptr(v)
		case "decay_ms":
			f.Envelope.DecayMs = ptr(v)
		case "sustain":
			f.Envelope.Sustain = ptr(v)
		case "release_ms":
			f.Envelope.ReleaseMs = ptr(v)
		case "distortion_amount":
			f.Distortion.Amount = ptr(v)
			if f.Distortion.Type == "" {
				f.Distortion.Type = "soft"
			}
		case "resonator_mix":
			f.Resonator.Mix = ptr(v)
		case "resonator_spread":
			f.Resonator.Spread = ptr(v)
		case "resonator_shift":
			f.Resonator.Shift = ptr(v)
		case "resonator_inharm":
			f.Resonator.Inharm = ptr(v)
		}
	}
	return f
}

// clonePreset deep-copies the sections applyCandidate writes to and makes
// sure they exist.
func clonePreset(src *preset.File) *preset.File {
	var f preset.File
	if src != nil {
		f = *src
	}
	low, high := preset.FilterSetting{}, preset.FilterSetting{}
	if f.LowFilter != nil {
		low = *f.LowFilter
	}
	if f.HighFilter != nil {
		high = *f.HighFilter
	}
	env := preset.EnvelopeSetting{}
	if f.Envelope != nil {
		env = *f.Envelope
	}
	dist := preset.DistortionSetting{}
	if f.Distortion != nil {
		dist = *f.Distortion
	}
	reso := preset.ResonatorSetting{}
	if f.Resonator != nil {
		reso = *f.Resonator
	}
	f.LowFilter, f.HighFilter, f.Envelope, f.Distortion, f.Resonator = &low, &high, &env, &dist, &reso
	return &f
}

func clampKnob(d knobDef, v float64) float64 {
	return min(max(v, d.Min), d.Max)
}

func toNormalized(defs []knobDef, cand candidate) []float64 {
	out := make([]float64, len(defs))
	for i, d := range defs {
		v := clampKnob(d, cand.Vals[i])
		if d.Log {
			out[i] = math.Log(v/d.Min) / math.Log(d.Max/d.Min)
		} else {
			out[i] = (v - d.Min) / (d.Max - d.Min)
		}
	}
	return out
}

func fromNormalized(pos []float64, defs []knobDef) candidate {
	vals := make([]float64, len(defs))
	for i, d := range defs {
		t := min(max(pos[i], 0), 1)
		if d.Log {
			vals[i] = d.Min * math.Pow(d.Max/d.Min, t)
		} else {
			vals[i] = d.Min + t*(d.Max-d.Min)
		}
	}
	return candidate{Vals: vals}
}

func cloneCandidate(c candidate) candidate {
	return candidate{Vals: slices.Clone(c.Vals)}
}

func knobMap(defs []knobDef, cand candidate) map[string]float64 {
	m := make(map[string]float64, len(defs))
	for i, d := range defs {
		m[d.Name] = cand.Vals[i]
	}
	return m
}
