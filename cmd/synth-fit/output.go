package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/preset"
)

type runReport struct {
	ReferencePath  string             `json:"reference_path"`
	PresetPath     string             `json:"preset_path,omitempty"`
	OutputPreset   string             `json:"output_preset"`
	SampleRate     int                `json:"sample_rate"`
	Note           int                `json:"note"`
	ReleaseAfter   float64            `json:"release_after_seconds"`
	ElapsedSec     float64            `json:"elapsed_seconds"`
	Evaluations    int                `json:"evaluations"`
	Improvements   int                `json:"improvements"`
	MayflyVariant  string             `json:"mayfly_variant"`
	BestScore      float64            `json:"best_score"`
	BestSimilarity float64            `json:"best_similarity"`
	BestMetrics    analysis.Metrics   `json:"best_metrics"`
	BestKnobs      map[string]float64 `json:"best_knobs"`
	TopCandidates  []topCandidate     `json:"top_candidates,omitempty"`
}

// writeOutputs stores the fitted preset and the run report.
func writeOutputs(outputPreset, reportPath string, fitted *preset.File, report runReport) error {
	if err := writeJSON(outputPreset, fitted); err != nil {
		return err
	}
	return writeJSON(reportPath, report)
}

func defaultReportPath(outputPreset string) string {
	return strings.TrimSuffix(outputPreset, filepath.Ext(outputPreset)) + ".report.json"
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}

// loadResumeKnobs reads best_knobs from an earlier report.
func loadResumeKnobs(path string, defs []knobDef, fallback candidate) (candidate, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fallback, false, nil
		}
		return fallback, false, err
	}
	var r runReport
	if err := json.Unmarshal(b, &r); err != nil {
		return fallback, false, err
	}
	if len(r.BestKnobs) == 0 {
		return fallback, false, nil
	}
	out := cloneCandidate(fallback)
	found := false
	for i, d := range defs {
		if v, ok := r.BestKnobs[d.Name]; ok {
			out.Vals[i] = clampKnob(d, v)
			found = true
		}
	}
	return out, found, nil
}
