package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/cwbudde/algo-synth/spectral"
)

// MaskFile is the JSON form of a spectral mask. Bins cover 0 Hz up to
// Nyquist and may have any length; the engine stretches them to its
// filter resolution.
type MaskFile struct {
	SampleRate float64       `json:"sample_rate,omitempty"`
	Bins       spectral.Mask `json:"bins"`
}

// LoadMask reads a mask file. Gains must be finite and >= 0.
func LoadMask(path string) (*MaskFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m MaskFile
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse mask %s: %w", path, err)
	}
	if len(m.Bins) == 0 {
		return nil, fmt.Errorf("mask %s: bins must not be empty", path)
	}
	for i, g := range m.Bins {
		if !(g >= 0) || g > 1e6 {
			return nil, fmt.Errorf("mask %s: bins[%d] must be a finite gain >= 0", path, i)
		}
	}
	return &m, nil
}

// SaveMask writes m as indented JSON.
func SaveMask(path string, m *MaskFile) error {
	if m == nil || len(m.Bins) == 0 {
		return fmt.Errorf("mask must have bins")
	}
	b, err := json.MarshalIndent(MaskFile{SampleRate: m.SampleRate, Bins: slices.Clone(m.Bins)}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
