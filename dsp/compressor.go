package dsp

import "math"

// CompressorParams holds the compressor settings.
type CompressorParams struct {
	ThresholdDB float64
	Ratio       float64
	AttackMs    float64
	ReleaseMs   float64
	KneeDB      float64
	MakeupDB    float64
}

// DefaultCompressorParams returns the factory settings.
func DefaultCompressorParams() CompressorParams {
	return CompressorParams{
		ThresholdDB: -12,
		Ratio:       10,
		AttackMs:    80,
		ReleaseMs:   200,
		KneeDB:      5,
	}
}

// Compressor is a stereo linked peak compressor with a quadratic soft knee.
// A ratio of 1 bypasses it.
type Compressor struct {
	sampleRate float64
	p          CompressorParams

	attack  float64
	release float64
	peak    float64
	makeup  float64
}

// NewCompressor creates a compressor with p, clamped to valid ranges.
func NewCompressor(sampleRate float64, p CompressorParams) (*Compressor, error) {
	if err := checkSampleRate(sampleRate); err != nil {
		return nil, err
	}
	c := &Compressor{sampleRate: sampleRate}
	c.SetParams(p)
	return c, nil
}

// SetParams applies new settings.
func (c *Compressor) SetParams(p CompressorParams) {
	p.ThresholdDB = math.Min(p.ThresholdDB, 0)
	p.Ratio = Clamp(p.Ratio, 1, 100)
	p.AttackMs = math.Max(p.AttackMs, 0.1)
	p.ReleaseMs = math.Max(p.ReleaseMs, 1)
	p.KneeDB = math.Max(p.KneeDB, 0)
	c.p = p
	c.attack = 1 - math.Exp(-math.Ln2/(p.AttackMs*0.001*c.sampleRate))
	c.release = math.Exp(-math.Ln2 / (p.ReleaseMs * 0.001 * c.sampleRate))
	c.makeup = DBToGain(p.MakeupDB)
}

// Params returns the active settings.
func (c *Compressor) Params() CompressorParams { return c.p }

// GainDB returns the static gain change in dB for an input level in dB.
func (c *Compressor) GainDB(levelDB float64) float64 {
	thresh, width := c.p.ThresholdDB, c.p.KneeDB
	slope := 1/c.p.Ratio - 1
	half := width / 2
	switch {
	case levelDB <= thresh-half:
		return 0
	case width > 0 && levelDB <= thresh+half:
		d := levelDB - thresh + half
		return slope * d * d / (2 * width)
	default:
		return slope * (levelDB - thresh)
	}
}

// ProcessStereo compresses one frame, detecting on the louder channel.
func (c *Compressor) ProcessStereo(l, r float64) (float64, float64) {
	if c.p.Ratio <= 1 {
		return l * c.makeup, r * c.makeup
	}
	in := math.Max(math.Abs(l), math.Abs(r))
	if in > c.peak {
		c.peak += (in - c.peak) * c.attack
	} else {
		c.peak = FlushDenormals(in + (c.peak-in)*c.release)
	}
	g := DBToGain(c.GainDB(GainToDB(c.peak))) * c.makeup
	return l * g, r * g
}

// ProcessBlock compresses left and right in place.
func (c *Compressor) ProcessBlock(left, right []float64) {
	for i := range left {
		left[i], right[i] = c.ProcessStereo(left[i], right[i])
	}
}

// Reset clears the detector.
func (c *Compressor) Reset() { c.peak = 0 }
