package synth

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-synth/dsp"
	"github.com/cwbudde/algo-synth/oversample"
	"github.com/cwbudde/algo-synth/resonator"
	"github.com/cwbudde/algo-synth/spectral"
)

const (
	// MaxSubBlock bounds the frames rendered between two event checks.
	MaxSubBlock = 64
	// IdleHoldSeconds is how long output must stay silent before the
	// engine stops processing.
	IdleHoldSeconds = 0.8
	// SilenceThreshold is the output level treated as silence.
	SilenceThreshold = dsp.MinusInfinityGain / 5

	maxDelayMs = 1000.0
)

var ErrConfig = errors.New("invalid engine config")

// Config holds everything NewEngine needs. Start from DefaultConfig.
type Config struct {
	SampleRate     float64
	MaxBlockFrames int // largest buffer Render accepts in one pass
	Polyphony      int
	QueueCapacity  int

	Envelope  dsp.ADSRParams
	Generator GeneratorKind

	Oversampling     int // initial factor
	MaxOversampling  int
	ResonatorCount   int
	ResonatorMax     int
	MaskMaxBlockSize int
	MaskBlockSize    int

	// ReRandomiseSeconds re-draws the resonator pitches periodically.
	// Zero disables it.
	ReRandomiseSeconds float64
	Seed               uint64

	// Analyzer enables the background spectrum bridge.
	Analyzer        bool
	AnalyzerFFTSize int
	AnalyzerWorkers int

	Logger logrus.FieldLogger
}

// DefaultConfig returns the factory configuration at 44.1 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate:     44100,
		MaxBlockFrames: 2048,
		Polyphony:      DefaultPolyphony,
		QueueCapacity:  DefaultQueueCapacity,
		Envelope: dsp.ADSRParams{
			AttackMs:  15,
			DecayMs:   300,
			Sustain:   1,
			ReleaseMs: 20,
		},
		Generator:        GeneratorNoise,
		Oversampling:     4,
		MaxOversampling:  oversample.MaxFactor,
		ResonatorCount:   resonator.DefaultCount,
		ResonatorMax:     resonator.DefaultCapacity,
		MaskMaxBlockSize: 8192,
		MaskBlockSize:    2048,
		Seed:             1,
		AnalyzerFFTSize:  8192,
		AnalyzerWorkers:  2,
	}
}

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if !(c.SampleRate > 0) {
		return fmt.Errorf("%w: sample rate must be > 0", ErrConfig)
	}
	if c.MaxBlockFrames <= 0 {
		return fmt.Errorf("%w: max block frames must be > 0", ErrConfig)
	}
	if c.Polyphony <= 0 {
		return fmt.Errorf("%w: polyphony must be > 0", ErrConfig)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("%w: queue capacity must be > 0", ErrConfig)
	}
	if err := c.Envelope.Validate(); err != nil {
		return fmt.Errorf("%w: envelope: %w", ErrConfig, err)
	}
	if c.Generator < GeneratorNoise || c.Generator > GeneratorSine {
		return fmt.Errorf("%w: unknown generator %d", ErrConfig, c.Generator)
	}
	if !isPow2(c.MaxOversampling) || c.MaxOversampling > oversample.MaxFactor {
		return fmt.Errorf("%w: max oversampling must be a power of two <= %d", ErrConfig, oversample.MaxFactor)
	}
	if !isPow2(c.Oversampling) || c.Oversampling > c.MaxOversampling {
		return fmt.Errorf("%w: oversampling must be a power of two <= %d", ErrConfig, c.MaxOversampling)
	}
	if c.ResonatorMax <= 0 {
		return fmt.Errorf("%w: resonator max must be > 0", ErrConfig)
	}
	if c.ResonatorCount <= 0 || c.ResonatorCount > c.ResonatorMax {
		return fmt.Errorf("%w: resonator count must be in [1, %d]", ErrConfig, c.ResonatorMax)
	}
	if !isPow2(c.MaskMaxBlockSize) || c.MaskMaxBlockSize < spectral.MinBlockSize || c.MaskMaxBlockSize > spectral.MaxBlockSize {
		return fmt.Errorf("%w: mask max block size must be a power of two in [%d, %d]", ErrConfig, spectral.MinBlockSize, spectral.MaxBlockSize)
	}
	if !isPow2(c.MaskBlockSize) || c.MaskBlockSize < spectral.MinBlockSize || c.MaskBlockSize > c.MaskMaxBlockSize {
		return fmt.Errorf("%w: mask block size must be a power of two <= %d", ErrConfig, c.MaskMaxBlockSize)
	}
	if c.ReRandomiseSeconds < 0 {
		return fmt.Errorf("%w: re-randomise seconds must be >= 0", ErrConfig)
	}
	if c.Analyzer {
		if !isPow2(c.AnalyzerFFTSize) {
			return fmt.Errorf("%w: analyzer fft size must be a power of two", ErrConfig)
		}
		if c.AnalyzerWorkers <= 0 {
			return fmt.Errorf("%w: analyzer workers must be > 0", ErrConfig)
		}
	}
	return nil
}
