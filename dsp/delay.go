package dsp

import (
	"fmt"
	"math"
)

const (
	// DefaultDelayMs is the delay time a StereoDelay starts with.
	DefaultDelayMs = 250.0
	delaySmoothMs  = 100.0
)

// StereoDelay is a two channel feedback delay with an optional ping-pong
// path and an equal power dry/wet mix. Delay time changes are smoothed.
type StereoDelay struct {
	sampleRate float64
	maxDelayMs float64

	left  *DelayLine
	right *DelayLine

	time     Smoother
	feedback float64
	pingPong bool
	dry, wet float64
}

// NewStereoDelay creates a delay able to hold maxDelayMs.
func NewStereoDelay(sampleRate, maxDelayMs float64) (*StereoDelay, error) {
	if err := checkSampleRate(sampleRate); err != nil {
		return nil, err
	}
	if !(maxDelayMs > 0) {
		return nil, fmt.Errorf("%w: max delay must be > 0 ms", ErrInvalidParameter)
	}
	size := int(math.Ceil(maxDelayMs*0.001*sampleRate)) + 4
	d := &StereoDelay{
		sampleRate: sampleRate,
		maxDelayMs: maxDelayMs,
		left:       NewDelayLine(size),
		right:      NewDelayLine(size),
	}
	d.left.SetInterpolation(InterpCatmullRom)
	d.right.SetInterpolation(InterpCatmullRom)
	d.time.Prepare(SmoothCosine, delaySmoothMs, sampleRate, math.Min(DefaultDelayMs, maxDelayMs))
	d.SetMix(0)
	return d, nil
}

// SetDelayMs sets the delay time, clamped to the capacity.
func (d *StereoDelay) SetDelayMs(ms float64) {
	d.time.SetTarget(Clamp(ms, 0, d.maxDelayMs))
}

// SetFeedback sets the feedback amount, clamped to [0,1].
func (d *StereoDelay) SetFeedback(fb float64) { d.feedback = Clamp(fb, 0, 1) }

// SetPingPong enables cross-channel feedback.
func (d *StereoDelay) SetPingPong(on bool) { d.pingPong = on }

// SetMix sets the equal power dry/wet balance in [0,1].
func (d *StereoDelay) SetMix(mix float64) { d.dry, d.wet = EqualPowerMix(mix) }

// ProcessStereo runs one stereo frame.
func (d *StereoDelay) ProcessStereo(inL, inR float64) (float64, float64) {
	delay := d.time.Next() * 0.001 * d.sampleRate
	outL := d.left.ReadFractional(delay)
	outR := d.right.ReadFractional(delay)
	if d.pingPong {
		d.left.Write(FlushDenormals(inL + outR*d.feedback))
		d.right.Write(FlushDenormals(outL * d.feedback))
	} else {
		d.left.Write(FlushDenormals(inL + outL*d.feedback))
		d.right.Write(FlushDenormals(inR + outR*d.feedback))
	}
	return inL*d.dry + outL*d.wet, inR*d.dry + outR*d.wet
}

// ProcessBlock runs left and right in place.
func (d *StereoDelay) ProcessBlock(left, right []float64) {
	for i := range left {
		left[i], right[i] = d.ProcessStereo(left[i], right[i])
	}
}

// Reset clears both lines.
func (d *StereoDelay) Reset() {
	d.left.Reset()
	d.right.Reset()
}
