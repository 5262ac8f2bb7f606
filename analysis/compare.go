package analysis

import (
	"fmt"
	"math"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/window"
)

// CompareFFTSize is the frame length of the averaged spectra Compare and
// BandReport use.
const CompareFFTSize = 4096

// Metrics holds distance measurements between a reference and a candidate.
// Score is 0 for identical signals and 1 at the worst; Similarity maps it
// back to (0, 1].
type Metrics struct {
	SampleRate int `json:"sample_rate"`

	ReferenceFrames int `json:"reference_frames"`
	CandidateFrames int `json:"candidate_frames"`
	AlignedFrames   int `json:"aligned_frames"`
	LagSamples      int `json:"lag_samples"`

	TimeRMSE        float64 `json:"time_rmse"`
	EnvelopeRMSEDB  float64 `json:"envelope_rmse_db"`
	SpectralRMSEDB  float64 `json:"spectral_rmse_db"`
	RefDecayDBPerS  float64 `json:"ref_decay_db_per_s"`
	CandDecayDBPerS float64 `json:"cand_decay_db_per_s"`
	DecayDiffDBPerS float64 `json:"decay_diff_db_per_s"`

	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

const (
	envFrame = 256
	envHop   = 128
	// compared spectra are limited to the audible band
	specLoHz = 20.0
	specHiHz = 20000.0
)

// Compare aligns candidate to reference by cross-correlation after
// trimming leading silence and matching RMS, then combines waveform,
// envelope, spectral and decay distances into one score.
func Compare(reference, candidate []float64, sampleRate int) Metrics {
	m := Metrics{
		SampleRate:      sampleRate,
		ReferenceFrames: len(reference),
		CandidateFrames: len(candidate),
		Score:           1,
	}
	ref := normalizeRMS(trimSilence(reference, 1e-6), 0.1)
	cand := normalizeRMS(trimSilence(candidate, 1e-6), 0.1)
	if sampleRate <= 0 || len(ref) == 0 || len(cand) == 0 {
		return m
	}

	maxLag := max(1, min(sampleRate/2, len(ref)-1, len(cand)-1))
	m.LagSamples = estimateLag(ref, cand, maxLag)
	ref, cand = alignByLag(ref, cand, m.LagSamples)
	n := min(len(ref), len(cand), 12*sampleRate)
	if n < envFrame {
		return m
	}
	ref, cand = ref[:n], cand[:n]
	m.AlignedFrames = n

	var sum float64
	for i := range ref {
		d := ref[i] - cand[i]
		sum += d * d
	}
	m.TimeRMSE = math.Sqrt(sum / float64(n))

	refEnv := rmsEnvelope(ref)
	candEnv := rmsEnvelope(cand)
	if k := min(len(refEnv), len(candEnv)); k > 0 {
		sum = 0
		for i := range k {
			d := MagToDB(refEnv[i]) - MagToDB(candEnv[i])
			sum += d * d
		}
		m.EnvelopeRMSEDB = math.Sqrt(sum / float64(k))
	}

	m.SpectralRMSEDB = spectralDistance(ref, cand, float64(sampleRate))

	hop := float64(envHop) / float64(sampleRate)
	m.RefDecayDBPerS = decaySlope(refEnv, hop)
	m.CandDecayDBPerS = decaySlope(candEnv, hop)
	if !math.IsNaN(m.RefDecayDBPerS) && !math.IsNaN(m.CandDecayDBPerS) {
		m.DecayDiffDBPerS = math.Abs(m.RefDecayDBPerS - m.CandDecayDBPerS)
	}

	m.Score = clamp01(0.30*clamp01(m.TimeRMSE/0.25) +
		0.25*clamp01(m.EnvelopeRMSEDB/30) +
		0.30*clamp01(m.SpectralRMSEDB/30) +
		0.15*clamp01(m.DecayDiffDBPerS/40))
	m.Similarity = math.Exp(-4 * m.Score)
	return m
}

// AverageSpectrum returns the mean Hann-windowed magnitude spectrum of x
// over frames of fftSize samples with 50% overlap. Signals shorter than
// one frame are zero padded.
func AverageSpectrum(x []float64, fftSize int) ([]float64, error) {
	if fftSize < 16 || fftSize&(fftSize-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrFFTSize, fftSize)
	}
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, err
	}
	win := window.Generate(window.TypeHann, fftSize, window.WithPeriodic())
	var norm float64
	for _, w := range win {
		norm += w
	}
	in := make([]complex128, fftSize)
	out := make([]complex128, fftSize)
	mags := make([]float64, fftSize/2+1)

	frames := 0
	for pos := 0; pos == 0 || pos+fftSize <= len(x); pos += fftSize / 2 {
		for i := range in {
			v := 0.0
			if pos+i < len(x) {
				v = x[pos+i]
			}
			in[i] = complex(v*win[i], 0)
		}
		if err := plan.Forward(out, in); err != nil {
			return nil, err
		}
		for k := range mags {
			mags[k] += cmplxAbs(out[k])
		}
		frames++
	}
	half := fftSize / 2
	for k := range mags {
		mags[k] /= float64(frames) * norm
		if k > 0 && k < half {
			mags[k] *= 2
		}
	}
	return mags, nil
}

func spectralDistance(a, b []float64, sampleRate float64) float64 {
	sa, err := AverageSpectrum(a, CompareFFTSize)
	if err != nil {
		return 0
	}
	sb, err := AverageSpectrum(b, CompareFFTSize)
	if err != nil {
		return 0
	}
	binHz := sampleRate / CompareFFTSize
	lo := max(1, int(math.Ceil(specLoHz/binHz)))
	hi := min(len(sa)-1, int(specHiHz/binHz))
	if hi < lo {
		return 0
	}
	var sum float64
	for k := lo; k <= hi; k++ {
		d := MagToDB(sa[k]) - MagToDB(sb[k])
		sum += d * d
	}
	return math.Sqrt(sum / float64(hi-lo+1))
}

func trimSilence(x []float64, threshold float64) []float64 {
	for i, v := range x {
		if math.Abs(v) > threshold {
			return x[i:]
		}
	}
	return nil
}

func normalizeRMS(x []float64, target float64) []float64 {
	out := make([]float64, len(x))
	r := rms(x)
	g := 1.0
	if r > 1e-12 {
		g = target / r
	}
	for i, v := range x {
		out[i] = v * g
	}
	return out
}

// estimateLag returns the shift of cand against ref within ±maxLag that
// maximises their cross-correlation, computed with one FFT pair.
// A positive lag means cand leads ref.
func estimateLag(ref, cand []float64, maxLag int) int {
	if len(ref) == 0 || len(cand) == 0 {
		return 0
	}
	n := 1
	for n < len(ref)+len(cand) {
		n <<= 1
	}
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return estimateLagDirect(ref, cand, maxLag)
	}
	a := make([]complex128, n)
	b := make([]complex128, n)
	fa := make([]complex128, n)
	fb := make([]complex128, n)
	for i, v := range ref {
		a[i] = complex(v, 0)
	}
	for i, v := range cand {
		b[i] = complex(v, 0)
	}
	if plan.Forward(fa, a) != nil || plan.Forward(fb, b) != nil {
		return estimateLagDirect(ref, cand, maxLag)
	}
	// corr[lag] = sum ref[i+lag]*cand[i]; the inverse transform uses the
	// conjugate of a forward transform.
	for k := range fa {
		p := fa[k] * complex(real(fb[k]), -imag(fb[k]))
		a[k] = complex(real(p), -imag(p))
	}
	if plan.Forward(fb, a) != nil {
		return estimateLagDirect(ref, cand, maxLag)
	}
	best, bestLag := math.Inf(-1), 0
	for lag := -maxLag; lag <= maxLag; lag++ {
		v := real(fb[(lag+n)%n])
		if v > best {
			best, bestLag = v, lag
		}
	}
	return bestLag
}

func estimateLagDirect(ref, cand []float64, maxLag int) int {
	best, bestLag := math.Inf(-1), 0
	for lag := -maxLag; lag <= maxLag; lag++ {
		ri, ci := max(lag, 0), max(-lag, 0)
		var sum float64
		for i := 0; ri+i < len(ref) && ci+i < len(cand); i++ {
			sum += ref[ri+i] * cand[ci+i]
		}
		if sum > best {
			best, bestLag = sum, lag
		}
	}
	return bestLag
}

func alignByLag(ref, cand []float64, lag int) ([]float64, []float64) {
	if lag >= 0 {
		return ref[min(lag, len(ref)):], cand
	}
	return ref, cand[min(-lag, len(cand)):]
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func rmsEnvelope(x []float64) []float64 {
	if len(x) < envFrame {
		return nil
	}
	out := make([]float64, 1+(len(x)-envFrame)/envHop)
	for i := range out {
		out[i] = rms(x[i*envHop : i*envHop+envFrame])
	}
	return out
}

// decaySlope fits a line to the envelope in dB from its peak down to 60 dB
// below it. It returns NaN when there are too few points.
func decaySlope(env []float64, hopSec float64) float64 {
	if len(env) < 8 || hopSec <= 0 {
		return math.NaN()
	}
	peak, at := math.Inf(-1), 0
	for i, v := range env {
		if db := MagToDB(v); db > peak {
			peak, at = db, i
		}
	}
	start, end := at+1, len(env)
	for i := start; i < len(env); i++ {
		if MagToDB(env[i]) < peak-60 {
			end = i
			break
		}
	}
	if end-start < 6 {
		return math.NaN()
	}
	var sx, sy, sxx, sxy float64
	for i := start; i < end; i++ {
		x := float64(i-start) * hopSec
		y := MagToDB(env[i])
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	n := float64(end - start)
	den := n*sxx - sx*sx
	if math.Abs(den) < 1e-12 {
		return math.NaN()
	}
	return (n*sxy - sx*sy) / den
}

func clamp01(x float64) float64 { return min(max(x, 0), 1) }
