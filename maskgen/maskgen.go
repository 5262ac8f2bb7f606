// Package maskgen produces slowly evolving spectral masks from a
// diffusion-smoothed noise field.
//
// Each Fourier mode of the field is an Ornstein-Uhlenbeck process. Its
// stationary amplitude falls off with the eigenvalue of the periodic
// Laplacian, which smooths the mask across frequency, and its decay rate
// grows with the same eigenvalue, so fine detail changes faster than the
// broad shape.
package maskgen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	algofft "github.com/cwbudde/algo-fft"
	pdefd "github.com/cwbudde/algo-pde/fd"
	pdepoisson "github.com/cwbudde/algo-pde/poisson"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-synth/internal/triple"
	"github.com/cwbudde/algo-synth/spectral"
)

var ErrConfig = errors.New("invalid mask generator config")

// Config describes the field.
type Config struct {
	Bins       int     // mask length, power of two
	Smoothness float64 // correlation length in bins
	Rate       float64 // evolution speed of the broad shape in 1/s
	Floor      float64 // lowest gain
	Ceil       float64 // highest gain
	Seed       uint64
	Logger     logrus.FieldLogger
}

// DefaultConfig returns a gentle mask suited to a 2048 point filter.
func DefaultConfig() Config {
	return Config{
		Bins:       1024,
		Smoothness: 24,
		Rate:       0.5,
		Floor:      0,
		Ceil:       1,
		Seed:       1,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Bins < 4 || c.Bins&(c.Bins-1) != 0 {
		return fmt.Errorf("%w: bins must be a power of two >= 4", ErrConfig)
	}
	if c.Smoothness < 0 {
		return fmt.Errorf("%w: smoothness must be >= 0", ErrConfig)
	}
	if !(c.Rate > 0) {
		return fmt.Errorf("%w: rate must be > 0", ErrConfig)
	}
	if c.Floor < 0 || c.Ceil < c.Floor {
		return fmt.Errorf("%w: need 0 <= floor <= ceil", ErrConfig)
	}
	return nil
}

// Generator evolves the field. It is not safe for concurrent use.
type Generator struct {
	cfg  Config
	log  logrus.FieldLogger
	rng  *rand.Rand
	plan *algofft.Plan[complex128]

	sigma []float64 // stationary amplitude per mode
	rate  []float64 // decay rate per mode
	state []complex128
	noise []complex128
	work  []complex128
	mask  spectral.Mask
	steps uint64
}

// New creates a generator and draws its initial field from the stationary
// distribution.
func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	n := cfg.Bins
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("mask generator fft plan: %w", err)
	}

	h := 1 / float64(n)
	lambda := pdefd.Eigenvalues(n, h, pdepoisson.Periodic)
	if len(lambda) != n {
		return nil, fmt.Errorf("got %d eigenvalues, want %d", len(lambda), n)
	}

	g := &Generator{
		cfg:   cfg,
		log:   log,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9E3779B97F4A7C15)),
		plan:  plan,
		sigma: make([]float64, n),
		rate:  make([]float64, n),
		state: make([]complex128, n),
		noise: make([]complex128, n),
		work:  make([]complex128, n),
		mask:  spectral.NewMask(n),
	}
	l2 := cfg.Smoothness * cfg.Smoothness
	for k, lam := range lambda {
		// lam*h^2 is the squared discrete wavenumber.
		kk := lam * h * h
		g.sigma[k] = math.Exp(-0.5 * l2 * kk)
		g.rate[k] = cfg.Rate * (1 + l2*kk)
	}
	g.sigma[0] = 0 // the mean is set by floor and ceil

	if err := g.drawNoise(); err != nil {
		return nil, err
	}
	for k := range g.state {
		g.state[k] = g.noise[k] * complex(g.sigma[k], 0)
	}
	if err := g.render(); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"bins":       n,
		"smoothness": cfg.Smoothness,
		"rate":       cfg.Rate,
	}).Debug("mask generator created")
	return g, nil
}

// drawNoise fills g.noise with the spectrum of unit white noise, which is
// Hermitian so the field stays real.
func (g *Generator) drawNoise() error {
	scale := 1 / math.Sqrt(float64(len(g.work)))
	for i := range g.work {
		g.work[i] = complex(g.rng.NormFloat64()*scale, 0)
	}
	return g.plan.Forward(g.noise, g.work)
}

// Step advances the field by dt seconds and returns the new mask. The
// slice is owned by the generator and reused.
func (g *Generator) Step(dt float64) (spectral.Mask, error) {
	if dt < 0 {
		return nil, fmt.Errorf("dt must be >= 0")
	}
	if err := g.drawNoise(); err != nil {
		return nil, err
	}
	for k := range g.state {
		a := math.Exp(-g.rate[k] * dt)
		b := g.sigma[k] * math.Sqrt(1-a*a)
		g.state[k] = g.state[k]*complex(a, 0) + g.noise[k]*complex(b, 0)
	}
	g.steps++
	if err := g.render(); err != nil {
		return nil, err
	}
	return g.mask, nil
}

// Mask returns the current mask.
func (g *Generator) Mask() spectral.Mask { return g.mask }

// Steps returns how often Step ran.
func (g *Generator) Steps() uint64 { return g.steps }

// render transforms the state to the bin domain and maps it through a
// tanh onto [Floor, Ceil].
func (g *Generator) render() error {
	n := len(g.state)
	for k, v := range g.state {
		g.work[k] = complex(real(v), -imag(v))
	}
	if err := g.plan.Forward(g.noise, g.work); err != nil {
		return err
	}
	var power float64
	for _, v := range g.noise {
		power += real(v) * real(v)
	}
	std := math.Sqrt(power / float64(n))
	if std < 1e-12 {
		std = 1
	}
	mid := 0.5 * (g.cfg.Floor + g.cfg.Ceil)
	half := 0.5 * (g.cfg.Ceil - g.cfg.Floor)
	for i, v := range g.noise {
		g.mask[i] = mid + half*math.Tanh(real(v)/std)
	}
	return nil
}

// Publish copies the current mask into out.
func (g *Generator) Publish(out *triple.Buffer[spectral.Mask]) {
	slot := out.WriteSlot()
	*slot = append((*slot)[:0], g.mask...)
	out.Publish()
}

// Run steps the field every interval and publishes each mask into out
// until ctx is done.
func (g *Generator) Run(ctx context.Context, out *triple.Buffer[spectral.Mask], interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	g.Publish(out)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.log.WithField("steps", g.steps).Debug("mask generator stopped")
			return nil
		case <-ticker.C:
			if _, err := g.Step(interval.Seconds()); err != nil {
				return fmt.Errorf("mask step: %w", err)
			}
			g.Publish(out)
		}
	}
}
