package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/dsp"
	"github.com/cwbudde/algo-synth/internal/triple"
	"github.com/cwbudde/algo-synth/spectral"
)

// Stats are counters kept by the audio goroutine.
type Stats struct {
	Callbacks     uint64 // Render and RenderFloat64 calls with frames > 0
	Blocks        uint64 // MaxBlockFrames chunks, including skipped ones
	IdleSkipped   uint64 // chunks answered with silence without processing
	DroppedEvents uint64 // note events rejected by the queue
	Faults        uint64 // internal setter or processing errors
	ActiveVoices  int
}

// Engine renders the voices and the effects chain. Render and
// RenderFloat64 must be called from one goroutine at a time; every other
// method is safe from any goroutine.
type Engine struct {
	cfg    Config
	log    logrus.FieldLogger
	params *Params
	queue  *NoteQueue

	voices   *VoicePool
	template *dsp.ADSR
	fx       *fxChain
	rng      *rand.Rand

	maskInput *triple.Buffer[spectral.Mask]
	analyzer  *analysis.Bridge

	pending []NoteEvent
	next    int
	gain    []float64
	left    []float64
	right   []float64

	idleTimer int
	idleHold  int

	randomiseEvery int
	sinceRandomise int

	releaseAll atomic.Bool
	killAll    atomic.Bool
	resetPitch atomic.Bool
	resetPan   atomic.Bool

	lastCallback atomic.Int64 // unix nanoseconds
	lastFrames   atomic.Int64
	callbacks    atomic.Uint64
	blocks       atomic.Uint64
	idleSkipped  atomic.Uint64
	activeVoices atomic.Int32

	closeOnce sync.Once
}

// NewEngine validates cfg and allocates everything the audio path needs.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	template, err := dsp.NewADSR(cfg.SampleRate, cfg.Envelope)
	if err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}

	e := &Engine{
		cfg:            cfg,
		log:            log,
		params:         NewParams(cfg.SampleRate, cfg),
		queue:          NewNoteQueue(cfg.QueueCapacity, log),
		voices:         NewVoicePool(cfg.Polyphony),
		template:       template,
		rng:            rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851F42D4C957F2D)),
		pending:        make([]NoteEvent, 0, cfg.QueueCapacity),
		gain:           make([]float64, MaxSubBlock),
		left:           make([]float64, cfg.MaxBlockFrames),
		right:          make([]float64, cfg.MaxBlockFrames),
		idleHold:       int(math.Round(cfg.SampleRate * IdleHoldSeconds)),
		randomiseEvery: int(math.Round(cfg.SampleRate * cfg.ReRandomiseSeconds)),
	}
	half := cfg.MaskMaxBlockSize / 2
	e.maskInput = triple.New(func() spectral.Mask { return spectral.NewMask(half) })

	if e.fx, err = newFXChain(cfg, e.params, e.maskInput); err != nil {
		return nil, err
	}
	e.fx.bank.Randomise(e.rng)
	e.fx.bank.RandomisePan(e.rng)
	e.fx.bank.Reset()

	if cfg.Analyzer {
		e.analyzer, err = analysis.NewBridge(context.Background(), analysis.BridgeConfig{
			SampleRate: cfg.SampleRate,
			FFTSize:    cfg.AnalyzerFFTSize,
			Workers:    cfg.AnalyzerWorkers,
			MaxFrames:  cfg.MaxBlockFrames,
			Logger:     log,
		})
		if err != nil {
			return nil, fmt.Errorf("analyzer: %w", err)
		}
	}

	log.WithFields(logrus.Fields{
		"sample_rate":  cfg.SampleRate,
		"polyphony":    cfg.Polyphony,
		"oversampling": cfg.Oversampling,
		"resonators":   cfg.ResonatorCount,
		"mask_size":    cfg.MaskBlockSize,
		"analyzer":     cfg.Analyzer,
	}).Info("engine created")
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Params returns the control surface.
func (e *Engine) Params() *Params { return e.params }

// Queue returns the note event queue.
func (e *Engine) Queue() *NoteQueue { return e.queue }

// MaskInput returns the buffer mask producers publish into. Masks of any
// length are stretched to the filter resolution.
func (e *Engine) MaskInput() *triple.Buffer[spectral.Mask] { return e.maskInput }

// Analyzer returns the spectrum bridge, or nil when disabled.
func (e *Engine) Analyzer() *analysis.Bridge { return e.analyzer }

// ReleaseAll releases every voice at the start of the next block.
func (e *Engine) ReleaseAll() { e.releaseAll.Store(true) }

// KillAll silences every voice at the start of the next block.
func (e *Engine) KillAll() { e.killAll.Store(true) }

// RequestResonatorReset re-draws resonator pitches and/or pans at the start
// of the next block.
func (e *Engine) RequestResonatorReset(pitch, pan bool) {
	if pitch {
		e.resetPitch.Store(true)
	}
	if pan {
		e.resetPan.Store(true)
	}
}

// ToggleMaskPostFX moves the spectral mask between the two chain positions
// and returns the new position.
func (e *Engine) ToggleMaskPostFX() bool {
	for {
		old := e.params.MaskPostFX.Load()
		if e.params.MaskPostFX.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Latency returns the delay in frames the effects chain adds with the
// current settings.
func (e *Engine) Latency() int { return e.fx.latency() }

// CurrentSampleIndex estimates the frame inside the current block that
// corresponds to now. Input goroutines use it to timestamp note events.
func (e *Engine) CurrentSampleIndex() uint32 {
	frames := e.lastFrames.Load()
	last := e.lastCallback.Load()
	if frames <= 0 || last == 0 {
		return 0
	}
	elapsed := time.Duration(time.Now().UnixNano() - last)
	idx := int64(math.Round(elapsed.Seconds() * e.cfg.SampleRate))
	if idx < 0 {
		return 0
	}
	return uint32(idx % frames)
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Callbacks:     e.callbacks.Load(),
		Blocks:        e.blocks.Load(),
		IdleSkipped:   e.idleSkipped.Load(),
		DroppedEvents: e.queue.Dropped(),
		Faults:        e.fx.faults.Load(),
		ActiveVoices:  int(e.activeVoices.Load()),
	}
}

// Reset silences the voices and clears all effect state. It must not run
// concurrently with Render.
func (e *Engine) Reset() {
	e.voices.KillAll()
	e.fx.reset()
	e.pending = e.pending[:0]
	e.next = 0
	e.idleTimer = 0
}

// Close disconnects the note queue and stops the analyzer.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.queue.Close()
		if e.analyzer != nil {
			err = e.analyzer.Close()
		}
		e.log.WithFields(logrus.Fields{
			"callbacks":    e.callbacks.Load(),
			"faults":       e.fx.faults.Load(),
			"idle_skipped": e.idleSkipped.Load(),
		}).Info("engine closed")
	})
	return err
}

// Render writes frames of interleaved stereo into out. A call without
// frames leaves queued events for the next one.
func (e *Engine) Render(out []float32, frames int) {
	frames = min(frames, len(out)/2)
	if frames <= 0 {
		return
	}
	e.begin(frames)
	for off := 0; off < frames; off += e.cfg.MaxBlockFrames {
		n := min(e.cfg.MaxBlockFrames, frames-off)
		l, r := e.left[:n], e.right[:n]
		e.process(l, r, off)
		dst := out[2*off : 2*(off+n)]
		for i := range n {
			dst[2*i] = float32(l[i])
			dst[2*i+1] = float32(r[i])
		}
	}
}

// RenderFloat64 overwrites left and right with the next block.
func (e *Engine) RenderFloat64(left, right []float64) {
	frames := min(len(left), len(right))
	if frames <= 0 {
		return
	}
	e.begin(frames)
	for off := 0; off < frames; off += e.cfg.MaxBlockFrames {
		end := min(off+e.cfg.MaxBlockFrames, frames)
		e.process(left[off:end], right[off:end], off)
	}
}

// begin handles cross-goroutine requests and collects the events for a
// block of frames.
func (e *Engine) begin(frames int) {
	e.callbacks.Add(1)
	e.lastCallback.Store(time.Now().UnixNano())
	e.lastFrames.Store(int64(frames))

	if e.killAll.Swap(false) {
		e.voices.KillAll()
	}
	if e.releaseAll.Swap(false) {
		e.voices.ReleaseAll()
	}

	if e.randomiseEvery > 0 {
		e.sinceRandomise += frames
		if e.sinceRandomise >= e.randomiseEvery {
			e.sinceRandomise = 0
			e.resetPitch.Store(true)
		}
	}
	if e.resetPitch.Swap(false) {
		e.fx.bank.Randomise(e.rng)
	}
	if e.resetPan.Swap(false) {
		e.fx.bank.RandomisePan(e.rng)
	}

	e.pending = e.pending[:0]
	e.next = 0
	last := uint32(max(frames-1, 0))
	for len(e.pending) < cap(e.pending) {
		ev, ok := e.queue.Pop()
		if !ok {
			break
		}
		ev.Timing = min(ev.Timing, last)
		e.pending = append(e.pending, ev)
	}
	slices.SortStableFunc(e.pending, func(a, b NoteEvent) int {
		return int(a.Timing) - int(b.Timing)
	})
}

// process renders one block whose first frame is frame base of the
// current callback.
func (e *Engine) process(left, right []float64, base int) {
	clear(left)
	clear(right)
	e.blocks.Add(1)
	n := len(left)

	if e.next >= len(e.pending) && !e.voices.IsActive() && e.idleTimer == 0 {
		e.idleSkipped.Add(1)
		e.activeVoices.Store(0)
		return
	}

	pos := 0
	for pos < n {
		for e.next < len(e.pending) && int(e.pending[e.next].Timing)-base <= pos {
			e.apply(e.pending[e.next])
			e.next++
		}
		end := min(pos+MaxSubBlock, n)
		if e.next < len(e.pending) {
			end = min(end, int(e.pending[e.next].Timing)-base)
		}

		gain := e.gain[:end-pos]
		for i := range gain {
			gain[i] = e.params.VoiceGain.Next()
		}
		e.voices.ProcessBlock(left[pos:end], right[pos:end], gain)
		e.voices.TerminateFinished()
		pos = end
	}
	e.activeVoices.Store(int32(e.voices.ActiveCount()))

	if e.analyzer != nil {
		e.analyzer.Submit(analysis.PreFX, left, right)
	}
	e.fx.process(left, right)
	if e.analyzer != nil {
		e.analyzer.Submit(analysis.PostFX, left, right)
	}

	e.updateIdle(left, right)
}

func (e *Engine) apply(ev NoteEvent) {
	switch ev.Kind {
	case NoteOn:
		env := e.params.Envelope()
		if e.template.SetParameters(env.AttackMs, env.DecayMs, env.Sustain, env.ReleaseMs) != nil {
			e.fx.faults.Add(1)
		}
		if e.template.SetCurve(env.Curve) != nil {
			e.fx.faults.Add(1)
		}
		e.voices.Start(ev.Note, e.template, e.cfg.SampleRate, GeneratorKind(e.params.Generator.Load()))
	case NoteOff:
		e.voices.Release(ev.Note)
	}
}

func (e *Engine) updateIdle(left, right []float64) {
	for i := range left {
		if math.Abs(left[i]) > SilenceThreshold || math.Abs(right[i]) > SilenceThreshold {
			e.idleTimer = e.idleHold
			return
		}
	}
	e.idleTimer = max(0, e.idleTimer-len(left))
}
