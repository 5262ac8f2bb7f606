package analysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-synth/internal/triple"
)

// Which selects the tap an analyzer listens to.
type Which int

const (
	PreFX Which = iota
	PostFX
)

func (w Which) String() string {
	switch w {
	case PreFX:
		return "pre"
	case PostFX:
		return "post"
	default:
		return fmt.Sprintf("which(%d)", int(w))
	}
}

// BridgeConfig configures NewBridge.
type BridgeConfig struct {
	SampleRate float64
	FFTSize    int
	Overlap    int
	Workers    int // clamped to [1, 4]
	MaxFrames  int // largest block Submit copies
	Logger     logrus.FieldLogger
}

type snapshot struct {
	left, right []float64
	n           int
}

type tap struct {
	which Which
	input *triple.Buffer[snapshot]

	mu sync.Mutex // guards an and the output producer side
	an *Spectrum

	output *triple.Buffer[[]float64]
	readMu sync.Mutex
}

// Bridge hands audio blocks from the audio goroutine to background
// spectrum analyzers. Submit never blocks; Latest returns the newest
// published spectrum.
type Bridge struct {
	taps   [2]*tap
	wake   chan Which
	cancel context.CancelFunc
	group  *errgroup.Group
	log    logrus.FieldLogger

	closeOnce sync.Once
	closeErr  error
}

// NewBridge starts the worker pool. Call Close to stop it.
func NewBridge(ctx context.Context, cfg BridgeConfig) (*Bridge, error) {
	if cfg.FFTSize == 0 {
		cfg.FFTSize = DefaultFFTSize
	}
	if cfg.MaxFrames <= 0 {
		return nil, fmt.Errorf("max frames must be > 0")
	}
	cfg.Workers = min(max(cfg.Workers, 1), 4)
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	b := &Bridge{
		wake: make(chan Which, 2*cfg.Workers),
		log:  log,
	}
	for i := range b.taps {
		an, err := NewSpectrum(cfg.SampleRate, cfg.FFTSize, cfg.Overlap, 2)
		if err != nil {
			return nil, fmt.Errorf("%s analyzer: %w", Which(i), err)
		}
		bins := an.Bins()
		b.taps[i] = &tap{
			which: Which(i),
			an:    an,
			input: triple.New(func() snapshot {
				return snapshot{
					left:  make([]float64, cfg.MaxFrames),
					right: make([]float64, cfg.MaxFrames),
				}
			}),
			output: triple.New(func() []float64 {
				out := make([]float64, bins)
				for k := range out {
					out[k] = FloorDB
				}
				return out
			}),
		}
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.group, ctx = errgroup.WithContext(ctx)
	for range cfg.Workers {
		b.group.Go(func() error { return b.work(ctx) })
	}
	log.WithFields(logrus.Fields{
		"fft_size": cfg.FFTSize,
		"workers":  cfg.Workers,
	}).Debug("spectrum bridge started")
	return b, nil
}

// Submit publishes a copy of one stereo block for analysis. Frames beyond
// the configured maximum are dropped. It is safe to call from the audio
// goroutine.
func (b *Bridge) Submit(which Which, left, right []float64) {
	t := b.taps[which]
	slot := t.input.WriteSlot()
	n := copy(slot.left, left)
	if right == nil {
		right = left
	}
	copy(slot.right[:n], right)
	slot.n = n
	t.input.Publish()
	select {
	case b.wake <- which:
	default:
	}
}

func (b *Bridge) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case w := <-b.wake:
			b.taps[w].drain()
		}
	}
}

// drain analyses the newest snapshot unless another worker holds the tap.
func (t *tap) drain() {
	if !t.mu.TryLock() {
		return
	}
	defer t.mu.Unlock()
	snap, fresh := t.input.Read()
	if !fresh {
		return
	}
	if !t.an.Process(snap.left[:snap.n], snap.right[:snap.n]) {
		return
	}
	slot := t.output.WriteSlot()
	*slot = t.an.DB(*slot)
	t.output.Publish()
}

// Latest returns a copy of the newest published spectrum in dB.
func (b *Bridge) Latest(which Which) []float64 {
	return b.LatestInto(which, nil)
}

// LatestInto is Latest writing into dst.
func (b *Bridge) LatestInto(which Which, dst []float64) []float64 {
	t := b.taps[which]
	t.readMu.Lock()
	defer t.readMu.Unlock()
	v, _ := t.output.Read()
	return append(dst[:0], (*v)...)
}

// BinFreq returns the frequency of spectrum bin k.
func (b *Bridge) BinFreq(k int) float64 { return b.taps[PreFX].an.BinFreq(k) }

// Close stops the workers and waits for them.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.cancel()
		b.closeErr = b.group.Wait()
		b.log.Debug("spectrum bridge stopped")
	})
	return b.closeErr
}
