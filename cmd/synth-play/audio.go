package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/cwbudde/algo-synth/synth"
)

// engineReader adapts Engine.Render to the io.Reader oto pulls from.
// oto calls Read from its own goroutine, which becomes the audio goroutine.
type engineReader struct {
	engine  *synth.Engine
	samples []float32
}

func newEngineReader(e *synth.Engine) *engineReader {
	return &engineReader{engine: e, samples: make([]float32, 2*e.Config().MaxBlockFrames)}
}

func (r *engineReader) Read(p []byte) (int, error) {
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	if len(r.samples) < 2*frames {
		r.samples = make([]float32, 2*frames)
	}
	s := r.samples[:2*frames]
	r.engine.Render(s, frames)
	for i, v := range s {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(v))
	}
	return 8 * frames, nil
}

type audioOutput struct {
	ctx    *oto.Context
	player *oto.Player
}

func openAudio(e *synth.Engine, buffer time.Duration) (*audioOutput, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   int(e.Config().SampleRate),
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   buffer,
	})
	if err != nil {
		return nil, fmt.Errorf("audio device: %w", err)
	}
	<-ready
	p := ctx.NewPlayer(newEngineReader(e))
	p.Play()
	return &audioOutput{ctx: ctx, player: p}, nil
}

func (a *audioOutput) Close() error {
	return a.player.Close()
}
