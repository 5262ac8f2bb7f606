// Package offline drives a synth.Engine faster than real time for the
// command line tools.
package offline

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-synth/synth"
)

var ErrScript = errors.New("invalid note script")

// Note is one scripted note. Start and Duration are in seconds.
type Note struct {
	Key      uint8
	Start    float64
	Duration float64
}

// ParseScript reads a comma separated list of key@start:duration entries,
// e.g. "60@0:0.5,64@0.5:0.5". Start defaults to 0 and duration to 1.
func ParseScript(s string) ([]Note, error) {
	var notes []Note
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n := Note{Duration: 1}
		key, rest, hasStart := strings.Cut(field, "@")
		k, err := strconv.Atoi(key)
		if err != nil || k < 0 || k > 127 {
			return nil, fmt.Errorf("%w: %q: key must be a MIDI note 0-127", ErrScript, field)
		}
		n.Key = uint8(k)
		if hasStart {
			start, dur, hasDur := strings.Cut(rest, ":")
			if n.Start, err = strconv.ParseFloat(start, 64); err != nil || n.Start < 0 {
				return nil, fmt.Errorf("%w: %q: start must be >= 0", ErrScript, field)
			}
			if hasDur {
				if n.Duration, err = strconv.ParseFloat(dur, 64); err != nil || !(n.Duration > 0) {
					return nil, fmt.Errorf("%w: %q: duration must be > 0", ErrScript, field)
				}
			}
		}
		notes = append(notes, n)
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("%w: no notes", ErrScript)
	}
	return notes, nil
}

// End returns the time the last note is released.
func End(notes []Note) float64 {
	var end float64
	for _, n := range notes {
		end = max(end, n.Start+n.Duration)
	}
	return end
}

// Options bound the render. With DecayDBFS < 0 rendering stops once
// MinDuration has passed and DecayHoldBlocks consecutive blocks stayed
// below that level; otherwise it runs for MaxDuration.
type Options struct {
	BlockSize       int
	MinDuration     float64
	MaxDuration     float64
	DecayDBFS       float64
	DecayHoldBlocks int
}

// DefaultOptions renders two seconds in blocks of 128 frames.
func DefaultOptions() Options {
	return Options{
		BlockSize:       128,
		MaxDuration:     2,
		DecayHoldBlocks: 6,
	}
}

type event struct {
	frame int
	ev    synth.NoteEvent
}

// Render plays notes through e and returns the stereo output.
func Render(e *synth.Engine, notes []Note, opt Options) (left, right []float64, err error) {
	cfg := e.Config()
	if opt.BlockSize <= 0 {
		opt.BlockSize = 128
	}
	if !(opt.MaxDuration > 0) {
		return nil, nil, fmt.Errorf("max duration must be > 0")
	}
	opt.DecayHoldBlocks = max(opt.DecayHoldBlocks, 1)
	sr := cfg.SampleRate
	maxFrames := max(1, int(math.Round(opt.MaxDuration*sr)))
	minFrames := int(math.Round(opt.MinDuration * sr))
	autoStop := opt.DecayDBFS < 0
	threshold := math.Pow(10, opt.DecayDBFS/20)

	events := make([]event, 0, 2*len(notes))
	for _, n := range notes {
		on := int(math.Round(n.Start * sr))
		off := int(math.Round((n.Start + n.Duration) * sr))
		events = append(events,
			event{frame: on, ev: synth.NoteOnAt(n.Key, 0)},
			event{frame: max(off, on+1), ev: synth.NoteOffAt(n.Key, 0)},
		)
	}
	slices.SortStableFunc(events, func(a, b event) int { return a.frame - b.frame })

	left = make([]float64, 0, maxFrames)
	right = make([]float64, 0, maxFrames)
	bl := make([]float64, opt.BlockSize)
	br := make([]float64, opt.BlockSize)
	q := e.Queue()
	next, below := 0, 0
	for pos := 0; pos < maxFrames; {
		n := min(opt.BlockSize, maxFrames-pos)
		for next < len(events) && events[next].frame < pos+n {
			ev := events[next].ev
			ev.Timing = uint32(max(events[next].frame-pos, 0))
			if !q.Push(ev) {
				return nil, nil, fmt.Errorf("note queue full at %.3fs", float64(pos)/sr)
			}
			next++
		}
		e.RenderFloat64(bl[:n], br[:n])
		left = append(left, bl[:n]...)
		right = append(right, br[:n]...)
		pos += n

		if !autoStop || pos < minFrames || next < len(events) {
			continue
		}
		if stereoRMS(bl[:n], br[:n]) < threshold {
			below++
			if below >= opt.DecayHoldBlocks {
				break
			}
		} else {
			below = 0
		}
	}
	return left, right, nil
}

func stereoRMS(left, right []float64) float64 {
	if len(left) == 0 {
		return 0
	}
	var sum float64
	for i := range left {
		sum += left[i]*left[i] + right[i]*right[i]
	}
	return math.Sqrt(sum / float64(2*len(left)))
}

// Interleave packs left and right into one float32 buffer.
func Interleave(left, right []float64) []float32 {
	out := make([]float32, 2*len(left))
	for i := range left {
		out[2*i] = float32(left[i])
		out[2*i+1] = float32(right[i])
	}
	return out
}
