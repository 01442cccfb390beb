package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"
)

// Graph is the output audio graph: a software mixer whose clock is the number
// of frames it has rendered. A speaker backend pulls from it through Read, so
// the clock follows real playback.
type Graph struct {
	mu       sync.Mutex
	rate     int
	channels int
	frame    int64
	voices   []*graphVoice
	closed   bool
	level    float64

	scratch []float32
}

type graphVoice struct {
	g       *Graph
	start   int64
	samples [][]float32
	onEnded func()
	done    bool
}

func NewGraph(rate, channels int) *Graph {
	if rate <= 0 {
		rate = PlaybackSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	return &Graph{rate: rate, channels: channels}
}

func (g *Graph) SampleRate() int { return g.rate }

func (g *Graph) Channels() int { return g.channels }

func (g *Graph) CurrentTime() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return framesToDuration(g.frame, g.rate)
}

// Play implements Output. Buffers at another rate are resampled to the graph
// rate; mono buffers are spread over every output channel.
func (g *Graph) Play(buf *Buffer, at time.Duration, onEnded func()) Voice {
	v := &graphVoice{
		g:       g,
		start:   durationToFrames(at, g.rate),
		samples: mapChannels(Resample(buf, g.rate), g.channels),
		onEnded: onEnded,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		v.done = true
		return v
	}
	g.voices = append(g.voices, v)
	return v
}

func (v *graphVoice) Stop() {
	g := v.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if v.done {
		return
	}
	v.done = true
	for i, other := range g.voices {
		if other == v {
			g.voices = append(g.voices[:i], g.voices[i+1:]...)
			break
		}
	}
}

func (v *graphVoice) frames() int64 {
	if len(v.samples) == 0 {
		return 0
	}
	return int64(len(v.samples[0]))
}

// Render mixes the next len(dst)/channels frames into dst (interleaved) and
// advances the clock. Voices that finish inside the block get their onEnded
// callback after the lock is released.
func (g *Graph) Render(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	frames := int64(len(dst) / g.channels)
	begin := g.frame
	end := begin + frames

	var finished []*graphVoice
	kept := g.voices[:0]
	for _, v := range g.voices {
		vEnd := v.start + v.frames()
		from, to := max(v.start, begin), min(vEnd, end)
		for f := from; f < to; f++ {
			src := f - v.start
			base := int(f-begin) * g.channels
			for ch := 0; ch < g.channels; ch++ {
				dst[base+ch] += v.samples[ch][src]
			}
		}
		if vEnd <= end {
			v.done = true
			finished = append(finished, v)
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(g.voices); i++ {
		g.voices[i] = nil
	}
	g.voices = kept
	g.frame = end

	for i, s := range dst {
		if s > 1 {
			dst[i] = 1
		} else if s < -1 {
			dst[i] = -1
		}
	}
	g.level = RMS(dst)
	g.mu.Unlock()

	for _, v := range finished {
		if v.onEnded != nil {
			v.onEnded()
		}
	}
}

// Read renders float32 little-endian interleaved frames into p. It returns
// io.EOF once the graph is closed.
func (g *Graph) Read(p []byte) (int, error) {
	frameBytes := 4 * g.channels
	n := len(p) / frameBytes
	if n == 0 {
		return 0, nil
	}

	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return 0, io.EOF
	}

	want := n * g.channels
	if cap(g.scratch) < want {
		g.scratch = make([]float32, want)
	}
	buf := g.scratch[:want]
	g.Render(buf)
	for i, s := range buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return want * 4, nil
}

// Level is the RMS of the most recently rendered block.
func (g *Graph) Level() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

// Pending reports how many voices are scheduled or sounding.
func (g *Graph) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.voices)
}

// Close silences the graph. Calling it again is a no-op.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	for _, v := range g.voices {
		v.done = true
	}
	g.voices = nil
	g.level = 0
	return nil
}

func mapChannels(b *Buffer, n int) [][]float32 {
	out := make([][]float32, n)
	if b == nil || len(b.Channels) == 0 {
		return out
	}
	for ch := range out {
		src := ch
		if src >= len(b.Channels) {
			src = len(b.Channels) - 1
		}
		out[ch] = b.Channels[src]
	}
	return out
}
