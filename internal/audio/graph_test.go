package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"
)

func constBuffer(rate, frames int, v float32) *Buffer {
	s := make([]float32, frames)
	for i := range s {
		s[i] = v
	}
	return &Buffer{SampleRate: rate, Channels: [][]float32{s}}
}

func TestGraph_ClockFollowsRenderedFrames(t *testing.T) {
	g := NewGraph(1000, 1)
	g.Render(make([]float32, 250))
	if got := g.CurrentTime(); got != 250*time.Millisecond {
		t.Fatalf("clock=%v, want 250ms", got)
	}
}

func TestGraph_PlaysAtScheduledTimeAndReportsEnd(t *testing.T) {
	g := NewGraph(1000, 1)
	ended := 0
	g.Play(constBuffer(1000, 10, 0.5), 5*time.Millisecond, func() { ended++ })

	out := make([]float32, 20)
	g.Render(out)
	for i, s := range out {
		want := float32(0)
		if i >= 5 && i < 15 {
			want = 0.5
		}
		if s != want {
			t.Fatalf("frame %d=%f, want %f", i, s, want)
		}
	}
	if ended != 1 {
		t.Fatalf("ended=%d, want 1", ended)
	}
	if g.Pending() != 0 {
		t.Fatalf("pending=%d", g.Pending())
	}
	if g.Level() <= 0 {
		t.Fatalf("level should be positive after sound")
	}
}

func TestGraph_BackToBackChunksHaveNoGap(t *testing.T) {
	g := NewGraph(1000, 1)
	s := NewScheduler(g, nil)
	s.Enqueue(constBuffer(1000, 7, 0.25))
	s.Enqueue(constBuffer(1000, 9, 0.25))

	out := make([]float32, 16)
	g.Render(out)
	for i, v := range out {
		if v != 0.25 {
			t.Fatalf("frame %d=%f, gap or overlap", i, v)
		}
	}
}

func TestGraph_StopSilencesAndSkipsOnEnded(t *testing.T) {
	g := NewGraph(1000, 1)
	ended := 0
	v := g.Play(constBuffer(1000, 100, 0.5), 0, func() { ended++ })

	g.Render(make([]float32, 10))
	v.Stop()
	v.Stop()

	out := make([]float32, 200)
	g.Render(out)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("frame %d=%f after stop", i, s)
		}
	}
	if ended != 0 {
		t.Fatalf("stopped voice reported natural end")
	}
}

func TestGraph_ResamplesAndSpreadsMono(t *testing.T) {
	g := NewGraph(2000, 2)
	g.Play(constBuffer(1000, 4, 0.5), 0, nil)
	out := make([]float32, 16) // 8 stereo frames
	g.Render(out)
	for i, s := range out {
		if s != 0.5 {
			t.Fatalf("sample %d=%f", i, s)
		}
	}
}

func TestGraph_ReadEncodesFloat32AndEOFAfterClose(t *testing.T) {
	g := NewGraph(1000, 1)
	g.Play(constBuffer(1000, 2, 0.75), 0, nil)

	p := make([]byte, 8)
	n, err := g.Read(p)
	if err != nil || n != 8 {
		t.Fatalf("Read n=%d err=%v", n, err)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(p)); got != 0.75 {
		t.Fatalf("sample=%f", got)
	}

	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := g.Read(p); err != io.EOF {
		t.Fatalf("Read after close err=%v, want EOF", err)
	}
	// Playing into a closed graph yields an inert voice.
	g.Play(constBuffer(1000, 2, 1), 0, nil).Stop()
}
