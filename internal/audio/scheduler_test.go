package audio

import (
	"testing"
	"time"
)

type fakeVoice struct {
	stops int
}

func (v *fakeVoice) Stop() { v.stops++ }

type played struct {
	at      time.Duration
	voice   *fakeVoice
	onEnded func()
}

type fakeOutput struct {
	now    time.Duration
	played []played
}

func (o *fakeOutput) CurrentTime() time.Duration { return o.now }

func (o *fakeOutput) Play(buf *Buffer, at time.Duration, onEnded func()) Voice {
	v := &fakeVoice{}
	o.played = append(o.played, played{at: at, voice: v, onEnded: onEnded})
	return v
}

func chunkOf(d time.Duration) *Buffer {
	frames := int(int64(d) * PlaybackSampleRate / int64(time.Second))
	return &Buffer{SampleRate: PlaybackSampleRate, Channels: [][]float32{make([]float32, frames)}}
}

func TestScheduler_GaplessInArrivalOrder(t *testing.T) {
	out := &fakeOutput{now: 2 * time.Second}
	s := NewScheduler(out, nil)

	durs := []time.Duration{40 * time.Millisecond, 100 * time.Millisecond, 20 * time.Millisecond, 250 * time.Millisecond}
	var prev Chunk
	for i, d := range durs {
		c := s.Enqueue(chunkOf(d))
		if i == 0 {
			if c.Start != out.now {
				t.Fatalf("first chunk start=%v, want clock now %v", c.Start, out.now)
			}
		} else if c.Start != prev.Start+prev.Duration {
			t.Fatalf("chunk %d start=%v, want %v", i, c.Start, prev.Start+prev.Duration)
		}
		prev = c
	}
	if s.Active() != len(durs) {
		t.Fatalf("active=%d", s.Active())
	}
	if s.NextStart() != prev.Start+prev.Duration {
		t.Fatalf("cursor=%v", s.NextStart())
	}
}

func TestScheduler_SnapsForwardAfterStall(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out, nil)

	first := s.Enqueue(chunkOf(100 * time.Millisecond))
	out.now = 5 * time.Second
	second := s.Enqueue(chunkOf(100 * time.Millisecond))

	if first.Start != 0 {
		t.Fatalf("first start=%v", first.Start)
	}
	if second.Start != 5*time.Second {
		t.Fatalf("second start=%v, want clock now", second.Start)
	}
	if s.NextStart() < out.now {
		t.Fatalf("cursor behind clock")
	}
}

func TestScheduler_FlushOnInterrupt(t *testing.T) {
	out := &fakeOutput{now: time.Second}
	s := NewScheduler(out, nil)
	for i := 0; i < 3; i++ {
		s.Enqueue(chunkOf(200 * time.Millisecond))
	}

	out.now = 1100 * time.Millisecond
	if n := s.Flush(); n != 3 {
		t.Fatalf("flushed=%d, want 3", n)
	}
	if s.Active() != 0 {
		t.Fatalf("active=%d after flush", s.Active())
	}
	if s.NextStart() != out.now {
		t.Fatalf("cursor=%v, want %v", s.NextStart(), out.now)
	}
	for i, p := range out.played {
		if p.voice.stops != 1 {
			t.Fatalf("voice %d stops=%d", i, p.voice.stops)
		}
	}

	// A second flush is harmless.
	if n := s.Flush(); n != 0 {
		t.Fatalf("second flush=%d", n)
	}
}

func TestScheduler_EndedRemovesByHandle(t *testing.T) {
	out := &fakeOutput{}
	var ended []uint64
	s := NewScheduler(out, func(id uint64) { ended = append(ended, id) })

	a := s.Enqueue(chunkOf(10 * time.Millisecond))
	b := s.Enqueue(chunkOf(10 * time.Millisecond))

	out.played[0].onEnded()
	if len(ended) != 1 || ended[0] != a.ID {
		t.Fatalf("ended=%v", ended)
	}
	if !s.Ended(a.ID) {
		t.Fatalf("Ended(a) should remove")
	}
	if s.Ended(a.ID) {
		t.Fatalf("Ended(a) twice should be false")
	}
	if s.Active() != 1 {
		t.Fatalf("active=%d", s.Active())
	}

	s.Flush()
	if s.Ended(b.ID) {
		t.Fatalf("flushed chunk should not be removable")
	}
}

func TestScheduler_ResetRewindsCursor(t *testing.T) {
	out := &fakeOutput{now: 3 * time.Second}
	s := NewScheduler(out, nil)
	s.Enqueue(chunkOf(time.Second))
	s.Reset()
	if s.NextStart() != 0 || s.Active() != 0 {
		t.Fatalf("cursor=%v active=%d", s.NextStart(), s.Active())
	}
}
