package audio

import "time"

// Voice is a handle to one scheduled chunk. Stopping a finished or already
// stopped voice is a no-op.
type Voice interface {
	Stop()
}

// Output is an audio graph with its own monotonic clock.
type Output interface {
	CurrentTime() time.Duration
	// Play schedules buf to start at the given clock time. onEnded runs once
	// when the chunk finishes naturally; it does not run for stopped voices.
	Play(buf *Buffer, at time.Duration, onEnded func()) Voice
}

// Chunk describes a scheduled inbound chunk.
type Chunk struct {
	ID       uint64
	Start    time.Duration
	Duration time.Duration

	voice Voice
}

// Scheduler plays chunks back to back on an Output clock. It is not safe for
// concurrent use; the call coordinator is its only caller.
type Scheduler struct {
	out     Output
	onEnded func(id uint64)

	next   time.Duration
	seq    uint64
	active map[uint64]*Chunk
}

// NewScheduler builds a scheduler over out. onEnded receives the id of every
// chunk that finishes naturally and should hand it back through Ended on the
// owning goroutine.
func NewScheduler(out Output, onEnded func(id uint64)) *Scheduler {
	return &Scheduler{
		out:     out,
		onEnded: onEnded,
		active:  make(map[uint64]*Chunk),
	}
}

// Enqueue schedules buf at the playback cursor and advances the cursor by the
// chunk's duration. A cursor that fell behind the clock snaps to now first.
func (s *Scheduler) Enqueue(buf *Buffer) Chunk {
	now := s.out.CurrentTime()
	if s.next < now {
		s.next = now
	}

	s.seq++
	id := s.seq
	c := &Chunk{ID: id, Start: s.next, Duration: buf.Duration()}
	c.voice = s.out.Play(buf, c.Start, func() {
		if s.onEnded != nil {
			s.onEnded(id)
		}
	})
	s.active[id] = c
	s.next += c.Duration
	return *c
}

// Ended removes a naturally finished chunk. Unknown ids (already flushed) are
// ignored.
func (s *Scheduler) Ended(id uint64) bool {
	if _, ok := s.active[id]; !ok {
		return false
	}
	delete(s.active, id)
	return true
}

// Flush stops every sounding chunk and moves the cursor to the clock's now.
func (s *Scheduler) Flush() int {
	n := s.stopAll()
	s.next = s.out.CurrentTime()
	return n
}

// Reset stops every chunk and rewinds the cursor for a fresh session.
func (s *Scheduler) Reset() int {
	n := s.stopAll()
	s.next = 0
	return n
}

func (s *Scheduler) Active() int { return len(s.active) }

func (s *Scheduler) NextStart() time.Duration { return s.next }

func (s *Scheduler) stopAll() int {
	n := len(s.active)
	for id, c := range s.active {
		if c.voice != nil {
			c.voice.Stop()
		}
		delete(s.active, id)
	}
	return n
}
