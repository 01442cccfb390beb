package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yoockh/civicvoice/internal/logger"
)

type fakePeer struct {
	mu      sync.Mutex
	frames  [][]byte
	texts   []string
	block   chan struct{}
	sendErr error
}

func (p *fakePeer) SendAudio(ctx context.Context, pcm []byte) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.frames = append(p.frames, pcm)
	return nil
}

func (p *fakePeer) SendText(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, text)
	return nil
}

func (p *fakePeer) Receive() (*Message, error) { return nil, errors.New("not used") }
func (p *fakePeer) Close() error               { return nil }

func (p *fakePeer) sent() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.frames))
	copy(out, p.frames)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met")
}

func TestWriter_DeliversInOrder(t *testing.T) {
	p := &fakePeer{}
	w := NewWriter(context.Background(), p, 8, logger.Discard(), nil)
	defer w.Close()

	for i := 0; i < 5; i++ {
		if !w.Send([]byte{byte(i)}) {
			t.Fatalf("send %d rejected", i)
		}
	}
	waitFor(t, func() bool { return len(p.sent()) == 5 })
	for i, f := range p.sent() {
		if f[0] != byte(i) {
			t.Fatalf("frame %d = %d", i, f[0])
		}
	}
}

func TestWriter_DropsOldestWhenFull(t *testing.T) {
	p := &fakePeer{block: make(chan struct{})}
	w := NewWriter(context.Background(), p, 2, logger.Discard(), nil)

	// the first frame is taken by the goroutine and parks in SendAudio
	w.Send([]byte{0})
	waitFor(t, func() bool { return len(w.queue) == 0 })
	for i := 1; i <= 4; i++ {
		w.Send([]byte{byte(i)})
	}
	if got := w.Dropped(); got != 2 {
		t.Fatalf("dropped=%d, want 2", got)
	}
	close(p.block)
	waitFor(t, func() bool { return len(p.sent()) == 3 })
	w.Close()

	got := p.sent()
	if got[0][0] != 0 || got[1][0] != 3 || got[2][0] != 4 {
		t.Fatalf("sent=%v", got)
	}
}

func TestWriter_ReportsFirstErrorAndStops(t *testing.T) {
	p := &fakePeer{sendErr: errors.New("broken pipe")}
	var mu sync.Mutex
	var calls int
	w := NewWriter(context.Background(), p, 4, logger.Discard(), func(error) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	w.Send([]byte{1})
	w.Send([]byte{2})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	})
	w.Close()
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("onError calls=%d", calls)
	}
}

func TestWriter_CloseIsIdempotent(t *testing.T) {
	w := NewWriter(context.Background(), &fakePeer{}, 4, logger.Discard(), nil)
	w.Close()
	w.Close()
	if w.Send([]byte{1}) {
		t.Fatalf("send after close accepted")
	}
}
