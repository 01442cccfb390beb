package live

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DefaultQueueSize holds roughly three seconds of 512-sample frames at 16 kHz.
const DefaultQueueSize = 96

// Writer drains outbound audio frames to a Peer on its own goroutine so the
// producer never blocks on the network. When the queue is full the oldest
// frame is dropped.
type Writer struct {
	peer    Peer
	log     *logrus.Logger
	onError func(error)

	queue chan []byte
	stop  chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// NewWriter starts the drain goroutine. onError runs at most once, for the
// first failed send; the writer stops after it.
func NewWriter(ctx context.Context, peer Peer, size int, log *logrus.Logger, onError func(error)) *Writer {
	if size <= 0 {
		size = DefaultQueueSize
	}
	w := &Writer{
		peer:    peer,
		log:     log,
		onError: onError,
		queue:   make(chan []byte, size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

// Send queues a frame without blocking. It reports false once the writer is
// closed.
func (w *Writer) Send(frame []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	for {
		select {
		case w.queue <- frame:
			return true
		default:
		}
		select {
		case <-w.queue:
			w.dropped.Add(1)
		default:
		}
	}
}

func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Close stops the goroutine and waits for it. Queued frames are discarded.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.stop)
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case frame := <-w.queue:
			if err := w.peer.SendAudio(ctx, frame); err != nil {
				if w.log != nil {
					w.log.WithError(err).Warn("live: outbound audio send failed")
				}
				if w.onError != nil {
					w.onError(err)
				}
				return
			}
		}
	}
}
