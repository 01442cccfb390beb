package call

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultJournalQueue bounds the journal writes waiting behind a slow store.
const DefaultJournalQueue = 256

type journalJob struct {
	what string
	fn   func(ctx context.Context, j Journal) error
}

// journalQueue applies journal writes one at a time in the order they were
// pushed. push and close are called from the controller loop only.
type journalQueue struct {
	j       Journal
	timeout time.Duration
	log     *logrus.Logger

	jobs   chan journalJob
	closed bool
}

func newJournalQueue(j Journal, size int, timeout time.Duration, log *logrus.Logger) *journalQueue {
	if size <= 0 {
		size = DefaultJournalQueue
	}
	return &journalQueue{j: j, timeout: timeout, log: log, jobs: make(chan journalJob, size)}
}

// start drains the queue on its own goroutine. The returned channel closes
// once close has been called and every queued write has finished.
func (q *journalQueue) start() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for job := range q.jobs {
			q.apply(job)
		}
	}()
	return done
}

func (q *journalQueue) apply(job journalJob) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := job.fn(ctx, q.j); err != nil {
		q.log.WithError(err).WithField("what", job.what).Warn("call journal write failed")
	}
}

// push never blocks the loop. A full queue drops the write.
func (q *journalQueue) push(what string, fn func(ctx context.Context, j Journal) error) {
	if q.j == nil || q.closed {
		return
	}
	select {
	case q.jobs <- journalJob{what: what, fn: fn}:
	default:
		q.log.WithField("what", what).Error("call journal queue full, write dropped")
	}
}

func (q *journalQueue) close() {
	if q.closed {
		return
	}
	q.closed = true
	close(q.jobs)
}
