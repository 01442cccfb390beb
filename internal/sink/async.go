package sink

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/civicvoice/internal/models"
)

// Async delivers each complaint on its own goroutine and logs the outcome.
type Async struct {
	Sink    Sink
	Logger  *logrus.Logger
	Timeout time.Duration

	// OnResult, when set, observes every attempt (ledger updates, tests).
	OnResult func(callID string, c models.Complaint, err error)

	wg sync.WaitGroup
}

func (a *Async) Dispatch(callID string, c models.Complaint) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		timeout := a.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err := a.Sink.Deliver(ctx, c)
		if a.Logger != nil {
			log := a.Logger.WithFields(logrus.Fields{"call_id": callID, "complaint_id": c.ID})
			if err != nil {
				log.WithError(err).Error("complaint delivery failed")
			} else {
				log.Info("complaint delivered")
			}
		}
		if a.OnResult != nil {
			a.OnResult(callID, c, err)
		}
	}()
}

// Wait blocks until every dispatched delivery has finished.
func (a *Async) Wait() { a.wg.Wait() }
