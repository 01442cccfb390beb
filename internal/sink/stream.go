package sink

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/civicvoice/internal/models"
)

const DefaultStream = "complaint:stream"

// Ledger records a complaint before it is queued for delivery.
type Ledger interface {
	Pending(ctx context.Context, callID string, c models.Complaint) error
}

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Stream persists the complaint as pending and appends it to a redis stream
// that workers.SinkWorkerPool consumes.
type Stream struct {
	Redis  streamAdder
	Ledger Ledger
	Name   string
	Logger *logrus.Logger

	wg sync.WaitGroup
}

func NewStream(rdb *redis.Client, ledger Ledger, log *logrus.Logger) *Stream {
	return &Stream{Redis: rdb, Ledger: ledger, Name: DefaultStream, Logger: log}
}

func (s *Stream) Dispatch(callID string, c models.Complaint) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.enqueue(ctx, callID, c); err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithFields(logrus.Fields{
				"call_id":      callID,
				"complaint_id": c.ID,
			}).Error("complaint enqueue failed")
		}
	}()
}

func (s *Stream) Wait() { s.wg.Wait() }

func (s *Stream) enqueue(ctx context.Context, callID string, c models.Complaint) error {
	if s.Ledger != nil {
		if err := s.Ledger.Pending(ctx, callID, c); err != nil {
			// the worker upserts the row on delivery
			if s.Logger != nil {
				s.Logger.WithError(err).WithField("complaint_id", c.ID).Warn("complaint ledger write failed")
			}
		}
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	name := s.Name
	if name == "" {
		name = DefaultStream
	}
	return s.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: name,
		Values: map[string]any{
			"call_id":      callID,
			"complaint_id": c.ID,
			"complaint":    string(payload),
		},
	}).Err()
}
