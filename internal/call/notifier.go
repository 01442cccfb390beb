package call

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/civicvoice/internal/models"
)

// EventsChannel is the redis pub/sub channel monitors subscribe to.
const EventsChannel = "call:events"

type EventType string

const (
	EventStatus  EventType = "status"
	EventPartial EventType = "partial"
	EventTurn    EventType = "turn"
	EventRecord  EventType = "record"
	EventError   EventType = "error"
)

// Event is what monitors see of a call.
type Event struct {
	Type      EventType         `json:"type"`
	CallID    string            `json:"call_id,omitempty"`
	State     State             `json:"state,omitempty"`
	Role      models.Role       `json:"role,omitempty"`
	Text      string            `json:"text,omitempty"`
	Turn      *models.Turn      `json:"turn,omitempty"`
	Complaint *models.Complaint `json:"complaint,omitempty"`
	Message   string            `json:"message,omitempty"`
	At        time.Time         `json:"at"`
}

// Notifier receives events from the controller loop. Notify must not block.
type Notifier interface {
	Notify(ev Event)
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes events in order from its own goroutine. Events are
// dropped when the queue is full.
type RedisNotifier struct {
	rdb     publisher
	channel string
	queue   chan Event
	log     *logrus.Logger
}

func NewRedisNotifier(rdb publisher, log *logrus.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: EventsChannel, queue: make(chan Event, 256), log: log}
}

func (n *RedisNotifier) Notify(ev Event) {
	select {
	case n.queue <- ev:
	default:
		if n.log != nil {
			n.log.WithField("type", ev.Type).Debug("monitor queue full, event dropped")
		}
	}
}

func (n *RedisNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.queue:
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := n.rdb.Publish(ctx, n.channel, string(b)).Err(); err != nil && n.log != nil {
				n.log.WithError(err).Warn("publish call event failed")
			}
		}
	}
}
