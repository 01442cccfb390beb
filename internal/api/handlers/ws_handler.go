package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/civicvoice/internal/call"
)

// EventSource yields raw call event payloads until cancel is called.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan []byte, func(), error)
}

type RedisEventSource struct {
	Redis   *redis.Client
	Channel string
}

func NewRedisEventSource(rdb *redis.Client) *RedisEventSource {
	return &RedisEventSource{Redis: rdb, Channel: call.EventsChannel}
}

func (s *RedisEventSource) Subscribe(ctx context.Context) (<-chan []byte, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	pubsub := s.Redis.Subscribe(ctx, s.Channel)
	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for {
			m, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				return
			}
			select {
			case out <- []byte(m.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() {
		cancel()
		_ = pubsub.Close()
	}, nil
}

type WSHandler struct {
	ctl      CallControl
	events   EventSource
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(ctl CallControl, events EventSource, log *logrus.Logger) *WSHandler {
	return &WSHandler{
		ctl:    ctl,
		events: events,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type wsClientMsg struct {
	Type string `json:"type"`
}

type wsServerMsg struct {
	Type     string         `json:"type"`
	State    call.State     `json:"state,omitempty"`
	Snapshot *call.Snapshot `json:"snapshot,omitempty"`
	Code     string         `json:"code,omitempty"`
	Message  string         `json:"message,omitempty"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) writeJSON(v wsServerMsg) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.writeText(b)
}

// CallWS streams call events to a monitor. Operators may also drive the call
// with start_call, end_call and clear_history messages.
func (h *WSHandler) CallWS(c *gin.Context) {
	operatorID, ok := requireOperatorID(c)
	if !ok {
		return
	}
	role := c.GetString("role")
	canControl := role == "operator" || role == "admin"

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, unsubscribe, err := h.events.Subscribe(ctx)
	if err != nil {
		_ = wc.writeJSON(wsServerMsg{Type: "error", Code: "UNAVAILABLE", Message: "event feed unavailable"})
		return
	}
	defer unsubscribe()

	if snap, err := h.ctl.Snapshot(ctx); err == nil {
		_ = wc.writeJSON(wsServerMsg{Type: "snapshot", Snapshot: &snap})
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = wc.writeJSON(wsServerMsg{Type: "error", Code: "INVALID_ARGUMENT", Message: "invalid json"})
				continue
			}
			if msg.Type == "ping" {
				_ = wc.writeJSON(wsServerMsg{Type: "pong"})
				continue
			}
			if !canControl {
				_ = wc.writeJSON(wsServerMsg{Type: "error", Code: "FORBIDDEN", Message: "monitor connections are read only"})
				continue
			}
			h.control(ctx, wc, operatorID, msg.Type)
		}
	}()

	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case payload, ok := <-events:
			if !ok {
				return
			}
			if werr := wc.writeText(payload); werr != nil {
				return
			}
		}
	}
}

func (h *WSHandler) control(ctx context.Context, wc *wsConn, operatorID, kind string) {
	var err error
	reply := wsServerMsg{Type: "ack"}

	switch kind {
	case "start_call":
		reply.State, err = h.ctl.StartCall(ctx)
	case "end_call":
		err = h.ctl.EndCall(ctx)
		reply.State = call.StateIdle
	case "clear_history":
		err = h.ctl.ClearHistory(ctx)
	default:
		_ = wc.writeJSON(wsServerMsg{Type: "error", Code: "INVALID_ARGUMENT", Message: "unknown message type"})
		return
	}

	if err != nil {
		_ = wc.writeJSON(wsServerMsg{Type: "error", Code: "UNAVAILABLE", Message: err.Error()})
		return
	}
	if h.log != nil {
		h.log.WithFields(logrus.Fields{"operator": operatorID, "command": kind}).Info("ws control")
	}
	_ = wc.writeJSON(reply)
}
