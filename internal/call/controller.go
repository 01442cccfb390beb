// Package call runs the duplex call session: it owns the microphone, the
// speaker graph and the peer channel for one call at a time and decides when
// the call ends.
package call

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/civicvoice/internal/audio"
	"github.com/yoockh/civicvoice/internal/extract"
	"github.com/yoockh/civicvoice/internal/models"
	"github.com/yoockh/civicvoice/internal/providers/live"
	"github.com/yoockh/civicvoice/internal/sink"
	"github.com/yoockh/civicvoice/internal/utils"
)

// ErrStopped is returned by commands once Run has returned.
var ErrStopped = errors.New("call controller stopped")

// DefaultGracePeriod lets the agent finish speaking after it reads out the
// complaint number.
const DefaultGracePeriod = 5 * time.Second

type Config struct {
	Setup       live.Setup
	Constraints audio.Constraints
	FrameSize   int
	OutputRate  int
	GracePeriod time.Duration
	QueueSize   int

	// PersistTimeout bounds each journal write. JournalQueue bounds the
	// writes waiting to be applied.
	PersistTimeout time.Duration
	JournalQueue   int
}

func (c *Config) defaults() {
	if c.Constraints == (audio.Constraints{}) {
		c.Constraints = audio.DefaultConstraints()
	}
	if c.FrameSize <= 0 {
		c.FrameSize = audio.DefaultFrameSize
	}
	if c.OutputRate <= 0 {
		c.OutputRate = audio.PlaybackSampleRate
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.QueueSize <= 0 {
		c.QueueSize = live.DefaultQueueSize
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
}

// Journal records call facts outside the session. Calls are made one at a
// time, in the order the facts happened, off the controller loop; failures
// are logged.
type Journal interface {
	CallStarted(ctx context.Context, callID, model, voice string, at time.Time) error
	TurnsCompleted(ctx context.Context, callID string, turns []models.Turn) error
	ComplaintExtracted(ctx context.Context, callID string, c models.Complaint) error
	CallEnded(ctx context.Context, callID, reason string, turns []models.Turn, at time.Time) error
}

// Deps are the collaborators of a Controller. Devices and Dialer are
// required; the rest may be nil.
type Deps struct {
	Devices    audio.Devices
	Dialer     live.Dialer
	Dispatcher sink.Dispatcher
	Journal    Journal
	Notifier   Notifier
	Clock      Clock
	Logger     *logrus.Logger
}

// Snapshot is a consistent view of the controller.
type Snapshot struct {
	State         State         `json:"state"`
	CallID        string        `json:"call_id,omitempty"`
	Turns         []models.Turn `json:"turns"`
	CallerPartial string        `json:"caller_partial,omitempty"`
	AgentPartial  string        `json:"agent_partial,omitempty"`
	Error         string        `json:"error,omitempty"`
	ActiveChunks  int           `json:"active_chunks"`
	NextStartMS   int64         `json:"next_start_ms"`
	InputLevel    float64       `json:"input_level"`
	OutputLevel   float64       `json:"output_level"`
}

// Controller serializes every change to call state through the goroutine
// running Run. Capture, peer, playback and timer callbacks post events to it;
// the exported methods are commands answered by the loop.
type Controller struct {
	cfg  Config
	deps Deps
	log  *logrus.Logger

	events  chan any
	done    chan struct{}
	journal *journalQueue

	// loop-owned
	gen     uint64
	sess    *session
	turns   []models.Turn
	lastErr string
}

func New(cfg Config, deps Deps) *Controller {
	cfg.defaults()
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	log := deps.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Controller{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		events:  make(chan any, 256),
		done:    make(chan struct{}),
		journal: newJournalQueue(deps.Journal, cfg.JournalQueue, cfg.PersistTimeout, log),
	}
}

// Run processes events until ctx is done, then tears down any live call and
// waits for the journal to catch up.
func (c *Controller) Run(ctx context.Context) {
	journaled := c.journal.start()
	defer close(c.done)
	defer func() {
		c.journal.close()
		<-journaled
	}()
	defer c.teardown(EndShutdown)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// StartCall is the single call button: it starts a call when idle and ends
// the current one otherwise. It returns the resulting state.
func (c *Controller) StartCall(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	if err := c.command(ctx, startCmd{reply: reply}); err != nil {
		return "", err
	}
	return await(ctx, c.done, reply)
}

// EndCall tears the current call down. It is a no-op when idle.
func (c *Controller) EndCall(ctx context.Context) error {
	reply := make(chan struct{}, 1)
	if err := c.command(ctx, endCmd{reply: reply}); err != nil {
		return err
	}
	_, err := await(ctx, c.done, reply)
	return err
}

// ClearHistory empties the turn list. It does not touch the live call.
func (c *Controller) ClearHistory(ctx context.Context) error {
	reply := make(chan struct{}, 1)
	if err := c.command(ctx, clearCmd{reply: reply}); err != nil {
		return err
	}
	_, err := await(ctx, c.done, reply)
	return err
}

func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := c.command(ctx, snapshotCmd{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	return await(ctx, c.done, reply)
}

func (c *Controller) command(ctx context.Context, cmd any) error {
	select {
	case c.events <- cmd:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-done:
		// the loop may have answered just before exiting
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrStopped
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// post delivers ev from a callback goroutine. It gives up when the
// controller stops or when scope (the producing session) is cancelled.
func (c *Controller) post(scope context.Context, ev any) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	case <-scope.Done():
		return false
	}
}

func (c *Controller) handle(ev any) {
	switch e := ev.(type) {
	case startCmd:
		if c.sess == nil {
			c.start()
		} else {
			c.teardown(EndUser)
		}
		e.reply <- c.state()
	case endCmd:
		c.teardown(EndUser)
		e.reply <- struct{}{}
	case clearCmd:
		c.turns = nil
		e.reply <- struct{}{}
	case snapshotCmd:
		e.reply <- c.snapshot()
	case connectedEvent:
		c.onConnected(e)
	case peerEvent:
		if c.current(e.gen) {
			c.onPeerMessage(e.msg)
		}
	case peerDoneEvent:
		if c.current(e.gen) {
			c.onPeerDone(e.err)
		}
	case chunkEndedEvent:
		if c.current(e.gen) && c.sess.scheduler != nil {
			c.sess.scheduler.Ended(e.id)
		}
	case autoEndEvent:
		if c.current(e.gen) && c.sess.state == StateClosing {
			c.teardown(EndAutoEnd)
		}
	}
}

func (c *Controller) current(gen uint64) bool {
	return c.sess != nil && c.sess.gen == gen
}

func (c *Controller) state() State {
	if c.sess == nil {
		return StateIdle
	}
	return c.sess.state
}

func (c *Controller) start() {
	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		gen:       c.gen,
		callID:    uuid.NewString(),
		state:     StateConnecting,
		startedAt: c.deps.Clock.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.sess = s
	c.lastErr = ""

	c.log.WithField("call_id", s.callID).Info("call connecting")
	c.notify(Event{Type: EventStatus, State: StateConnecting})

	go c.connect(ctx, s.gen)
}

// connect acquires every resource of a call off the loop and posts the
// result. A result nobody receives is released here.
func (c *Controller) connect(ctx context.Context, gen uint64) {
	res, err := c.acquire(ctx)
	if err != nil {
		res.release()
		res = nil
	}
	if !c.post(context.Background(), connectedEvent{gen: gen, res: res, err: err}) {
		res.release()
	}
}

func (c *Controller) acquire(ctx context.Context) (*resources, error) {
	const op = "call.Controller.acquire"

	r := &resources{uplink: &uplink{}}
	r.input = audio.NewInput(c.cfg.FrameSize, r.uplink.send)

	capture, err := c.deps.Devices.OpenCapture(ctx, c.cfg.Constraints, r.input.Write)
	if err != nil {
		return r, utils.E(utils.CodeInitialization, op, "open capture device", err)
	}
	r.capture = capture

	r.output = audio.NewGraph(c.cfg.OutputRate, 1)
	speaker, err := c.deps.Devices.OpenOutput(ctx, r.output)
	if err != nil {
		return r, utils.E(utils.CodeInitialization, op, "open output device", err)
	}
	r.speaker = speaker

	peer, err := c.deps.Dialer.Dial(ctx, c.cfg.Setup)
	if err != nil {
		return r, utils.E(utils.CodeInitialization, op, "open peer channel", err)
	}
	r.peer = peer
	return r, nil
}

func (c *Controller) onConnected(e connectedEvent) {
	if !c.current(e.gen) || c.sess.state != StateConnecting {
		e.res.release()
		return
	}
	s := c.sess
	log := c.log.WithField("call_id", s.callID)

	if e.err != nil {
		log.WithError(e.err).Error("call initialization failed")
		c.fail(MsgInitFailed)
		c.teardown(EndInitFailed)
		return
	}

	s.res = e.res
	gen := s.gen
	s.scheduler = audio.NewScheduler(s.res.output, func(id uint64) {
		c.post(s.ctx, chunkEndedEvent{gen: gen, id: id})
	})
	s.res.writer = live.NewWriter(s.ctx, s.res.peer, c.cfg.QueueSize, c.log, func(err error) {
		c.post(s.ctx, peerDoneEvent{gen: gen, err: err})
	})
	s.res.uplink.w.Store(s.res.writer)
	s.state = StateActive

	go c.receive(s.ctx, gen, s.res.peer)
	go c.greet(s.ctx, gen, s.res.peer)

	log.Info("call active")
	c.notify(Event{Type: EventStatus, State: StateActive})

	callID, at := s.callID, s.startedAt
	c.persist("call started", func(ctx context.Context, j Journal) error {
		return j.CallStarted(ctx, callID, c.cfg.Setup.Model, c.cfg.Setup.Voice, at)
	})
}

func (c *Controller) receive(ctx context.Context, gen uint64, peer live.Peer) {
	for {
		msg, err := peer.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			c.post(ctx, peerDoneEvent{gen: gen, err: err})
			return
		}
		if !c.post(ctx, peerEvent{gen: gen, msg: msg}) {
			return
		}
	}
}

func (c *Controller) greet(ctx context.Context, gen uint64, peer live.Peer) {
	if err := peer.SendText(ctx, live.GreetingTrigger); err != nil && ctx.Err() == nil {
		c.post(ctx, peerDoneEvent{gen: gen, err: err})
	}
}

func (c *Controller) onPeerMessage(m *live.Message) {
	s := c.sess
	if s.scheduler == nil {
		return
	}

	if len(m.Audio) > 0 {
		buf, err := audio.Decode(m.Audio, audio.PlaybackSampleRate, 1)
		if err != nil {
			c.log.WithError(err).WithField("call_id", s.callID).Warn("inbound audio chunk dropped")
		} else {
			s.scheduler.Enqueue(buf)
		}
	}

	if m.Interrupted {
		n := s.scheduler.Flush()
		c.log.WithFields(logrus.Fields{"call_id": s.callID, "stopped": n}).Debug("playback flushed on interruption")
	}

	if m.InputText != "" {
		s.assembler.Append(models.RoleCaller, m.InputText)
		c.notify(Event{Type: EventPartial, Role: models.RoleCaller, Text: s.assembler.Partial(models.RoleCaller)})
	}
	if m.OutputText != "" {
		s.assembler.Append(models.RoleAgent, m.OutputText)
		c.notify(Event{Type: EventPartial, Role: models.RoleAgent, Text: s.assembler.Partial(models.RoleAgent)})
	}

	if m.TurnComplete {
		c.completeTurn()
	}
}

func (c *Controller) completeTurn() {
	s := c.sess
	turns := s.assembler.Complete(c.deps.Clock.Now())
	if len(turns) == 0 {
		return
	}
	c.turns = append(c.turns, turns...)
	s.turns = append(s.turns, turns...)

	for i := range turns {
		t := turns[i]
		c.notify(Event{Type: EventTurn, Turn: &t})
		if t.Role == models.RoleAgent {
			c.inspectAgentTurn(t.Text)
		}
	}

	callID := s.callID
	done := append([]models.Turn(nil), turns...)
	c.persist("turns", func(ctx context.Context, j Journal) error {
		return j.TurnsCompleted(ctx, callID, done)
	})
}

// inspectAgentTurn forwards an embedded complaint and arms the auto-end
// timer. The two checks are independent.
func (c *Controller) inspectAgentTurn(text string) {
	s := c.sess
	log := c.log.WithField("call_id", s.callID)

	rec, err := extract.Record(text)
	switch {
	case err != nil:
		log.WithError(err).Warn("complaint block ignored")
	case rec != nil:
		log.WithField("complaint_id", rec.ID).Info("complaint extracted")
		c.notify(Event{Type: EventRecord, Complaint: rec})
		if c.deps.Dispatcher != nil {
			c.deps.Dispatcher.Dispatch(s.callID, *rec)
		}
		callID, cp := s.callID, *rec
		c.persist("complaint", func(ctx context.Context, j Journal) error {
			return j.ComplaintExtracted(ctx, callID, cp)
		})
	}

	if extract.CloseCue(text) && s.autoEnd == nil && s.state == StateActive {
		s.state = StateClosing
		gen, scope := s.gen, s.ctx
		s.autoEnd = c.deps.Clock.AfterFunc(c.cfg.GracePeriod, func() {
			c.post(scope, autoEndEvent{gen: gen})
		})
		log.WithField("grace", c.cfg.GracePeriod.String()).Info("close cue heard, call ending")
		c.notify(Event{Type: EventStatus, State: StateClosing})
	}
}

func (c *Controller) onPeerDone(err error) {
	log := c.log.WithField("call_id", c.sess.callID)
	if err == nil {
		log.Info("peer closed the call")
		c.teardown(EndPeerClose)
		return
	}
	log.WithError(err).Error("peer channel failed")
	c.fail(MsgSignalInterruption)
	c.teardown(EndPeerError)
}

func (c *Controller) fail(msg string) {
	c.lastErr = msg
	c.notify(Event{Type: EventError, Message: msg})
}

// teardown ends the current call. With no call it does nothing. History is
// kept.
func (c *Controller) teardown(reason string) {
	s := c.sess
	if s == nil {
		return
	}
	c.sess = nil

	if s.autoEnd != nil {
		s.autoEnd.Stop()
		s.autoEnd = nil
	}
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Reset()
	}
	s.res.release()
	s.assembler.Reset()

	endedAt := c.deps.Clock.Now()
	c.log.WithFields(logrus.Fields{
		"call_id": s.callID,
		"reason":  reason,
		"turns":   len(s.turns),
	}).Info("call ended")
	c.notify(Event{Type: EventStatus, CallID: s.callID, State: StateIdle, Message: reason})

	if s.state == StateConnecting {
		// never reached the peer, nothing was journaled
		return
	}
	callID, turns := s.callID, s.turns
	c.persist("call ended", func(ctx context.Context, j Journal) error {
		return j.CallEnded(ctx, callID, reason, turns, endedAt)
	})
}

func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{
		State: c.state(),
		Turns: append([]models.Turn{}, c.turns...),
		Error: c.lastErr,
	}
	s := c.sess
	if s == nil {
		return snap
	}
	snap.CallID = s.callID
	snap.CallerPartial = s.assembler.Partial(models.RoleCaller)
	snap.AgentPartial = s.assembler.Partial(models.RoleAgent)
	if s.scheduler != nil {
		snap.ActiveChunks = s.scheduler.Active()
		snap.NextStartMS = s.scheduler.NextStart().Milliseconds()
	}
	if s.res != nil {
		snap.InputLevel = s.res.input.Level()
		snap.OutputLevel = s.res.output.Level()
	}
	return snap
}

func (c *Controller) notify(ev Event) {
	if c.deps.Notifier == nil {
		return
	}
	if ev.CallID == "" && c.sess != nil {
		ev.CallID = c.sess.callID
	}
	ev.At = c.deps.Clock.Now().UTC()
	c.deps.Notifier.Notify(ev)
}

func (c *Controller) persist(what string, fn func(ctx context.Context, j Journal) error) {
	c.journal.push(what, fn)
}
