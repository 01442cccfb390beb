// Package live is the bidirectional channel to the remote conversational
// agent: PCM in, PCM plus transcriptions out.
package live

import "context"

// GreetingTrigger is sent as text once the channel is ready; the agent
// answers it with its opening greeting.
const GreetingTrigger = "START_GREETING_NOW"

// Setup is the per-call channel configuration.
type Setup struct {
	Model             string
	Voice             string
	SystemInstruction string
	ThinkingBudget    int32
}

// Message is one server event. Any combination of fields may be set.
type Message struct {
	Audio        []byte // 24 kHz mono int16 LE
	Interrupted  bool
	InputText    string
	OutputText   string
	TurnComplete bool
}

// Peer is an open channel. Receive blocks until the next message; it returns
// io.EOF once the remote side has closed normally.
type Peer interface {
	SendAudio(ctx context.Context, pcm []byte) error
	SendText(ctx context.Context, text string) error
	Receive() (*Message, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, s Setup) (Peer, error)
}
