package live

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/yoockh/civicvoice/internal/audio"
	"github.com/yoockh/civicvoice/internal/utils"
)

const (
	DefaultModel          = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice          = "Kore"
	DefaultThinkingBudget = 256
)

// Gemini dials Live API sessions.
type Gemini struct {
	client *genai.Client
}

func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	const op = "live.NewGemini"
	if apiKey == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "api key is required", nil)
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, utils.E(utils.CodeInitialization, op, "create genai client", err)
	}
	return &Gemini{client: c}, nil
}

func (g *Gemini) Dial(ctx context.Context, s Setup) (Peer, error) {
	const op = "live.Gemini.Dial"
	model := s.Model
	if model == "" {
		model = DefaultModel
	}
	session, err := g.client.Live.Connect(ctx, model, connectConfig(s))
	if err != nil {
		return nil, utils.E(utils.CodeInitialization, op, "connect live session", err)
	}
	return &geminiPeer{session: session}, nil
}

func connectConfig(s Setup) *genai.LiveConnectConfig {
	voice := s.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	budget := s.ThinkingBudget
	if budget == 0 {
		budget = DefaultThinkingBudget
	}
	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		ThinkingConfig:           &genai.ThinkingConfig{ThinkingBudget: &budget},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if s.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(s.SystemInstruction, genai.RoleUser)
	}
	return cfg
}

type geminiPeer struct {
	session *genai.Session

	// the session's websocket allows one writer at a time
	sendMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func (p *geminiPeer) SendAudio(ctx context.Context, pcm []byte) error {
	const op = "live.Gemini.SendAudio"
	if err := ctx.Err(); err != nil {
		return err
	}
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	err := p.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: audio.CaptureMIMEType},
	})
	if err != nil {
		return utils.E(utils.CodePeer, op, "send audio", err)
	}
	return nil
}

func (p *geminiPeer) SendText(ctx context.Context, text string) error {
	const op = "live.Gemini.SendText"
	if err := ctx.Err(); err != nil {
		return err
	}
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if err := p.session.SendRealtimeInput(genai.LiveRealtimeInput{Text: text}); err != nil {
		return utils.E(utils.CodePeer, op, "send text", err)
	}
	return nil
}

// Receive skips server messages that carry no content (setup acks, usage).
func (p *geminiPeer) Receive() (*Message, error) {
	const op = "live.Gemini.Receive"
	for {
		msg, err := p.session.Receive()
		if err != nil {
			if normalClose(err) {
				return nil, io.EOF
			}
			return nil, utils.E(utils.CodePeer, op, "receive", err)
		}
		if m := fromServer(msg); m != nil {
			return m, nil
		}
	}
}

func (p *geminiPeer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.session.Close()
	})
	return p.closeErr
}

func fromServer(msg *genai.LiveServerMessage) *Message {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	sc := msg.ServerContent
	m := &Message{
		Interrupted:  sc.Interrupted,
		TurnComplete: sc.TurnComplete,
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil {
				continue
			}
			m.Audio = append(m.Audio, part.InlineData.Data...)
		}
	}
	if sc.InputTranscription != nil {
		m.InputText = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		m.OutputText = sc.OutputTranscription.Text
	}
	if len(m.Audio) == 0 && !m.Interrupted && !m.TurnComplete && m.InputText == "" && m.OutputText == "" {
		return nil
	}
	return m
}

// normalClose treats a clean websocket close, or reading after our own
// Close, as end of stream.
func normalClose(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return false
}
