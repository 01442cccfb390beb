// Package device binds the call engine to the machine's microphone and
// speaker: malgo for capture, oto for playback.
package device

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/civicvoice/internal/audio"
)

// Desk owns the process-wide audio contexts. oto allows a single context per
// process, so the first OpenOutput fixes the speaker format.
type Desk struct {
	log *logrus.Logger

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	otoCtx  *oto.Context
	otoRate int
	otoCh   int
}

func New(log *logrus.Logger) *Desk {
	if log == nil {
		log = logrus.New()
	}
	return &Desk{log: log}
}

type micCapture struct {
	once   sync.Once
	device *malgo.Device
}

func (m *micCapture) Close() error {
	m.once.Do(func() {
		_ = m.device.Stop()
		m.device.Uninit()
	})
	return nil
}

func (d *Desk) OpenCapture(ctx context.Context, c audio.Constraints, onSamples func([]float32)) (audio.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.CaptureSampleRate
	}
	if c.ChannelCount <= 0 {
		c.ChannelCount = 1
	}
	if c.EchoCancellation || c.NoiseSuppression || c.AutoGainControl {
		d.log.WithFields(logrus.Fields{
			"echo_cancellation": c.EchoCancellation,
			"noise_suppression": c.NoiseSuppression,
			"auto_gain":         c.AutoGainControl,
		}).Debug("capture processing constraints are left to the OS input chain")
	}

	mctx, err := d.malgoContext()
	if err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(c.ChannelCount)
	cfg.SampleRate = uint32(c.SampleRate)
	cfg.PeriodSizeInMilliseconds = 20

	channels := c.ChannelCount
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, frameCount uint32) {
			if onSamples == nil || len(in) == 0 {
				return
			}
			onSamples(monoFromF32(in, int(frameCount), channels))
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		return nil, err
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, err
	}
	return &micCapture{device: dev}, nil
}

type speaker struct {
	once   sync.Once
	player *oto.Player
}

func (s *speaker) Close() error {
	var err error
	s.once.Do(func() {
		s.player.Pause()
		err = s.player.Close()
	})
	return err
}

func (d *Desk) OpenOutput(ctx context.Context, g *audio.Graph) (io.Closer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	otoCtx, err := d.speakerContext(ctx, g.SampleRate(), g.Channels())
	if err != nil {
		return nil, err
	}
	p := otoCtx.NewPlayer(g)
	p.Play()
	return &speaker{player: p}, nil
}

// Close releases the capture context. The oto context lives for the process.
func (d *Desk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mctx == nil {
		return nil
	}
	err := d.mctx.Uninit()
	d.mctx.Free()
	d.mctx = nil
	return err
}

func (d *Desk) malgoContext() (*malgo.AllocatedContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mctx != nil {
		return d.mctx, nil
	}
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, err
	}
	d.mctx = mctx
	return mctx, nil
}

func (d *Desk) speakerContext(ctx context.Context, rate, channels int) (*oto.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.otoCtx != nil {
		if d.otoRate != rate || d.otoCh != channels {
			return nil, errors.New("speaker already opened with a different format")
		}
		return d.otoCtx, nil
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   80 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	d.otoCtx, d.otoRate, d.otoCh = otoCtx, rate, channels
	return otoCtx, nil
}

// monoFromF32 averages interleaved float32 LE frames down to one channel.
func monoFromF32(in []byte, frames, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	if limit := len(in) / (4 * channels); frames > limit {
		frames = limit
	}
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 4
			sum += math.Float32frombits(binary.LittleEndian.Uint32(in[off:]))
		}
		out[i] = sum / float32(channels)
	}
	return out
}
