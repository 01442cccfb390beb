package call

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yoockh/civicvoice/internal/audio"
	"github.com/yoockh/civicvoice/internal/models"
	"github.com/yoockh/civicvoice/internal/providers/live"
	"github.com/yoockh/civicvoice/internal/transcript"
)

// uplink forwards captured frames to the peer once the channel is ready.
// Frames captured before that are dropped.
type uplink struct {
	w atomic.Pointer[live.Writer]
}

func (u *uplink) send(frame []float32) {
	if w := u.w.Load(); w != nil {
		w.Send(audio.Encode(frame))
	}
}

// resources are the handles acquired for one call. release is safe to call
// more than once and from any goroutine.
type resources struct {
	capture audio.Capture
	input   *audio.Input
	output  *audio.Graph
	speaker io.Closer
	peer    live.Peer
	uplink  *uplink
	writer  *live.Writer

	once sync.Once
}

func (r *resources) release() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		if r.uplink != nil {
			r.uplink.w.Store(nil)
		}
		if r.peer != nil {
			_ = r.peer.Close()
		}
		if r.writer != nil {
			r.writer.Close()
		}
		if r.capture != nil {
			_ = r.capture.Close()
		}
		if r.input != nil {
			_ = r.input.Close()
		}
		if r.speaker != nil {
			_ = r.speaker.Close()
		}
		if r.output != nil {
			_ = r.output.Close()
		}
	})
}

// session is the single live call. Only the controller loop touches it.
type session struct {
	gen       uint64
	callID    string
	state     State
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	res       *resources
	scheduler *audio.Scheduler
	assembler transcript.Assembler
	autoEnd   Timer

	// turns finalized during this call, for the journal
	turns []models.Turn
}
