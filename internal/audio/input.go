package audio

import (
	"context"
	"io"
	"sync"
)

// Constraints mirror a browser-style microphone request.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	ChannelCount     int
	SampleRate       int
}

func DefaultConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		ChannelCount:     1,
		SampleRate:       CaptureSampleRate,
	}
}

// DefaultFrameSize is the number of samples per outbound frame.
const DefaultFrameSize = 512

// Capture is an open microphone. Close stops and releases the device.
type Capture interface {
	Close() error
}

// Devices opens the physical endpoints of a call.
type Devices interface {
	// OpenCapture starts the microphone; onSamples receives mono normalized
	// samples on the device's own goroutine.
	OpenCapture(ctx context.Context, c Constraints, onSamples func([]float32)) (Capture, error)
	// OpenOutput attaches a speaker that pulls from g. Closing the returned
	// closer detaches it.
	OpenOutput(ctx context.Context, g *Graph) (io.Closer, error)
}

// Input is the input audio graph: it cuts whatever period size the device
// delivers into fixed frames and tracks the input level.
type Input struct {
	mu        sync.Mutex
	frameSize int
	pending   []float32
	onFrame   func([]float32)
	closed    bool
	level     float64
}

func NewInput(frameSize int, onFrame func(frame []float32)) *Input {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &Input{
		frameSize: frameSize,
		pending:   make([]float32, 0, frameSize*2),
		onFrame:   onFrame,
	}
}

// Write appends device samples and emits every complete frame. Each emitted
// frame is a fresh slice owned by the receiver.
func (in *Input) Write(samples []float32) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.pending = append(in.pending, samples...)
	var frames [][]float32
	for len(in.pending) >= in.frameSize {
		f := make([]float32, in.frameSize)
		copy(f, in.pending[:in.frameSize])
		frames = append(frames, f)
		in.pending = in.pending[in.frameSize:]
	}
	if len(frames) > 0 {
		in.level = RMS(frames[len(frames)-1])
	}
	// compact so pending does not creep through the backing array
	if cap(in.pending)-len(in.pending) < in.frameSize {
		in.pending = append(make([]float32, 0, in.frameSize*2), in.pending...)
	}
	onFrame := in.onFrame
	in.mu.Unlock()

	if onFrame == nil {
		return
	}
	for _, f := range frames {
		onFrame(f)
	}
}

func (in *Input) Level() float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.level
}

// Close drops any partial frame and stops emitting. Calling it again is a
// no-op.
func (in *Input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	in.pending = nil
	in.level = 0
	return nil
}
