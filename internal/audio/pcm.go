package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"time"

	"github.com/yoockh/civicvoice/internal/utils"
)

const (
	// CaptureSampleRate is the rate the peer expects for caller audio.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate the peer uses for agent audio.
	PlaybackSampleRate = 24000

	bytesPerSample = 2
)

// CaptureMIMEType labels outbound frames for the peer.
var CaptureMIMEType = "audio/pcm;rate=16000"

// Buffer is decoded, de-interleaved audio ready for the output graph.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return framesToDuration(int64(b.Frames()), b.SampleRate)
}

// Encode clamps each sample to [-1,1] and quantizes it to signed 16-bit
// little-endian PCM.
func Encode(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(quantize(s)))
	}
	return out
}

func EncodeBase64(samples []float32) string {
	return base64.StdEncoding.EncodeToString(Encode(samples))
}

// Decode turns interleaved 16-bit little-endian PCM into a Buffer. The frame
// must hold a whole number of samples for every channel.
func Decode(frame []byte, sampleRate, channels int) (*Buffer, error) {
	const op = "audio.Decode"

	if sampleRate <= 0 || channels <= 0 {
		return nil, utils.E(utils.CodeFraming, op, "sample rate and channel count must be positive", nil)
	}
	if len(frame)%(bytesPerSample*channels) != 0 {
		return nil, utils.E(utils.CodeFraming, op, "frame length is not a whole number of samples", nil)
	}

	frames := len(frame) / (bytesPerSample * channels)
	buf := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * bytesPerSample
			v := int16(binary.LittleEndian.Uint16(frame[off:]))
			buf.Channels[ch][i] = float32(v) / 32768.0
		}
	}
	return buf, nil
}

func DecodeBase64(s string, sampleRate, channels int) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, utils.E(utils.CodeFraming, "audio.DecodeBase64", "invalid base64 payload", err)
	}
	return Decode(raw, sampleRate, channels)
}

// Resample converts b to rate with linear interpolation. It returns b itself
// when the rates already match.
func Resample(b *Buffer, rate int) *Buffer {
	if b == nil || rate <= 0 || b.SampleRate == rate || b.SampleRate <= 0 {
		return b
	}
	src := b.Frames()
	dst := int(math.Round(float64(src) * float64(rate) / float64(b.SampleRate)))
	out := &Buffer{SampleRate: rate, Channels: make([][]float32, len(b.Channels))}
	step := float64(b.SampleRate) / float64(rate)
	for ch, in := range b.Channels {
		res := make([]float32, dst)
		for i := range res {
			pos := float64(i) * step
			i0 := int(pos)
			if i0 >= src {
				i0 = src - 1
			}
			i1 := i0 + 1
			if i1 >= src {
				i1 = src - 1
			}
			frac := float32(pos - float64(i0))
			res[i] = in[i0]*(1-frac) + in[i1]*frac
		}
		out.Channels[ch] = res
	}
	return out
}

func quantize(s float32) int16 {
	switch {
	case s != s: // NaN
		return 0
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16
	case s < 0:
		return int16(math.Round(float64(s) * 0x8000))
	default:
		return int16(math.Round(float64(s) * 0x7FFF))
	}
}

func framesToDuration(frames int64, rate int) time.Duration {
	return time.Duration(frames * int64(time.Second) / int64(rate))
}

func durationToFrames(d time.Duration, rate int) int64 {
	return int64(d) * int64(rate) / int64(time.Second)
}
