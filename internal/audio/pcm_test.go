package audio

import (
	"math"
	"testing"
	"time"

	"github.com/yoockh/civicvoice/internal/utils"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := make([]float32, 0, 2001)
	for i := -1000; i <= 1000; i++ {
		in = append(in, float32(i)/1000)
	}

	buf, err := Decode(Encode(in), CaptureSampleRate, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Frames() != len(in) {
		t.Fatalf("frames=%d, want %d", buf.Frames(), len(in))
	}
	const tol = 2.0 / 32768
	for i, want := range in {
		got := buf.Channels[0][i]
		if math.Abs(float64(got-want)) > tol {
			t.Fatalf("sample %d: got %f want %f", i, got, want)
		}
	}
}

func TestEncodeClampsAndIsLittleEndian(t *testing.T) {
	b := Encode([]float32{2, -3, 0, float32(math.NaN())})
	if len(b) != 8 {
		t.Fatalf("len=%d", len(b))
	}
	// 32767 = 0xFF 0x7F, -32768 = 0x00 0x80
	if b[0] != 0xFF || b[1] != 0x7F {
		t.Fatalf("positive clamp bytes=% x", b[0:2])
	}
	if b[2] != 0x00 || b[3] != 0x80 {
		t.Fatalf("negative clamp bytes=% x", b[2:4])
	}
	if b[4] != 0 || b[5] != 0 || b[6] != 0 || b[7] != 0 {
		t.Fatalf("zero/NaN bytes=% x", b[4:8])
	}
}

func TestDecodeRejectsPartialSamples(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}, PlaybackSampleRate, 1); !utils.IsCode(err, utils.CodeFraming) {
		t.Fatalf("odd length err=%v, want FRAMING", err)
	}
	if _, err := Decode([]byte{1, 2, 3, 4, 5, 6}, PlaybackSampleRate, 2); !utils.IsCode(err, utils.CodeFraming) {
		t.Fatalf("stereo partial err=%v, want FRAMING", err)
	}
	if _, err := Decode([]byte{1, 2}, 0, 1); !utils.IsCode(err, utils.CodeFraming) {
		t.Fatalf("zero rate err=%v, want FRAMING", err)
	}
}

func TestDecodeDeinterleavesStereo(t *testing.T) {
	frame := Encode([]float32{0.5, -0.5, 0.25, -0.25})
	buf, err := Decode(frame, 48000, 2)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Frames() != 2 || len(buf.Channels) != 2 {
		t.Fatalf("frames=%d channels=%d", buf.Frames(), len(buf.Channels))
	}
	if buf.Channels[0][1] < 0.24 || buf.Channels[1][1] > -0.24 {
		t.Fatalf("channels=%v", buf.Channels)
	}
}

func TestBase64Helpers(t *testing.T) {
	s := EncodeBase64([]float32{0.1, -0.1})
	buf, err := DecodeBase64(s, PlaybackSampleRate, 1)
	if err != nil {
		t.Fatalf("DecodeBase64: %v", err)
	}
	if buf.Frames() != 2 {
		t.Fatalf("frames=%d", buf.Frames())
	}
	if _, err := DecodeBase64("%%%", PlaybackSampleRate, 1); !utils.IsCode(err, utils.CodeFraming) {
		t.Fatalf("bad base64 err=%v", err)
	}
}

func TestBufferDuration(t *testing.T) {
	buf := &Buffer{SampleRate: 24000, Channels: [][]float32{make([]float32, 2400)}}
	if buf.Duration() != 100*time.Millisecond {
		t.Fatalf("duration=%v", buf.Duration())
	}
	var nilBuf *Buffer
	if nilBuf.Duration() != 0 || nilBuf.Frames() != 0 {
		t.Fatalf("nil buffer should be empty")
	}
}

func TestResample(t *testing.T) {
	src := &Buffer{SampleRate: 16000, Channels: [][]float32{{0, 1, 0, -1}}}
	if Resample(src, 16000) != src {
		t.Fatalf("same rate should return input")
	}
	up := Resample(src, 32000)
	if up.SampleRate != 32000 || up.Frames() != 8 {
		t.Fatalf("rate=%d frames=%d", up.SampleRate, up.Frames())
	}
	if up.Channels[0][1] != 0.5 {
		t.Fatalf("interpolated sample=%f, want 0.5", up.Channels[0][1])
	}
	if up.Duration() != src.Duration() {
		t.Fatalf("duration changed: %v vs %v", up.Duration(), src.Duration())
	}
}
