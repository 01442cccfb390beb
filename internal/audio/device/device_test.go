package device

import (
	"encoding/binary"
	"math"
	"testing"
)

func f32le(vals ...float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func TestMonoFromF32(t *testing.T) {
	got := monoFromF32(f32le(0.5, -0.25), 2, 1)
	if len(got) != 2 || got[0] != 0.5 || got[1] != -0.25 {
		t.Fatalf("mono=%v", got)
	}

	stereo := monoFromF32(f32le(1, 0, 0.5, 0.5), 2, 2)
	if len(stereo) != 2 || stereo[0] != 0.5 || stereo[1] != 0.5 {
		t.Fatalf("downmix=%v", stereo)
	}

	// frame count larger than the payload is clipped
	if n := len(monoFromF32(f32le(0.1), 8, 1)); n != 1 {
		t.Fatalf("clipped frames=%d", n)
	}
}
