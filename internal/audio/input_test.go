package audio

import "testing"

func TestInput_EmitsFixedFrames(t *testing.T) {
	var frames [][]float32
	in := NewInput(4, func(f []float32) { frames = append(frames, f) })

	in.Write([]float32{1, 2, 3})
	if len(frames) != 0 {
		t.Fatalf("emitted partial frame")
	}
	in.Write([]float32{4, 5, 6, 7, 8, 9})
	if len(frames) != 2 {
		t.Fatalf("frames=%d, want 2", len(frames))
	}
	want := [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}
	for i := range want {
		for j := range want[i] {
			if frames[i][j] != want[i][j] {
				t.Fatalf("frame %d=%v, want %v", i, frames[i], want[i])
			}
		}
	}
	in.Write([]float32{10, 11, 12})
	if len(frames) != 3 || frames[2][0] != 9 || frames[2][3] != 12 {
		t.Fatalf("frames=%v", frames)
	}
}

func TestInput_CloseStopsDelivery(t *testing.T) {
	n := 0
	in := NewInput(2, func([]float32) { n++ })
	in.Write([]float32{0.1, 0.1})
	if in.Level() == 0 {
		t.Fatalf("level should track last frame")
	}
	_ = in.Close()
	_ = in.Close()
	in.Write([]float32{0.1, 0.1, 0.1, 0.1})
	if n != 1 {
		t.Fatalf("frames after close: %d", n)
	}
}

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 {
		t.Fatalf("empty rms")
	}
	if got := RMS([]float32{0.5, -0.5}); got != 0.5 {
		t.Fatalf("rms=%f", got)
	}
}
