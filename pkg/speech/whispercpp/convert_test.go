package whispercpp

import (
	"math"
	"testing"
)

func TestPCMToFloat32(t *testing.T) {
	t.Parallel()

	// Samples: 0, 16384 (0.5), -16384 (-0.5), 32767 (~1.0).
	pcm := []byte{
		0x00, 0x00,
		0x00, 0x40,
		0x00, 0xC0,
		0xFF, 0x7F,
	}
	got := pcmToFloat32(pcm)
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestPCMToFloat32_OddTrailingByte(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x00, 0x40, 0x7F}
	got := pcmToFloat32(pcm)
	if len(got) != 1 {
		t.Fatalf("got %d samples, want 1 (trailing byte dropped)", len(got))
	}
}

func TestPCMToFloat32Mono_Stereo(t *testing.T) {
	t.Parallel()

	// One stereo frame: L=16384 (0.5), R=-16384 (-0.5) → average 0.
	pcm := []byte{0x00, 0x40, 0x00, 0xC0}
	got := pcmToFloat32Mono(pcm, 2)
	if len(got) != 1 {
		t.Fatalf("got %d samples, want 1", len(got))
	}
	if math.Abs(float64(got[0])) > 1e-6 {
		t.Errorf("downmixed sample = %f, want 0", got[0])
	}
}

func TestPCMToFloat32Mono_MonoPassthrough(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x00, 0x40}
	got := pcmToFloat32Mono(pcm, 1)
	if len(got) != 1 || math.Abs(float64(got[0]-0.5)) > 1e-6 {
		t.Errorf("mono passthrough: got %v, want [0.5]", got)
	}
}
