package audio

import (
	"math"
	"testing"
	"time"
)

func TestInt16ToFloat32_Bounds(t *testing.T) {
	if out := Int16ToFloat32(nil); len(out) != 0 {
		t.Fatalf("expected empty slice, got length %d", len(out))
	}
	out := Int16ToFloat32([]int16{0, math.MaxInt16, math.MinInt16})
	if out[0] != 0 {
		t.Errorf("expected 0.0, got %f", out[0])
	}
	if out[1] != 1.0 {
		t.Errorf("expected 1.0 for MaxInt16, got %f", out[1])
	}
	// MinInt16 的绝对值比 MaxInt16 大 1
	if want := float32(math.MinInt16) / math.MaxInt16; out[2] != want {
		t.Errorf("expected %f for MinInt16, got %f", want, out[2])
	}
}

func TestFloat32ToInt16_Clamp(t *testing.T) {
	out := Float32ToInt16([]float32{0.5, -0.5, 0, 1.5, -1.5})
	if out[0] <= 0 || out[1] >= 0 || out[2] != 0 {
		t.Fatalf("unexpected signs: %v", out)
	}
	if out[3] != math.MaxInt16 {
		t.Errorf("expected %d (clamped), got %d", math.MaxInt16, out[3])
	}
	if out[4] != -math.MaxInt16 {
		t.Errorf("expected %d (clamped), got %d", -math.MaxInt16, out[4])
	}
}

func TestBytesToInt16_LittleEndian(t *testing.T) {
	out := BytesToInt16([]byte{0x02, 0x01, 0xff})
	if len(out) != 1 || out[0] != 0x0102 {
		t.Fatalf("expected [258], got %v", out)
	}
}

func TestBytesInt16_Roundtrip(t *testing.T) {
	samples := []int16{0, 1, -1, 1000, -1000, math.MaxInt16, math.MinInt16}
	result := BytesToInt16(Int16ToBytes(samples))
	if len(result) != len(samples) {
		t.Fatalf("length mismatch: expected %d, got %d", len(samples), len(result))
	}
	for i, s := range samples {
		if result[i] != s {
			t.Errorf("index %d: expected %d, got %d", i, s, result[i])
		}
	}
}

func TestBytesFloat32_Roundtrip(t *testing.T) {
	output := BytesToFloat32(Float32ToBytes([]float32{0, 1.0, -1.0}))
	if len(output) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(output))
	}
	if output[0] != 0 || output[1] != 1.0 || output[2] != -1.0 {
		t.Errorf("unexpected samples: %v", output)
	}
}

func TestDownmix(t *testing.T) {
	mono := []int16{1, 2, 3}
	if out := Downmix(mono, 1); len(out) != 3 {
		t.Fatalf("mono should pass through, got %v", out)
	}
	out := Downmix([]int16{100, 200, -50, 50, 7}, 2)
	if len(out) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(out))
	}
	if out[0] != 150 || out[1] != 0 {
		t.Errorf("unexpected downmix: %v", out)
	}
}

func TestDuration(t *testing.T) {
	if got := Duration(24000, 24000); got != time.Second {
		t.Errorf("expected 1s, got %v", got)
	}
	if got := Duration(12000, 24000); got != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", got)
	}
	if got := Duration(100, 0); got != 0 {
		t.Errorf("expected 0 for invalid rate, got %v", got)
	}
}
