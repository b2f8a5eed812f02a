package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

type chunk struct {
	id   string
	body []byte
}

func riff(chunks ...chunk) []byte {
	var body bytes.Buffer
	body.WriteString("WAVE")
	for _, c := range chunks {
		body.WriteString(c.id)
		binary.Write(&body, binary.LittleEndian, uint32(len(c.body)))
		body.Write(c.body)
		if len(c.body)%2 == 1 {
			body.WriteByte(0)
		}
	}
	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func fmtChunk(format, channels uint16, rate uint32, bits uint16) chunk {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, format)
	binary.Write(&b, binary.LittleEndian, channels)
	binary.Write(&b, binary.LittleEndian, rate)
	binary.Write(&b, binary.LittleEndian, rate*uint32(channels)*uint32(bits/8))
	binary.Write(&b, binary.LittleEndian, channels*bits/8)
	binary.Write(&b, binary.LittleEndian, bits)
	return chunk{"fmt ", b.Bytes()}
}

func TestParseWAV_Mono(t *testing.T) {
	pcm := Int16ToBytes([]int16{0, 16384, -16384, 32767})
	w, err := ParseWAV(riff(fmtChunk(1, 1, 24000, 16), chunk{"data", pcm}))
	if err != nil {
		t.Fatalf("ParseWAV failed: %v", err)
	}
	if w.SampleRate != 24000 || w.Channels != 1 || w.BitsPerSample != 16 {
		t.Fatalf("unexpected header: %+v", w)
	}
	if w.Frames() != 4 {
		t.Errorf("expected 4 frames, got %d", w.Frames())
	}
	samples := w.Mono()
	if len(samples) != 4 || samples[3] != 1.0 {
		t.Errorf("unexpected samples: %v", samples)
	}
	if got := Duration(w.Frames(), w.SampleRate); got != 4*time.Second/24000 {
		t.Errorf("unexpected duration: %v", got)
	}
}

func TestParseWAV_StereoAndExtraChunks(t *testing.T) {
	pcm := Int16ToBytes([]int16{100, 300, -100, -300})
	data := riff(
		chunk{"LIST", []byte("odd")},
		fmtChunk(1, 2, 48000, 16),
		chunk{"data", pcm},
	)
	w, err := ParseWAV(data)
	if err != nil {
		t.Fatalf("ParseWAV failed: %v", err)
	}
	if w.Channels != 2 || w.Frames() != 2 {
		t.Fatalf("unexpected header: %+v frames=%d", w, w.Frames())
	}
	mono := Float32ToInt16(w.Mono())
	if len(mono) != 2 {
		t.Fatalf("expected 2 mono samples, got %d", len(mono))
	}
}

func TestParseWAV_TruncatedData(t *testing.T) {
	data := riff(fmtChunk(1, 1, 16000, 16), chunk{"data", make([]byte, 8)})
	// 声明的 data 长度大于实际长度
	data = data[:len(data)-4]
	w, err := ParseWAV(data)
	if err != nil {
		t.Fatalf("ParseWAV failed: %v", err)
	}
	if len(w.PCM) != 4 {
		t.Errorf("expected truncated PCM of 4 bytes, got %d", len(w.PCM))
	}
}

func TestParseWAV_Rejects(t *testing.T) {
	cases := map[string][]byte{
		"empty":      nil,
		"not riff":   []byte("RIFX\x00\x00\x00\x00WAVE"),
		"no fmt":     riff(chunk{"data", make([]byte, 4)}),
		"no data":    riff(fmtChunk(1, 1, 24000, 16)),
		"float":      riff(fmtChunk(3, 1, 24000, 32), chunk{"data", make([]byte, 4)}),
		"8 bit":      riff(fmtChunk(1, 1, 8000, 8), chunk{"data", make([]byte, 4)}),
		"short fmt":  riff(chunk{"fmt ", make([]byte, 8)}, chunk{"data", make([]byte, 4)}),
		"zero rate":  riff(fmtChunk(1, 1, 0, 16), chunk{"data", make([]byte, 4)}),
		"zero chans": riff(fmtChunk(1, 0, 24000, 16), chunk{"data", make([]byte, 4)}),
	}
	for name, data := range cases {
		if _, err := ParseWAV(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := ParseWAV([]byte("hello world!")); !errors.Is(err, ErrNotWAV) {
		t.Errorf("expected ErrNotWAV, got %v", err)
	}
}
