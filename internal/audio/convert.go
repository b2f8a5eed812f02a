package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Int16ToFloat32 将 PCM int16 样本归一化到 [-1.0, 1.0]。
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

// Float32ToInt16 将 float32 样本量化为 PCM int16，超出范围的值被钳位。
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		out[i] = int16(clamp(s) * math.MaxInt16)
	}
	return out
}

func clamp(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}

// BytesToInt16 按小端序解析 16-bit PCM，末尾不足 2 字节的部分被忽略。
func BytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

// Int16ToBytes 将 int16 样本编码为小端序字节。
func Int16ToBytes(in []int16) []byte {
	out := make([]byte, 0, len(in)*2)
	for _, s := range in {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return out
}

// BytesToFloat32 将 16-bit PCM 字节直接转换为 float32。
func BytesToFloat32(b []byte) []float32 {
	return Int16ToFloat32(BytesToInt16(b))
}

// Float32ToBytes 将 float32 样本直接编码为 16-bit PCM 字节。
func Float32ToBytes(in []float32) []byte {
	return Int16ToBytes(Float32ToInt16(in))
}

// Downmix 把交错存放的多声道样本平均为单声道。
// channels <= 1 时原样返回。
func Downmix(in []int16, channels int) []int16 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]int16, frames)
	for f := 0; f < frames; f++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(in[f*channels+c])
		}
		out[f] = int16(sum / channels)
	}
	return out
}

// Duration 返回单声道样本数对应的播放时长。
func Duration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
