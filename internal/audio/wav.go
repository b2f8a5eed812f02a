package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV 表示数据不是 RIFF/WAVE 格式。
var ErrNotWAV = errors.New("不是 RIFF/WAVE 数据")

// WAV 是解析后的 PCM 音频。
type WAV struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	// PCM 是 data 块的原始字节，与输入共享底层数组。
	PCM []byte
}

// ParseWAV 解析 16-bit PCM 的 RIFF/WAVE 数据。
// 未知的块被跳过；奇数长度的块按 RIFF 规则补齐一个字节。
func ParseWAV(data []byte) (*WAV, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	w := &WAV{}
	var haveFmt, haveData bool
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4:]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			// 部分编码器写出的 data 长度不准，截断到实际长度
			if id != "data" {
				return nil, fmt.Errorf("%s 块越界: 声明 %d 字节", id, size)
			}
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt 块过短: %d 字节", size)
			}
			format := binary.LittleEndian.Uint16(data[body:])
			if format != 1 {
				return nil, fmt.Errorf("不支持的 WAV 编码: %d", format)
			}
			w.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			w.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			w.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			w.PCM = data[body : body+size]
			haveData = true
		}

		pos = body + size + size%2
	}

	if !haveFmt {
		return nil, errors.New("缺少 fmt 块")
	}
	if !haveData {
		return nil, errors.New("缺少 data 块")
	}
	if w.BitsPerSample != 16 {
		return nil, fmt.Errorf("不支持的位深: %d", w.BitsPerSample)
	}
	if w.Channels <= 0 || w.SampleRate <= 0 {
		return nil, fmt.Errorf("非法的声道数或采样率: %d/%d", w.Channels, w.SampleRate)
	}
	return w, nil
}

// Mono 返回单声道 float32 样本，多声道时取平均。
func (w *WAV) Mono() []float32 {
	return Int16ToFloat32(Downmix(BytesToInt16(w.PCM), w.Channels))
}

// Frames 返回每声道的样本数。
func (w *WAV) Frames() int {
	return len(w.PCM) / 2 / w.Channels
}
