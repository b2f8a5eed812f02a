package voicevox

import (
	"fmt"
	"strings"
)

// AccelerationMode 选择推理后端。数值与引擎的 VoicevoxAccelerationMode 一致。
type AccelerationMode int32

const (
	AccelerationAuto AccelerationMode = 0
	AccelerationCPU  AccelerationMode = 1
	AccelerationGPU  AccelerationMode = 2
)

func (m AccelerationMode) String() string {
	switch m {
	case AccelerationAuto:
		return "auto"
	case AccelerationCPU:
		return "cpu"
	case AccelerationGPU:
		return "gpu"
	}
	return fmt.Sprintf("AccelerationMode(%d)", int32(m))
}

func (m AccelerationMode) valid() bool {
	return m >= AccelerationAuto && m <= AccelerationGPU
}

// ParseAccelerationMode 解析配置中的加速模式，空字符串视为 auto。
func ParseAccelerationMode(s string) (AccelerationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return AccelerationAuto, nil
	case "cpu":
		return AccelerationCPU, nil
	case "gpu":
		return AccelerationGPU, nil
	}
	return AccelerationAuto, fmt.Errorf("[voicevox] 不支持的加速模式: %s", s)
}

// InitializeOptions 对应 VoicevoxInitializeOptions。
type InitializeOptions struct {
	AccelerationMode AccelerationMode
	// CPUNumThreads 为 0 时由引擎自行决定线程数。
	CPUNumThreads    uint16
	LoadAllModels    bool
	OpenJtalkDictDir string
}

// AudioQueryOptions 对应 VoicevoxAudioQueryOptions。
type AudioQueryOptions struct {
	// Kana 为 true 时输入按 AquesTalk 风格的读音记法解析。
	Kana bool
}

// SynthesisOptions 对应 VoicevoxSynthesisOptions。
type SynthesisOptions struct {
	// EnableInterrogativeUpspeak 为疑问句末尾自动上扬语调。
	EnableInterrogativeUpspeak bool
}

// TTSOptions 对应 VoicevoxTtsOptions。
type TTSOptions struct {
	Kana                       bool
	EnableInterrogativeUpspeak bool
}

// 以下默认值与 voicevox_make_default_*_options 的返回值一致。

func DefaultInitializeOptions() InitializeOptions {
	return InitializeOptions{AccelerationMode: AccelerationAuto}
}

func DefaultAudioQueryOptions() AudioQueryOptions {
	return AudioQueryOptions{}
}

func DefaultSynthesisOptions() SynthesisOptions {
	return SynthesisOptions{EnableInterrogativeUpspeak: true}
}

func DefaultTTSOptions() TTSOptions {
	return TTSOptions{EnableInterrogativeUpspeak: true}
}

// QueryOptions 返回 TTSOptions 中属于 audio_query 阶段的部分。
func (o TTSOptions) QueryOptions() AudioQueryOptions {
	return AudioQueryOptions{Kana: o.Kana}
}

// SynthesisOptions 返回 TTSOptions 中属于 synthesis 阶段的部分。
func (o TTSOptions) SynthesisOptions() SynthesisOptions {
	return SynthesisOptions{EnableInterrogativeUpspeak: o.EnableInterrogativeUpspeak}
}
