package tts

import "context"

// Engine 定义语音合成后端接口。
type Engine interface {
	// Synthesize 将文本转换为音频。
	// 返回单声道 float32 音频样本、采样率（Hz）和错误。
	Synthesize(ctx context.Context, text string) ([]float32, int, error)
}

// WAVEngine 是直接产出 WAV 数据的后端，HTTP 服务和命令行使用它。
type WAVEngine interface {
	Engine
	// SynthesizeWAV 使用给定说话人合成 WAV 数据。
	SynthesizeWAV(ctx context.Context, text string, speakerID uint32) ([]byte, error)
}
