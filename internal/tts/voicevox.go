package tts

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/iabetor/vvcore/internal/audio"
	"github.com/iabetor/vvcore/internal/logger"
	"github.com/iabetor/vvcore/internal/voicevox"
)

// VoicevoxEngine 通过 voicevox.Exclusive 调用本地 VOICEVOX 引擎。
type VoicevoxEngine struct {
	ex      *voicevox.Exclusive
	speaker uint32
	opts    voicevox.TTSOptions
	cache   *Cache
}

// NewVoicevoxEngine 创建引擎。speaker 是 Synthesize 使用的默认说话人；
// cache 可以为 nil。
func NewVoicevoxEngine(ex *voicevox.Exclusive, speaker uint32, opts voicevox.TTSOptions, cache *Cache) *VoicevoxEngine {
	return &VoicevoxEngine{ex: ex, speaker: speaker, opts: opts, cache: cache}
}

var _ WAVEngine = (*VoicevoxEngine)(nil)

// Synthesize 使用默认说话人合成，并把 WAV 解码为单声道 float32 样本。
func (e *VoicevoxEngine) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	data, err := e.SynthesizeWAV(ctx, text, e.speaker)
	if err != nil {
		return nil, 0, err
	}
	w, err := audio.ParseWAV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] voicevox: 解析 WAV 失败: %w", err)
	}
	samples := w.Mono()
	logger.Debugf("[tts] voicevox: 生成 %d 个单声道 float32 样本 (%d Hz)", len(samples), w.SampleRate)
	return samples, w.SampleRate, nil
}

// SynthesizeWAV 合成 WAV 数据。说话人模型未加载时先加载。
func (e *VoicevoxEngine) SynthesizeWAV(ctx context.Context, text string, speakerID uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var key string
	if e.cache != nil {
		key = CacheKey(speakerID, e.opts, text)
		wav, ok, err := e.cache.Get(key)
		if err != nil {
			logger.Warnf("[tts] voicevox: %v", err)
		} else if ok {
			logger.Debugf("[tts] voicevox: 命中缓存 speaker=%d, %d 字节", speakerID, len(wav))
			return wav, nil
		}
	}

	logger.Debugf("[tts] voicevox: 正在合成 %d 个字符，speaker=%d", utf8.RuneCountInString(text), speakerID)

	var wav []byte
	err := e.ex.Do(func(c *voicevox.Core) error {
		// 等锁期间调用方可能已经放弃
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.LoadModel(speakerID); err != nil {
			return err
		}
		buf, err := c.TTS(text, speakerID, e.opts)
		if err != nil {
			return err
		}
		defer buf.Close()
		wav = buf.Copy()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Put(key, speakerID, text, wav); err != nil {
			logger.Warnf("[tts] voicevox: %v", err)
		}
	}
	return wav, nil
}
