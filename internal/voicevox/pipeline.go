package voicevox

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iabetor/vvcore/internal/logger"
)

// Stage 是一次完整合成中的阶段。每个阶段都可以单独调用：
//
//	Start → [AudioQuery] → DurationPredicted → IntonationPredicted → Decoded → Encoded
//
// 任一阶段失败立即中止，不重试，也不返回部分结果。
type Stage int

const (
	StageStart Stage = iota
	StageAudioQuery
	StageDurationPredicted
	StageIntonationPredicted
	StageDecoded
	StageEncoded
)

var stageNames = [...]string{
	"Start",
	"AudioQuery",
	"DurationPredicted",
	"IntonationPredicted",
	"Decoded",
	"Encoded",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "Unknown"
}

// stageOf 返回操作失败时流水线所处的阶段，即该操作开始前的阶段。
func stageOf(op string) Stage {
	switch op {
	case "audio_query", "tts":
		return StageStart
	case "predict_duration":
		return StageAudioQuery
	case "predict_intonation":
		return StageDurationPredicted
	case "decode":
		return StageIntonationPredicted
	case "synthesis":
		return StageAudioQuery
	}
	return StageStart
}

// AudioQuery 是文本分析的结果（JSON），在 audio_query 与 synthesis 之间原样传递，
// 本包不解析其内部结构。
type AudioQuery string

// Valid 报告内容是否是语法正确的 JSON。
func (q AudioQuery) Valid() bool {
	return json.Valid([]byte(q))
}

// IntonationInput 是 predict_intonation 的六个输入序列，长度必须一致。
type IntonationInput struct {
	Vowels             []int64
	Consonants         []int64
	StartAccents       []int64
	EndAccents         []int64
	StartAccentPhrases []int64
	EndAccentPhrases   []int64
}

// Len 返回公共长度；任意两个序列长度不同时返回 ErrLengthMismatch。
func (in IntonationInput) Len() (int, error) {
	n := len(in.Vowels)
	lens := [...]struct {
		name string
		n    int
	}{
		{"consonant", len(in.Consonants)},
		{"start_accent", len(in.StartAccents)},
		{"end_accent", len(in.EndAccents)},
		{"start_accent_phrase", len(in.StartAccentPhrases)},
		{"end_accent_phrase", len(in.EndAccentPhrases)},
	}
	for _, l := range lens {
		if l.n != n {
			return 0, faultf("predict_intonation", ErrLengthMismatch, "vowel=%d, %s=%d", n, l.name, l.n)
		}
	}
	return n, nil
}

// AudioQuery 对 text 做文本分析，返回 AudioQuery JSON。
func (c *Core) AudioQuery(text string, speakerID uint32, opts AudioQueryOptions) (AudioQuery, error) {
	const op = "audio_query"
	if err := c.ready(op); err != nil {
		return "", err
	}
	if err := c.checkInput(op, text); err != nil {
		return "", err
	}

	start := time.Now()
	raw, out := c.native.AudioQuery(text, speakerID, opts)
	if raw != int32(OK) {
		return "", c.fail(op, speakerID, raw)
	}
	t, err := newText(op, out)
	if err != nil {
		return "", err
	}
	defer t.Close()

	s, err := t.Decode()
	if err != nil {
		return "", err
	}
	logger.Debugf("[voicevox] %s: speaker=%d, kana=%v, %d 字符 → %d 字节, 耗时=%s",
		op, speakerID, opts.Kana, utf8.RuneCountInString(text), len(s), time.Since(start))
	return AudioQuery(s), nil
}

// PredictDuration 预测每个音素的时长，输出长度等于输入长度。
// 空输入直接返回空 Buffer，不调用引擎。
func (c *Core) PredictDuration(phonemes []int64, speakerID uint32) (*Buffer[float32], error) {
	const op = "predict_duration"
	if err := c.ready(op); err != nil {
		return nil, err
	}
	if len(phonemes) == 0 {
		return &Buffer[float32]{}, nil
	}

	start := time.Now()
	raw, out := c.native.PredictDuration(phonemes, speakerID)
	if raw != int32(OK) {
		return nil, c.fail(op, speakerID, raw)
	}
	buf, err := c.expectLen(op, out, len(phonemes))
	if err != nil {
		return nil, err
	}
	logger.Debugf("[voicevox] %s: speaker=%d, n=%d, 耗时=%s", op, speakerID, len(phonemes), time.Since(start))
	return buf, nil
}

// PredictIntonation 预测每个单位的音高，输出长度等于公共输入长度。
// 六个序列长度不一致时在本地返回 *Fault（ErrLengthMismatch），不调用引擎。
func (c *Core) PredictIntonation(in IntonationInput, speakerID uint32) (*Buffer[float32], error) {
	const op = "predict_intonation"
	if err := c.ready(op); err != nil {
		return nil, err
	}
	n, err := in.Len()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return &Buffer[float32]{}, nil
	}

	start := time.Now()
	raw, out := c.native.PredictIntonation(n,
		in.Vowels, in.Consonants,
		in.StartAccents, in.EndAccents,
		in.StartAccentPhrases, in.EndAccentPhrases,
		speakerID)
	if raw != int32(OK) {
		return nil, c.fail(op, speakerID, raw)
	}
	buf, err := c.expectLen(op, out, n)
	if err != nil {
		return nil, err
	}
	logger.Debugf("[voicevox] %s: speaker=%d, n=%d, 耗时=%s", op, speakerID, n, time.Since(start))
	return buf, nil
}

// Decode 由音素帧和 F0 帧生成 PCM 波形（float32）。
// len(f0)/len(phonemes) 必须是正整数；phonemes 为空或比例不是整数时
// 在本地返回 InvalidAudioQueryError。
func (c *Core) Decode(phonemes, f0 []float32, speakerID uint32) (*Buffer[float32], error) {
	const op = "decode"
	if err := c.ready(op); err != nil {
		return nil, err
	}
	if len(phonemes) == 0 || len(f0) == 0 || len(f0)%len(phonemes) != 0 {
		logger.Warnf("[voicevox] %s: 帧数不匹配 phonemes=%d, f0=%d", op, len(phonemes), len(f0))
		return nil, c.reject(op, InvalidAudioQueryError)
	}
	factor := len(f0) / len(phonemes)

	start := time.Now()
	raw, out := c.native.Decode(len(phonemes), factor, phonemes, f0, speakerID)
	if raw != int32(OK) {
		return nil, c.fail(op, speakerID, raw)
	}
	buf, err := newBuffer[float32](op, out)
	if err != nil {
		return nil, err
	}
	logger.Debugf("[voicevox] %s: speaker=%d, frames=%d×%d → %d 样本, 耗时=%s",
		op, speakerID, len(phonemes), factor, buf.Len(), time.Since(start))
	return buf, nil
}

// Synthesis 由 AudioQuery 合成 WAV。语法错误的 JSON 在本地返回 InvalidAudioQueryError。
func (c *Core) Synthesis(query AudioQuery, speakerID uint32, opts SynthesisOptions) (*Buffer[byte], error) {
	const op = "synthesis"
	if err := c.ready(op); err != nil {
		return nil, err
	}
	if err := c.checkInput(op, string(query)); err != nil {
		return nil, err
	}
	if !query.Valid() {
		return nil, c.reject(op, InvalidAudioQueryError)
	}

	start := time.Now()
	raw, out := c.native.Synthesis(string(query), speakerID, opts)
	if raw != int32(OK) {
		return nil, c.fail(op, speakerID, raw)
	}
	wav, err := newBuffer[byte](op, out)
	if err != nil {
		return nil, err
	}
	logger.Debugf("[voicevox] %s: speaker=%d, %d 字节 WAV, 耗时=%s", op, speakerID, wav.Len(), time.Since(start))
	return wav, nil
}

// TTS 等价于 AudioQuery 之后接 Synthesis，由引擎在一次调用中完成。
func (c *Core) TTS(text string, speakerID uint32, opts TTSOptions) (*Buffer[byte], error) {
	const op = "tts"
	if err := c.ready(op); err != nil {
		return nil, err
	}
	if err := c.checkInput(op, text); err != nil {
		return nil, err
	}

	start := time.Now()
	raw, out := c.native.TTS(text, speakerID, opts)
	if raw != int32(OK) {
		return nil, c.fail(op, speakerID, raw)
	}
	wav, err := newBuffer[byte](op, out)
	if err != nil {
		return nil, err
	}
	logger.Debugf("[voicevox] %s: speaker=%d, %d 字符 → %d 字节 WAV, 耗时=%s",
		op, speakerID, utf8.RuneCountInString(text), wav.Len(), time.Since(start))
	return wav, nil
}

// TTSSimple 使用默认选项执行 TTS。
func (c *Core) TTSSimple(text string, speakerID uint32) (*Buffer[byte], error) {
	return c.TTS(text, speakerID, DefaultTTSOptions())
}

// checkInput 拒绝不能作为 C 字符串传给引擎的输入。
func (c *Core) checkInput(op, s string) error {
	if !utf8.ValidString(s) || strings.IndexByte(s, 0) >= 0 {
		return c.reject(op, InvalidUTF8InputError)
	}
	return nil
}

func (c *Core) fail(op string, speakerID uint32, raw int32) error {
	err := c.classify(op, raw)
	logger.Warnf("[voicevox] %s 失败: speaker=%d, %v", op, speakerID, err)
	return err
}

// expectLen 包装输出并检查长度，不符合时释放内存并返回 *Fault。
func (c *Core) expectLen(op string, out RawBuffer, want int) (*Buffer[float32], error) {
	buf, err := newBuffer[float32](op, out)
	if err != nil {
		return nil, err
	}
	if buf.Len() != want {
		got := buf.Len()
		buf.Close()
		return nil, faultf(op, ErrLengthMismatch, "output %d, input %d", got, want)
	}
	return buf, nil
}
