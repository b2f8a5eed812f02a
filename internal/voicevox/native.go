// Package voicevox 是 voicevox_core 原生引擎之前的安全层。
//
// 原生接口是一组扁平函数：整数结果码、由引擎分配并需要显式释放的输出缓冲区，
// 以及进程级的单例引擎。本包把它们包装为：
//
//   - [Buffer] / [Text]：独占原生内存的持有者，Close 时恰好释放一次
//   - [ResultCode] / [Error] / [Fault]：封闭的错误分类与契约违例
//   - [Core]：引擎生命周期（Uninitialized → Initialized → Finalized）
//   - Core 上的流水线操作：AudioQuery、PredictDuration、PredictIntonation、
//     Decode、Synthesis、TTS
//
// 用法：
//
//	native, _ := voicevox.NewNative()
//	core, err := voicevox.New(native, opts)
//	if err != nil { ... }
//	defer core.Close()
//
//	wav, err := core.TTSSimple("こんにちは", 1)
//	if err != nil { ... }
//	defer wav.Close()
//
// # 并发
//
// 引擎不是线程安全的，整个进程同一时刻最多只能有一个调用在引擎内执行，
// 包括 Buffer.Close 触发的释放。Core 自身不加锁；需要并发访问时使用
// [Exclusive] 或者多进程。
//
// # 构建
//
// 使用 -tags voicevox 构建时通过 cgo 链接 libvoicevox_core；
// 否则 NewNative 返回 ErrNativeUnavailable。
package voicevox

import "errors"

// ErrNativeUnavailable 表示当前二进制没有链接原生引擎。
var ErrNativeUnavailable = errors.New("voicevox: built without native engine (use -tags voicevox)")

// Native 是与原生引擎之间的窄调用边界。
// 每个方法对应一个 C 函数，返回原始结果码和原始输出，不做任何校验；
// 校验、所有权和错误分类都由 Core 负责。
type Native interface {
	Initialize(opts InitializeOptions) int32
	Finalize()

	Version() string
	MetasJSON() string
	SupportedDevicesJSON() string
	ErrorMessage(code int32) string

	LoadModel(speakerID uint32) int32
	IsGPUMode() bool
	IsModelLoaded(speakerID uint32) bool

	// PredictDuration 的输入长度取 len(phonemes)。
	PredictDuration(phonemes []int64, speakerID uint32) (int32, RawBuffer)
	// PredictIntonation 只接收一个长度，引擎不会检查其余五个序列。
	PredictIntonation(length int, vowels, consonants, startAccents, endAccents, startAccentPhrases, endAccentPhrases []int64, speakerID uint32) (int32, RawBuffer)
	// Decode 接收音素帧数和帧扩展倍数。
	Decode(length, factor int, phonemes, f0 []float32, speakerID uint32) (int32, RawBuffer)

	AudioQuery(text string, speakerID uint32, opts AudioQueryOptions) (int32, RawText)
	Synthesis(audioQueryJSON string, speakerID uint32, opts SynthesisOptions) (int32, RawBuffer)
	TTS(text string, speakerID uint32, opts TTSOptions) (int32, RawBuffer)
}
