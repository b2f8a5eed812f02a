// Package voicevoxtest 提供 voicevox.Native 的内存实现，用于测试。
//
// Fake 模拟引擎的状态检查（未初始化、未加载模型、非法说话人）并记录每一次
// 输出缓冲区的分配与释放，测试可以据此验证释放恰好发生一次。
package voicevoxtest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unsafe"

	"github.com/iabetor/vvcore/internal/voicevox"
)

// SampleRate 是 Fake 合成 WAV 的采样率。
const SampleRate = 24000

// SamplesPerMora 是每个莫拉对应的样本数（0.1 秒）。
const SamplesPerMora = SampleRate / 10

var messages = map[int32]string{
	0:  "エラーが発生しませんでした",
	1:  "OpenJTalkの辞書が読み込まれていません",
	2:  "modelデータ読み込みに失敗しました",
	3:  "サポートされているデバイス情報取得中にエラーが発生しました",
	4:  "GPU機能をサポートすることができません",
	5:  "メタデータ読み込みに失敗しました",
	6:  "Statusが初期化されていません",
	7:  "無効なspeaker_idです",
	8:  "無効なmodel_indexです",
	9:  "推論に失敗しました",
	10: "入力テキストからのフルコンテキストラベル抽出に失敗しました",
	11: "入力テキストが無効なUTF-8データでした",
	12: "入力テキストをAquesTalkライクな読み仮名としてパースすることに失敗しました",
	13: "無効なaudio_queryです",
}

// Fake 是 voicevox.Native 的内存实现。零值不可用，请使用 New。
type Fake struct {
	// Speakers 是合法的说话人 ID。
	Speakers []uint32
	// GPUSupported 为 false 时 GPU 模式初始化失败。
	GPUSupported bool
	// InitCode 非零时 Initialize 直接返回该值。
	InitCode int32
	// FailCodes 按操作名注入失败结果码，如 {"predict_duration": 9}。
	FailCodes map[string]int32
	// BadUTF8 使 audio_query 输出非法 UTF-8。
	BadUTF8 bool
	// ShortOutput 使 predict_duration / predict_intonation 少返回一个元素。
	ShortOutput bool

	mu          sync.Mutex
	initialized bool
	gpu         bool
	loaded      map[uint32]bool
	calls       map[string]int
	live        map[unsafe.Pointer]any
	allocs      int
	frees       int
	badFrees    int
	lastLength  int
}

// New 返回带四个说话人（0-3）的 Fake。
func New() *Fake {
	return &Fake{
		Speakers:  []uint32{0, 1, 2, 3},
		FailCodes: make(map[string]int32),
		loaded:    make(map[uint32]bool),
		calls:     make(map[string]int),
		live:      make(map[unsafe.Pointer]any),
	}
}

var _ voicevox.Native = (*Fake)(nil)

// Calls 返回某个操作被调用的次数。
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Allocs 返回分配过的输出缓冲区数量。
func (f *Fake) Allocs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocs
}

// Frees 返回有效释放次数。
func (f *Fake) Frees() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frees
}

// BadFrees 返回重复释放或释放未知地址的次数。
func (f *Fake) BadFrees() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.badFrees
}

// Live 返回尚未释放的缓冲区数量。
func (f *Fake) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

// LastLength 返回最近一次 predict_intonation 收到的长度参数。
func (f *Fake) LastLength() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastLength
}

// Initialized 报告 Fake 当前是否处于初始化状态。
func (f *Fake) Initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized
}

func (f *Fake) Initialize(opts voicevox.InitializeOptions) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["initialize"]++

	if f.InitCode != 0 {
		return f.InitCode
	}
	if opts.OpenJtalkDictDir == "" {
		return 1
	}
	switch opts.AccelerationMode {
	case voicevox.AccelerationGPU:
		if !f.GPUSupported {
			return 4
		}
		f.gpu = true
	case voicevox.AccelerationAuto:
		f.gpu = f.GPUSupported
	default:
		f.gpu = false
	}
	f.initialized = true
	if opts.LoadAllModels {
		for _, id := range f.Speakers {
			f.loaded[id] = true
		}
	}
	return 0
}

func (f *Fake) Finalize() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["finalize"]++
	f.initialized = false
	f.gpu = false
	f.loaded = make(map[uint32]bool)
}

func (f *Fake) Version() string { return "0.14.4" }

func (f *Fake) MetasJSON() string {
	type style struct {
		Name string `json:"name"`
		ID   uint32 `json:"id"`
	}
	type meta struct {
		Name        string  `json:"name"`
		Styles      []style `json:"styles"`
		SpeakerUUID string  `json:"speaker_uuid"`
		Version     string  `json:"version"`
	}
	metas := make([]meta, 0, len(f.Speakers))
	for _, id := range f.Speakers {
		metas = append(metas, meta{
			Name:        fmt.Sprintf("speaker-%d", id),
			Styles:      []style{{Name: "ノーマル", ID: id}},
			SpeakerUUID: fmt.Sprintf("00000000-0000-0000-0000-%012d", id),
			Version:     "0.14.4",
		})
	}
	b, _ := json.Marshal(metas)
	return string(b)
}

func (f *Fake) SupportedDevicesJSON() string {
	return fmt.Sprintf(`{"cpu":true,"cuda":%v,"dml":false}`, f.GPUSupported)
}

func (f *Fake) ErrorMessage(code int32) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return ""
}

func (f *Fake) LoadModel(speakerID uint32) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["load_model"]++
	if !f.initialized {
		return 6
	}
	if code := f.FailCodes["load_model"]; code != 0 {
		return code
	}
	if !f.valid(speakerID) {
		return 7
	}
	f.loaded[speakerID] = true
	return 0
}

func (f *Fake) IsGPUMode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gpu
}

func (f *Fake) IsModelLoaded(speakerID uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded[speakerID]
}

func (f *Fake) PredictDuration(phonemes []int64, speakerID uint32) (int32, voicevox.RawBuffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.check("predict_duration", speakerID); code != 0 {
		return code, voicevox.RawBuffer{}
	}
	n := len(phonemes)
	if f.ShortOutput && n > 0 {
		n--
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.05 + float32(phonemes[i]%10)*0.01
	}
	return 0, f.floats(out)
}

func (f *Fake) PredictIntonation(length int, vowels, consonants, startAccents, endAccents, startAccentPhrases, endAccentPhrases []int64, speakerID uint32) (int32, voicevox.RawBuffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLength = length
	if code := f.check("predict_intonation", speakerID); code != 0 {
		return code, voicevox.RawBuffer{}
	}
	n := length
	if f.ShortOutput && n > 0 {
		n--
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = 5.5 + float32(startAccents[i]-endAccents[i])*0.1
	}
	return 0, f.floats(out)
}

func (f *Fake) Decode(length, factor int, phonemes, f0 []float32, speakerID uint32) (int32, voicevox.RawBuffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.check("decode", speakerID); code != 0 {
		return code, voicevox.RawBuffer{}
	}
	// 每帧 256 个样本
	out := make([]float32, length*factor*256)
	for i := range out {
		out[i] = f0[(i/256)%len(f0)] * 0.001
	}
	return 0, f.floats(out)
}

func (f *Fake) AudioQuery(text string, speakerID uint32, opts voicevox.AudioQueryOptions) (int32, voicevox.RawText) {
	f.mu.Lock()
	defer f.mu.Unlock()
	query, code := f.audioQuery(text, speakerID, opts)
	if code != 0 {
		return code, voicevox.RawText{}
	}
	if f.BadUTF8 {
		return 0, f.text([]byte{'{', 0xff, 0xfe, '}'})
	}
	return 0, f.text(query)
}

func (f *Fake) Synthesis(audioQueryJSON string, speakerID uint32, opts voicevox.SynthesisOptions) (int32, voicevox.RawBuffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wav, code := f.synthesis([]byte(audioQueryJSON), speakerID)
	if code != 0 {
		return code, voicevox.RawBuffer{}
	}
	return 0, f.bytes(wav)
}

func (f *Fake) TTS(text string, speakerID uint32, opts voicevox.TTSOptions) (int32, voicevox.RawBuffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.check("tts", speakerID); code != 0 {
		return code, voicevox.RawBuffer{}
	}
	query, code := f.audioQuery(text, speakerID, opts.QueryOptions())
	if code != 0 {
		return code, voicevox.RawBuffer{}
	}
	wav, code := f.synthesis(query, speakerID)
	if code != 0 {
		return code, voicevox.RawBuffer{}
	}
	return 0, f.bytes(wav)
}

// fakeQuery 是 Fake 生成的 AudioQuery 的结构。
type fakeQuery struct {
	AccentPhrases      []accentPhrase `json:"accent_phrases"`
	SpeedScale         float64        `json:"speedScale"`
	PitchScale         float64        `json:"pitchScale"`
	IntonationScale    float64        `json:"intonationScale"`
	VolumeScale        float64        `json:"volumeScale"`
	PrePhonemeLength   float64        `json:"prePhonemeLength"`
	PostPhonemeLength  float64        `json:"postPhonemeLength"`
	OutputSamplingRate int            `json:"outputSamplingRate"`
	OutputStereo       bool           `json:"outputStereo"`
	Kana               string         `json:"kana"`
}

type accentPhrase struct {
	Moras  []mora `json:"moras"`
	Accent int    `json:"accent"`
}

type mora struct {
	Text        string  `json:"text"`
	Vowel       string  `json:"vowel"`
	VowelLength float64 `json:"vowel_length"`
	Pitch       float64 `json:"pitch"`
}

func (f *Fake) audioQuery(text string, speakerID uint32, opts voicevox.AudioQueryOptions) ([]byte, int32) {
	if code := f.check("audio_query", speakerID); code != 0 {
		return nil, code
	}
	if opts.Kana && !isKana(text) {
		return nil, 12
	}
	var moras []mora
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		moras = append(moras, mora{Text: string(r), Vowel: "a", VowelLength: 0.1, Pitch: 5.5})
	}
	if len(moras) == 0 {
		return nil, 10
	}
	q := fakeQuery{
		AccentPhrases:      []accentPhrase{{Moras: moras, Accent: 1}},
		SpeedScale:         1,
		IntonationScale:    1,
		VolumeScale:        1,
		PrePhonemeLength:   0.1,
		PostPhonemeLength:  0.1,
		OutputSamplingRate: SampleRate,
		Kana:               text,
	}
	b, _ := json.Marshal(q)
	return b, 0
}

func (f *Fake) synthesis(query []byte, speakerID uint32) ([]byte, int32) {
	if code := f.check("synthesis", speakerID); code != 0 {
		return nil, code
	}
	var q fakeQuery
	if err := json.Unmarshal(query, &q); err != nil || q.OutputSamplingRate <= 0 {
		return nil, 13
	}
	n := 0
	for _, ap := range q.AccentPhrases {
		n += len(ap.Moras)
	}
	return wav(q.OutputSamplingRate, n*q.OutputSamplingRate/10), 0
}

// check 模拟引擎的前置条件检查，调用方需持有锁。
func (f *Fake) check(op string, speakerID uint32) int32 {
	f.calls[op]++
	if !f.initialized {
		return 6
	}
	if code := f.FailCodes[op]; code != 0 {
		return code
	}
	if !f.loaded[speakerID] {
		return 7
	}
	return 0
}

func (f *Fake) valid(speakerID uint32) bool {
	for _, id := range f.Speakers {
		if id == speakerID {
			return true
		}
	}
	return false
}

// LoadedSpeakers 返回 Fake 中已加载的说话人。
func (f *Fake) LoadedSpeakers() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uint32, 0, len(f.loaded))
	for id := range f.loaded {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (f *Fake) floats(out []float32) voicevox.RawBuffer {
	n := len(out)
	if n == 0 {
		// 引擎对空结果也会返回可释放的地址
		out = make([]float32, 1)
	}
	p := unsafe.Pointer(&out[0])
	f.track(p, out)
	return voicevox.RawBuffer{Ptr: p, Len: n, Free: f.free}
}

func (f *Fake) bytes(out []byte) voicevox.RawBuffer {
	n := len(out)
	if n == 0 {
		out = make([]byte, 1)
	}
	p := unsafe.Pointer(&out[0])
	f.track(p, out)
	return voicevox.RawBuffer{Ptr: p, Len: n, Free: f.free}
}

func (f *Fake) text(b []byte) voicevox.RawText {
	out := make([]byte, len(b)+1)
	copy(out, b)
	p := unsafe.Pointer(&out[0])
	f.track(p, out)
	return voicevox.RawText{Ptr: p, Free: f.free}
}

func (f *Fake) track(p unsafe.Pointer, backing any) {
	f.live[p] = backing
	f.allocs++
}

func (f *Fake) free(p unsafe.Pointer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[p]; !ok {
		f.badFrees++
		return
	}
	delete(f.live, p)
	f.frees++
}

func isKana(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Katakana):
		case strings.ContainsRune("'/、_？?", r):
		default:
			return false
		}
	}
	return true
}

// wav 生成单声道 16-bit PCM 的 RIFF/WAVE 数据，内容为静音。
func wav(sampleRate, samples int) []byte {
	dataLen := samples * 2
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // 单声道
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}
