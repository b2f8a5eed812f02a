//go:build voicevox

package voicevox

/*
#cgo LDFLAGS: -lvoicevox_core

#include <stdbool.h>
#include <stdint.h>
#include <stdlib.h>
#include <voicevox_core.h>

// 释放函数的 Go 侧入口，参数统一为 void*。
static void vv_free_duration(void* p)   { voicevox_predict_duration_data_free((float*)p); }
static void vv_free_intonation(void* p) { voicevox_predict_intonation_data_free((float*)p); }
static void vv_free_decode(void* p)     { voicevox_decode_data_free((float*)p); }
static void vv_free_wav(void* p)        { voicevox_wav_free((uint8_t*)p); }
static void vv_free_json(void* p)       { voicevox_audio_query_json_free((char*)p); }
*/
import "C"

import "unsafe"

// cgoNative 通过 cgo 直接调用 libvoicevox_core。
type cgoNative struct{}

// NewNative 返回链接到 libvoicevox_core 的原生边界。
func NewNative() (Native, error) {
	return cgoNative{}, nil
}

func freeDuration(p unsafe.Pointer)   { C.vv_free_duration(p) }
func freeIntonation(p unsafe.Pointer) { C.vv_free_intonation(p) }
func freeDecode(p unsafe.Pointer)     { C.vv_free_decode(p) }
func freeWAV(p unsafe.Pointer)        { C.vv_free_wav(p) }
func freeJSON(p unsafe.Pointer)       { C.vv_free_json(p) }

func int64s(s []int64) *C.int64_t {
	if len(s) == 0 {
		return nil
	}
	return (*C.int64_t)(unsafe.Pointer(&s[0]))
}

func float32s(s []float32) *C.float {
	if len(s) == 0 {
		return nil
	}
	return (*C.float)(unsafe.Pointer(&s[0]))
}

func (cgoNative) Initialize(opts InitializeOptions) int32 {
	copts := C.voicevox_make_default_initialize_options()
	copts.acceleration_mode = C.VoicevoxAccelerationMode(opts.AccelerationMode)
	copts.cpu_num_threads = C.uint16_t(opts.CPUNumThreads)
	copts.load_all_models = C.bool(opts.LoadAllModels)
	if opts.OpenJtalkDictDir != "" {
		// 辞书在 initialize 内加载完毕，字符串只需在调用期间有效
		dict := C.CString(opts.OpenJtalkDictDir)
		defer C.free(unsafe.Pointer(dict))
		copts.open_jtalk_dict_dir = dict
	}
	return int32(C.voicevox_initialize(copts))
}

func (cgoNative) Finalize() {
	C.voicevox_finalize()
}

func (cgoNative) Version() string {
	return C.GoString(C.voicevox_get_version())
}

func (cgoNative) MetasJSON() string {
	return C.GoString(C.voicevox_get_metas_json())
}

func (cgoNative) SupportedDevicesJSON() string {
	return C.GoString(C.voicevox_get_supported_devices_json())
}

func (cgoNative) ErrorMessage(code int32) string {
	return C.GoString(C.voicevox_error_result_to_message(C.VoicevoxResultCode(code)))
}

func (cgoNative) LoadModel(speakerID uint32) int32 {
	return int32(C.voicevox_load_model(C.uint32_t(speakerID)))
}

func (cgoNative) IsGPUMode() bool {
	return bool(C.voicevox_is_gpu_mode())
}

func (cgoNative) IsModelLoaded(speakerID uint32) bool {
	return bool(C.voicevox_is_model_loaded(C.uint32_t(speakerID)))
}

func (cgoNative) PredictDuration(phonemes []int64, speakerID uint32) (int32, RawBuffer) {
	var n C.uintptr_t
	var out *C.float
	code := C.voicevox_predict_duration(
		C.uintptr_t(len(phonemes)), int64s(phonemes),
		C.uint32_t(speakerID), &n, &out)
	return int32(code), RawBuffer{Ptr: unsafe.Pointer(out), Len: int(n), Free: freeDuration}
}

func (cgoNative) PredictIntonation(length int, vowels, consonants, startAccents, endAccents, startAccentPhrases, endAccentPhrases []int64, speakerID uint32) (int32, RawBuffer) {
	var n C.uintptr_t
	var out *C.float
	code := C.voicevox_predict_intonation(
		C.uintptr_t(length),
		int64s(vowels), int64s(consonants),
		int64s(startAccents), int64s(endAccents),
		int64s(startAccentPhrases), int64s(endAccentPhrases),
		C.uint32_t(speakerID), &n, &out)
	return int32(code), RawBuffer{Ptr: unsafe.Pointer(out), Len: int(n), Free: freeIntonation}
}

func (cgoNative) Decode(length, factor int, phonemes, f0 []float32, speakerID uint32) (int32, RawBuffer) {
	var n C.uintptr_t
	var out *C.float
	code := C.voicevox_decode(
		C.uintptr_t(length), C.uintptr_t(factor),
		float32s(phonemes), float32s(f0),
		C.uint32_t(speakerID), &n, &out)
	return int32(code), RawBuffer{Ptr: unsafe.Pointer(out), Len: int(n), Free: freeDecode}
}

func (cgoNative) AudioQuery(text string, speakerID uint32, opts AudioQueryOptions) (int32, RawText) {
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	copts := C.voicevox_make_default_audio_query_options()
	copts.kana = C.bool(opts.Kana)

	var out *C.char
	code := C.voicevox_audio_query(ctext, C.uint32_t(speakerID), copts, &out)
	return int32(code), RawText{Ptr: unsafe.Pointer(out), Free: freeJSON}
}

func (cgoNative) Synthesis(audioQueryJSON string, speakerID uint32, opts SynthesisOptions) (int32, RawBuffer) {
	cquery := C.CString(audioQueryJSON)
	defer C.free(unsafe.Pointer(cquery))

	copts := C.voicevox_make_default_synthesis_options()
	copts.enable_interrogative_upspeak = C.bool(opts.EnableInterrogativeUpspeak)

	var n C.uintptr_t
	var out *C.uint8_t
	code := C.voicevox_synthesis(cquery, C.uint32_t(speakerID), copts, &n, &out)
	return int32(code), RawBuffer{Ptr: unsafe.Pointer(out), Len: int(n), Free: freeWAV}
}

func (cgoNative) TTS(text string, speakerID uint32, opts TTSOptions) (int32, RawBuffer) {
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	copts := C.voicevox_make_default_tts_options()
	copts.kana = C.bool(opts.Kana)
	copts.enable_interrogative_upspeak = C.bool(opts.EnableInterrogativeUpspeak)

	var n C.uintptr_t
	var out *C.uint8_t
	code := C.voicevox_tts(ctext, C.uint32_t(speakerID), copts, &n, &out)
	return int32(code), RawBuffer{Ptr: unsafe.Pointer(out), Len: int(n), Free: freeWAV}
}
