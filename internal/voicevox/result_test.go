package voicevox

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf_Table(t *testing.T) {
	tests := []struct {
		raw  int32
		want ResultCode
		name string
	}{
		{0, OK, "Ok"},
		{1, NotLoadedOpenjtalkDictError, "NotLoadedOpenjtalkDictError"},
		{2, LoadModelError, "LoadModelError"},
		{3, GetSupportedDevicesError, "GetSupportedDevicesError"},
		{4, GPUSupportError, "GpuSupportError"},
		{5, LoadMetasError, "LoadMetasError"},
		{6, UninitializedStatusError, "UninitializedStatusError"},
		{7, InvalidSpeakerIDError, "InvalidSpeakerIdError"},
		{8, InvalidModelIndexError, "InvalidModelIndexError"},
		{9, InferenceError, "InferenceError"},
		{10, ExtractFullContextLabelError, "ExtractFullContextLabelError"},
		{11, InvalidUTF8InputError, "InvalidUtf8InputError"},
		{12, ParseKanaError, "ParseKanaError"},
		{13, InvalidAudioQueryError, "InvalidAudioQueryError"},
	}
	for _, tt := range tests {
		got := codeOf(tt.raw)
		assert.Equal(t, tt.want, got, "raw=%d", tt.raw)
		assert.Equal(t, tt.name, got.String())
	}
}

func TestCodeOf_Unknown(t *testing.T) {
	for _, raw := range []int32{-1, 14, 99, 1 << 20} {
		assert.Equal(t, UnknownError, codeOf(raw), "raw=%d", raw)
	}
}

func TestError_IsMatchesResultCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &Error{Op: "tts", Code: InvalidSpeakerIDError, Raw: 7})

	assert.ErrorIs(t, err, InvalidSpeakerIDError)
	assert.False(t, errors.Is(err, InferenceError))
	assert.False(t, IsFault(err))

	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, InvalidSpeakerIDError, code)

	_, ok = CodeOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestError_Message(t *testing.T) {
	e := &Error{Op: "synthesis", Code: InvalidAudioQueryError, Message: "無効なaudio_queryです"}
	assert.Equal(t, "voicevox: synthesis: 無効なaudio_queryです (InvalidAudioQueryError)", e.Error())

	e = &Error{Op: "decode", Code: UnknownError}
	assert.Equal(t, "voicevox: decode: UnknownError", e.Error())
}

func TestFault_Unwrap(t *testing.T) {
	err := fmt.Errorf("server: %w", faultf("predict_intonation", ErrLengthMismatch, "vowel=3, consonant=2"))
	assert.True(t, IsFault(err))
	assert.ErrorIs(t, err, ErrLengthMismatch)
	assert.Contains(t, err.Error(), "vowel=3, consonant=2")
}
