package voicevox_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iabetor/vvcore/internal/voicevox"
	"github.com/iabetor/vvcore/internal/voicevox/voicevoxtest"
)

func loadedCore(t *testing.T) (*voicevox.Core, *voicevoxtest.Fake) {
	t.Helper()
	core, fake := newTestCore(t)
	require.NoError(t, core.LoadModel(1))
	return core, fake
}

func intonationInput(n int) voicevox.IntonationInput {
	seq := func() []int64 {
		s := make([]int64, n)
		for i := range s {
			s[i] = int64(i % 3)
		}
		return s
	}
	return voicevox.IntonationInput{
		Vowels:             seq(),
		Consonants:         seq(),
		StartAccents:       seq(),
		EndAccents:         seq(),
		StartAccentPhrases: seq(),
		EndAccentPhrases:   seq(),
	}
}

func TestHappyPath_TTSSimple(t *testing.T) {
	core, fake := newTestCore(t)

	require.NoError(t, core.LoadModel(1))
	require.True(t, core.IsModelLoaded(1))

	wav, err := core.TTSSimple("こんにちは", 1)
	require.NoError(t, err)
	require.Greater(t, wav.Len(), 44)
	assert.Equal(t, "RIFF", string(wav.Copy()[:4]))

	require.NoError(t, wav.Close())
	assert.Zero(t, fake.Live())
	assert.Zero(t, fake.BadFrees())
}

func TestInference_UnloadedSpeaker(t *testing.T) {
	core, fake := newTestCore(t)

	_, err := core.TTSSimple("こんにちは", 2)
	assert.ErrorIs(t, err, voicevox.InvalidSpeakerIDError)
	_, err = core.PredictDuration([]int64{1, 2, 3}, 2)
	assert.ErrorIs(t, err, voicevox.InvalidSpeakerIDError)
	_, err = core.PredictIntonation(intonationInput(3), 2)
	assert.ErrorIs(t, err, voicevox.InvalidSpeakerIDError)
	_, err = core.Decode([]float32{1, 2}, []float32{1, 2, 3, 4}, 2)
	assert.ErrorIs(t, err, voicevox.InvalidSpeakerIDError)
	_, err = core.AudioQuery("こんにちは", 2, voicevox.DefaultAudioQueryOptions())
	assert.ErrorIs(t, err, voicevox.InvalidSpeakerIDError)

	var e *voicevox.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "無効なspeaker_idです", e.Message)
	assert.Equal(t, voicevox.StageStart, e.Stage)

	require.NoError(t, core.LoadModel(2))
	wav, err := core.TTSSimple("こんにちは", 2)
	require.NoError(t, err)
	wav.Close()
	assert.Zero(t, fake.Live())
}

func TestAudioQuery_ThenSynthesis(t *testing.T) {
	core, fake := loadedCore(t)

	query, err := core.AudioQuery("こんにちは", 1, voicevox.DefaultAudioQueryOptions())
	require.NoError(t, err)
	assert.True(t, query.Valid())
	assert.Zero(t, fake.Live(), "audio query text must be released after decoding")

	wav, err := core.Synthesis(query, 1, voicevox.DefaultSynthesisOptions())
	require.NoError(t, err)
	defer wav.Close()

	direct, err := core.TTS("こんにちは", 1, voicevox.DefaultTTSOptions())
	require.NoError(t, err)
	defer direct.Close()

	assert.Equal(t, "RIFF", string(wav.Copy()[:4]))
	assert.Equal(t, direct.Len(), wav.Len(), "both paths produce the same duration")
}

func TestAudioQuery_InvalidInput(t *testing.T) {
	core, fake := loadedCore(t)

	_, err := core.AudioQuery(string([]byte{0xe3, 0x81}), 1, voicevox.DefaultAudioQueryOptions())
	assert.ErrorIs(t, err, voicevox.InvalidUTF8InputError)

	_, err = core.AudioQuery("abc\x00def", 1, voicevox.DefaultAudioQueryOptions())
	assert.ErrorIs(t, err, voicevox.InvalidUTF8InputError)

	var e *voicevox.Error
	require.ErrorAs(t, err, &e)
	assert.True(t, e.Local)
	assert.Zero(t, fake.Calls("audio_query"))

	_, err = core.TTS(string([]byte{0xff}), 1, voicevox.DefaultTTSOptions())
	assert.ErrorIs(t, err, voicevox.InvalidUTF8InputError)
	assert.Zero(t, fake.Calls("tts"))
}

func TestAudioQuery_Kana(t *testing.T) {
	core, _ := loadedCore(t)

	q, err := core.AudioQuery("コンニチワ'", 1, voicevox.AudioQueryOptions{Kana: true})
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(q), "accent_phrases"))

	_, err = core.AudioQuery("こんにちは", 1, voicevox.AudioQueryOptions{Kana: true})
	assert.ErrorIs(t, err, voicevox.ParseKanaError)

	_, err = core.TTS("hello", 1, voicevox.TTSOptions{Kana: true})
	assert.ErrorIs(t, err, voicevox.ParseKanaError)
}

func TestAudioQuery_InvalidUTF8OutputIsFault(t *testing.T) {
	core, fake := loadedCore(t)
	fake.BadUTF8 = true

	_, err := core.AudioQuery("こんにちは", 1, voicevox.DefaultAudioQueryOptions())
	require.Error(t, err)
	assert.True(t, voicevox.IsFault(err))
	assert.ErrorIs(t, err, voicevox.ErrInvalidUTF8Output)
	assert.Zero(t, fake.Live(), "text must be released on the fault path")
}

func TestPredictDuration(t *testing.T) {
	core, fake := loadedCore(t)

	durations, err := core.PredictDuration([]int64{0, 23, 30, 4, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, durations.Len())
	for _, d := range durations.All() {
		assert.Greater(t, d, float32(0))
	}
	durations.Close()
	assert.Equal(t, 1, fake.Frees())
	assert.Zero(t, fake.Live())
}

func TestPredictDuration_EmptyIsOk(t *testing.T) {
	core, fake := loadedCore(t)

	durations, err := core.PredictDuration(nil, 1)
	require.NoError(t, err)
	assert.Zero(t, durations.Len())
	assert.NoError(t, durations.Close())
	assert.Zero(t, fake.Calls("predict_duration"))
}

func TestPredictDuration_InferenceError(t *testing.T) {
	core, fake := loadedCore(t)
	fake.FailCodes["predict_duration"] = 9

	_, err := core.PredictDuration([]int64{1}, 1)
	assert.ErrorIs(t, err, voicevox.InferenceError)
	assert.False(t, voicevox.IsFault(err))
}

func TestPredict_OutputLengthMismatchIsFault(t *testing.T) {
	core, fake := loadedCore(t)
	fake.ShortOutput = true

	_, err := core.PredictDuration([]int64{1, 2, 3}, 1)
	assert.ErrorIs(t, err, voicevox.ErrLengthMismatch)
	_, err = core.PredictIntonation(intonationInput(4), 1)
	assert.ErrorIs(t, err, voicevox.ErrLengthMismatch)

	assert.Equal(t, 2, fake.Allocs())
	assert.Zero(t, fake.Live(), "mismatched outputs must still be released")
}

func TestPredictIntonation(t *testing.T) {
	core, fake := loadedCore(t)

	f0, err := core.PredictIntonation(intonationInput(6), 1)
	require.NoError(t, err)
	defer f0.Close()
	assert.Equal(t, 6, f0.Len())
	assert.Equal(t, 6, fake.LastLength())
}

func TestPredictIntonation_LengthMismatchNeverReachesEngine(t *testing.T) {
	core, fake := loadedCore(t)

	mutators := map[string]func(*voicevox.IntonationInput){
		"vowel":               func(in *voicevox.IntonationInput) { in.Vowels = in.Vowels[:2] },
		"consonant":           func(in *voicevox.IntonationInput) { in.Consonants = in.Consonants[:2] },
		"start_accent":        func(in *voicevox.IntonationInput) { in.StartAccents = append(in.StartAccents, 1) },
		"end_accent":          func(in *voicevox.IntonationInput) { in.EndAccents = nil },
		"start_accent_phrase": func(in *voicevox.IntonationInput) { in.StartAccentPhrases = in.StartAccentPhrases[:1] },
		"end_accent_phrase":   func(in *voicevox.IntonationInput) { in.EndAccentPhrases = in.EndAccentPhrases[:0] },
	}
	for name, mutate := range mutators {
		in := intonationInput(3)
		mutate(&in)
		_, err := core.PredictIntonation(in, 1)
		require.Error(t, err, name)
		assert.True(t, voicevox.IsFault(err), name)
		assert.ErrorIs(t, err, voicevox.ErrLengthMismatch, name)
	}
	assert.Zero(t, fake.Calls("predict_intonation"))
}

func TestPredictIntonation_EmptyIsOk(t *testing.T) {
	core, fake := loadedCore(t)
	f0, err := core.PredictIntonation(voicevox.IntonationInput{}, 1)
	require.NoError(t, err)
	assert.Zero(t, f0.Len())
	assert.Zero(t, fake.Calls("predict_intonation"))
}

func TestDecode(t *testing.T) {
	core, fake := loadedCore(t)

	phonemes := []float32{0.1, 0.2, 0.3}
	f0 := []float32{5, 5, 5, 6, 6, 6}
	wave, err := core.Decode(phonemes, f0, 1)
	require.NoError(t, err)
	assert.Equal(t, 3*2*256, wave.Len())
	wave.Close()
	assert.Zero(t, fake.Live())
}

func TestDecode_FramingGuards(t *testing.T) {
	core, fake := loadedCore(t)

	tests := []struct {
		name     string
		phonemes []float32
		f0       []float32
	}{
		{"empty phonemes", nil, []float32{1, 2}},
		{"empty both", nil, nil},
		{"empty f0", []float32{1}, nil},
		{"non-integer ratio", []float32{1, 2}, []float32{1, 2, 3}},
		{"f0 shorter", []float32{1, 2, 3}, []float32{1}},
	}
	for _, tt := range tests {
		_, err := core.Decode(tt.phonemes, tt.f0, 1)
		require.Error(t, err, tt.name)
		assert.ErrorIs(t, err, voicevox.InvalidAudioQueryError, tt.name)

		var e *voicevox.Error
		require.ErrorAs(t, err, &e, tt.name)
		assert.True(t, e.Local, tt.name)
		assert.Equal(t, voicevox.StageIntonationPredicted, e.Stage, tt.name)
	}
	assert.Zero(t, fake.Calls("decode"))
}

func TestSynthesis_InvalidQuery(t *testing.T) {
	core, fake := loadedCore(t)

	_, err := core.Synthesis(`{"accent_phrases": [`, 1, voicevox.DefaultSynthesisOptions())
	assert.ErrorIs(t, err, voicevox.InvalidAudioQueryError)
	assert.Zero(t, fake.Calls("synthesis"))

	// 语法正确但结构不对的 JSON 由引擎判定
	_, err = core.Synthesis(`{"outputSamplingRate": 0}`, 1, voicevox.DefaultSynthesisOptions())
	assert.ErrorIs(t, err, voicevox.InvalidAudioQueryError)
	assert.Equal(t, 1, fake.Calls("synthesis"))
}

func TestPipeline_AllBuffersReleased(t *testing.T) {
	core, fake := loadedCore(t)

	run := func() error {
		durations, err := core.PredictDuration([]int64{1, 2, 3, 4}, 1)
		if err != nil {
			return err
		}
		defer durations.Close()

		f0, err := core.PredictIntonation(intonationInput(4), 1)
		if err != nil {
			return err
		}
		defer f0.Close()

		frames := make([]float32, 0, 8)
		for _, v := range f0.All() {
			frames = append(frames, v, v)
		}
		wave, err := core.Decode(durations.Copy(), frames, 1)
		if err != nil {
			return err
		}
		defer wave.Close()
		return nil
	}
	require.NoError(t, run())
	assert.Equal(t, 3, fake.Allocs())
	assert.Equal(t, 3, fake.Frees())
	assert.Zero(t, fake.BadFrees())
}
