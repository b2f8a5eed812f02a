package tts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iabetor/vvcore/internal/database"
	"github.com/iabetor/vvcore/internal/voicevox"
	"github.com/iabetor/vvcore/internal/voicevox/voicevoxtest"
)

func newExclusive(t *testing.T) (*voicevox.Exclusive, *voicevoxtest.Fake) {
	t.Helper()
	fake := voicevoxtest.New()
	core, err := voicevox.New(fake, voicevox.InitializeOptions{
		AccelerationMode: voicevox.AccelerationCPU,
		OpenJtalkDictDir: "open_jtalk_dic_utf_8-1.11",
	})
	require.NoError(t, err)
	ex := voicevox.NewExclusive(core)
	t.Cleanup(func() { ex.Close() })
	return ex, fake
}

func newCache(t *testing.T, max int) *Cache {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return NewCache(db, max)
}

func TestVoicevoxEngine_Synthesize(t *testing.T) {
	ex, fake := newExclusive(t)
	engine := NewVoicevoxEngine(ex, 1, voicevox.DefaultTTSOptions(), nil)

	samples, rate, err := engine.Synthesize(context.Background(), "こんにちは")
	require.NoError(t, err)
	assert.Equal(t, voicevoxtest.SampleRate, rate)
	assert.Len(t, samples, 5*voicevoxtest.SamplesPerMora)

	// 模型按需加载，缓冲区全部归还
	assert.Equal(t, []uint32{1}, fake.LoadedSpeakers())
	assert.Zero(t, fake.Live())
	assert.Zero(t, fake.BadFrees())
}

func TestVoicevoxEngine_InvalidSpeaker(t *testing.T) {
	ex, _ := newExclusive(t)
	engine := NewVoicevoxEngine(ex, 99, voicevox.DefaultTTSOptions(), nil)

	_, _, err := engine.Synthesize(context.Background(), "テスト")
	require.Error(t, err)
	assert.True(t, errors.Is(err, voicevox.InvalidSpeakerIDError))
}

func TestVoicevoxEngine_CanceledContext(t *testing.T) {
	ex, fake := newExclusive(t)
	engine := NewVoicevoxEngine(ex, 1, voicevox.DefaultTTSOptions(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.SynthesizeWAV(ctx, "テスト", 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fake.Calls("tts"))
}

func TestVoicevoxEngine_UsesCache(t *testing.T) {
	ex, fake := newExclusive(t)
	cache := newCache(t, 10)
	engine := NewVoicevoxEngine(ex, 1, voicevox.DefaultTTSOptions(), cache)
	ctx := context.Background()

	first, err := engine.SynthesizeWAV(ctx, "おはよう", 2)
	require.NoError(t, err)
	second, err := engine.SynthesizeWAV(ctx, "おはよう", 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.Calls("tts"))

	// 不同说话人不共享缓存
	_, err = engine.SynthesizeWAV(ctx, "おはよう", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Calls("tts"))

	n, err := cache.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestVoicevoxEngine_ErrorsAreNotCached(t *testing.T) {
	ex, fake := newExclusive(t)
	cache := newCache(t, 10)
	engine := NewVoicevoxEngine(ex, 1, voicevox.DefaultTTSOptions(), cache)

	fake.FailCodes["tts"] = 9
	_, err := engine.SynthesizeWAV(context.Background(), "テスト", 1)
	assert.ErrorIs(t, err, voicevox.InferenceError)

	n, err := cache.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}
