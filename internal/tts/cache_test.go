package tts

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iabetor/vvcore/internal/voicevox"
)

func TestCacheKey(t *testing.T) {
	opts := voicevox.DefaultTTSOptions()
	base := CacheKey(1, opts, "テスト")

	assert.Equal(t, base, CacheKey(1, opts, "テスト"))
	assert.NotEqual(t, base, CacheKey(2, opts, "テスト"))
	assert.NotEqual(t, base, CacheKey(1, opts, "テスト!"))

	opts.EnableInterrogativeUpspeak = false
	assert.NotEqual(t, base, CacheKey(1, opts, "テスト"))

	kana := voicevox.DefaultTTSOptions()
	kana.Kana = true
	assert.NotEqual(t, base, CacheKey(1, kana, "テスト"))

	// 说话人 ID 与文本的拼接不能产生歧义
	assert.NotEqual(t, CacheKey(1, opts, "1a"), CacheKey(11, opts, "a"))
}

func TestCache_PutGet(t *testing.T) {
	cache := newCache(t, 0)

	_, ok, err := cache.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put("k", 1, "テスト", []byte("RIFF1")))
	wav, ok, err := cache.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("RIFF1"), wav)

	// 重复写入覆盖旧值
	require.NoError(t, cache.Put("k", 1, "テスト", []byte("RIFF2")))
	wav, _, err = cache.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF2"), wav)

	require.NoError(t, cache.Clear())
	n, err := cache.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCache_EvictsBeyondMax(t *testing.T) {
	cache := newCache(t, 3)
	for i := 0; i < 5; i++ {
		require.NoError(t, cache.Put(fmt.Sprintf("k%d", i), 1, "t", []byte{byte(i)}))
	}

	n, err := cache.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// 最新写入的条目保留
	_, ok, err := cache.Get("k4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := newCache(t, 2)

	require.NoError(t, cache.Put("a", 1, "a", []byte("A")))
	require.NoError(t, cache.Put("b", 1, "b", []byte("B")))
	_, ok, err := cache.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, cache.Put("c", 1, "c", []byte("C")))

	// 同一秒内完成，顺序只能由使用序号决定
	for key, want := range map[string]bool{"a": true, "b": false, "c": true} {
		_, ok, err := cache.Get(key)
		require.NoError(t, err)
		assert.Equal(t, want, ok, key)
	}
}

func TestCache_BindClearsOnVersionChange(t *testing.T) {
	cache := newCache(t, 0)

	require.NoError(t, cache.Bind("0.14.4"))
	require.NoError(t, cache.Put("k", 1, "t", []byte("RIFF")))

	// 同一版本不影响已有条目
	require.NoError(t, cache.Bind("0.14.4"))
	n, err := cache.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, cache.Bind("0.15.0"))
	n, err = cache.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}
