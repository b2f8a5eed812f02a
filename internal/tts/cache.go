package tts

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/iabetor/vvcore/internal/database"
	"github.com/iabetor/vvcore/internal/logger"
	"github.com/iabetor/vvcore/internal/voicevox"
)

// Cache 把合成结果按 (说话人, 选项, 文本) 缓存在 SQLite 中。
// 超过 maxEntries 时淘汰最久未使用的条目。
// use_seq 在每次 Get 命中和 Put 时递增，last_used 只有秒级精度，不用于排序。
type Cache struct {
	db         *database.DB
	maxEntries int
}

// NewCache 创建缓存。db 需已完成 Migrate；maxEntries <= 0 表示不限制。
func NewCache(db *database.DB, maxEntries int) *Cache {
	return &Cache{db: db, maxEntries: maxEntries}
}

// CacheKey 返回缓存键。选项会影响输出，因此参与计算。
func CacheKey(speakerID uint32, opts voicevox.TTSOptions, text string) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatUint(uint64(speakerID), 10)))
	h.Write([]byte{0, flag(opts.Kana), flag(opts.EnableInterrogativeUpspeak), 0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}

const nextSeq = "SELECT COALESCE(MAX(use_seq), 0) + 1 FROM synthesis_cache"

// Get 查询缓存，命中时更新使用时间和命中次数。
func (c *Cache) Get(key string) ([]byte, bool, error) {
	var wav []byte
	err := c.db.QueryRow("SELECT wav FROM synthesis_cache WHERE cache_key = ?", key).Scan(&wav)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("查询合成缓存失败: %w", err)
	}

	if _, err := c.db.Exec(`UPDATE synthesis_cache SET hit_count = hit_count + 1, last_used = CURRENT_TIMESTAMP,
		use_seq = (`+nextSeq+`) WHERE cache_key = ?`, key); err != nil {
		logger.Warnf("[cache] 更新命中记录失败: %v", err)
	}
	return wav, true, nil
}

// Put 写入缓存并按需淘汰旧条目。
func (c *Cache) Put(key string, speakerID uint32, text string, wav []byte) error {
	_, err := c.db.Exec(`INSERT INTO synthesis_cache (cache_key, speaker_id, text, wav, size, use_seq)
		VALUES (?, ?, ?, ?, ?, (`+nextSeq+`))
		ON CONFLICT(cache_key) DO UPDATE SET wav = excluded.wav, size = excluded.size,
		last_used = CURRENT_TIMESTAMP, use_seq = excluded.use_seq`,
		key, speakerID, text, wav, len(wav))
	if err != nil {
		return fmt.Errorf("写入合成缓存失败: %w", err)
	}
	return c.evict()
}

// evict 删除超出上限的最久未使用条目。
func (c *Cache) evict() error {
	if c.maxEntries <= 0 {
		return nil
	}
	res, err := c.db.Exec(`DELETE FROM synthesis_cache WHERE cache_key IN (
		SELECT cache_key FROM synthesis_cache ORDER BY use_seq DESC LIMIT -1 OFFSET ?)`, c.maxEntries)
	if err != nil {
		return fmt.Errorf("淘汰合成缓存失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Debugf("[cache] 淘汰 %d 条合成缓存", n)
	}
	return nil
}

// Len 返回缓存条目数。
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM synthesis_cache").Scan(&n); err != nil {
		return 0, fmt.Errorf("统计合成缓存失败: %w", err)
	}
	return n, nil
}

// cacheVersionKey 记录写入缓存时的引擎版本。
const cacheVersionKey = "synthesis_cache.engine_version"

// Bind 把缓存绑定到引擎版本；版本变化时清空旧结果。
func (c *Cache) Bind(engineVersion string) error {
	prev, err := c.db.GetConfig(cacheVersionKey)
	if err != nil {
		return err
	}
	if prev == engineVersion {
		return nil
	}
	if prev != "" {
		logger.Infof("[cache] 引擎版本 %s → %s，清空合成缓存", prev, engineVersion)
		if err := c.Clear(); err != nil {
			return err
		}
	}
	return c.db.SetConfig(cacheVersionKey, engineVersion)
}

// Clear 清空缓存。
func (c *Cache) Clear() error {
	if _, err := c.db.Exec("DELETE FROM synthesis_cache"); err != nil {
		return fmt.Errorf("清空合成缓存失败: %w", err)
	}
	return nil
}
