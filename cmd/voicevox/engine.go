package main

import (
	"fmt"

	"github.com/iabetor/vvcore/internal/database"
	"github.com/iabetor/vvcore/internal/logger"
	"github.com/iabetor/vvcore/internal/tts"
	"github.com/iabetor/vvcore/internal/voicevox"
)

// newNative 便于测试替换为内存实现。
var newNative = voicevox.NewNative

// resources 是一次命令执行期间打开的资源，Close 按相反顺序释放。
type resources struct {
	ex    *voicevox.Exclusive
	db    *database.DB
	cache *tts.Cache
}

func (r *resources) Close() {
	if r.ex != nil {
		if err := r.ex.Close(); err != nil {
			logger.Warnf("[main] 关闭引擎失败: %v", err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			logger.Warnf("[main] 关闭数据库失败: %v", err)
		}
	}
}

// openEngine 初始化引擎并预加载配置中的说话人。
func (a *app) openEngine() (*resources, error) {
	native, err := newNative()
	if err != nil {
		return nil, err
	}
	opts, err := a.cfg.InitializeOptions()
	if err != nil {
		return nil, err
	}
	core, err := voicevox.New(native, opts)
	if err != nil {
		return nil, err
	}
	for _, id := range a.cfg.Engine.PreloadSpeakers {
		if err := core.LoadModel(id); err != nil {
			core.Close()
			return nil, fmt.Errorf("预加载说话人 %d 失败: %w", id, err)
		}
	}
	return &resources{ex: voicevox.NewExclusive(core)}, nil
}

// openCache 按配置打开合成缓存，未启用时返回 nil。
func (a *app) openCache(r *resources) error {
	if !a.cfg.Cache.Enabled {
		return nil
	}
	db, err := database.Open(a.cfg.Cache.DBPath)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return err
	}
	r.db = db
	r.cache = tts.NewCache(db, a.cfg.Cache.MaxEntries)
	logger.Debugf("[main] 合成缓存已启用 (max_entries=%d)", a.cfg.Cache.MaxEntries)
	return nil
}

// newTTSEngine 打开引擎和缓存，返回带缓存的合成器。
func (a *app) newTTSEngine(speaker uint32, opts voicevox.TTSOptions) (*resources, *tts.VoicevoxEngine, error) {
	r, err := a.openEngine()
	if err != nil {
		return nil, nil, err
	}
	if err := a.openCache(r); err != nil {
		r.Close()
		return nil, nil, err
	}
	if r.cache != nil {
		var v string
		if err := r.ex.Do(func(c *voicevox.Core) (err error) {
			v, err = c.Version()
			return err
		}); err != nil {
			r.Close()
			return nil, nil, err
		}
		if err := r.cache.Bind(v); err != nil {
			r.Close()
			return nil, nil, err
		}
	}
	return r, tts.NewVoicevoxEngine(r.ex, speaker, opts, r.cache), nil
}
