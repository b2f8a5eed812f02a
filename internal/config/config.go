package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iabetor/vvcore/internal/logger"
	"github.com/iabetor/vvcore/internal/voicevox"
)

// Config 是 vvcore 的顶层配置结构。
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Audio     AudioConfig     `yaml:"audio"`
	Log       LogConfig       `yaml:"log"`
}

// EngineConfig 引擎初始化配置，对应 voicevox.InitializeOptions。
type EngineConfig struct {
	// AccelerationMode 可选 auto、cpu、gpu。
	AccelerationMode string `yaml:"acceleration_mode"`
	// CPUNumThreads 为 0 时由引擎决定。
	CPUNumThreads    uint16 `yaml:"cpu_num_threads"`
	LoadAllModels    bool   `yaml:"load_all_models"`
	OpenJtalkDictDir string `yaml:"open_jtalk_dict_dir"`
	// PreloadSpeakers 在初始化后立即加载的说话人。
	PreloadSpeakers []uint32 `yaml:"preload_speakers"`
}

// SynthesisConfig 合成默认参数。
type SynthesisConfig struct {
	DefaultSpeaker uint32 `yaml:"default_speaker"`
	Kana           bool   `yaml:"kana"`
	// EnableInterrogativeUpspeak 为空时使用引擎默认值（开启）。
	EnableInterrogativeUpspeak *bool `yaml:"enable_interrogative_upspeak"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Listen       string `yaml:"listen"`
	ReadTimeout  int    `yaml:"read_timeout"`  // 秒
	WriteTimeout int    `yaml:"write_timeout"` // 秒
}

// CacheConfig 合成结果缓存配置。
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DBPath     string `yaml:"db_path"`
	MaxEntries int    `yaml:"max_entries"`
}

// AudioConfig 本地播放配置。
type AudioConfig struct {
	Channels int `yaml:"channels"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容并填充默认值。
func Parse(data []byte) (*Config, error) {
	// 展开环境变量，如 ${VOICEVOX_DICT_DIR}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 返回只包含默认值的配置，用于没有配置文件的场景。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Engine.AccelerationMode == "" {
		cfg.Engine.AccelerationMode = "auto"
	}
	if cfg.Engine.OpenJtalkDictDir == "" {
		cfg.Engine.OpenJtalkDictDir = os.Getenv("VOICEVOX_OPEN_JTALK_DICT_DIR")
	}
	cfg.Engine.OpenJtalkDictDir = expandHome(cfg.Engine.OpenJtalkDictDir)

	if cfg.Synthesis.EnableInterrogativeUpspeak == nil {
		on := voicevox.DefaultSynthesisOptions().EnableInterrogativeUpspeak
		cfg.Synthesis.EnableInterrogativeUpspeak = &on
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = "127.0.0.1:50021"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120
	}

	if cfg.Cache.DBPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Cache.DBPath = filepath.Join(home, ".vvcore", "cache.db")
		} else {
			cfg.Cache.DBPath = "./.vvcore-data/cache.db"
		}
	} else {
		cfg.Cache.DBPath = expandHome(cfg.Cache.DBPath)
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 1000
	}

	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	cfg.Log.File = expandHome(cfg.Log.File)
}

// expandHome 把开头的 ~/ 替换为用户主目录，Go 不会自动展开。
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return path
	}
	return home + path[1:]
}

// Validate 检查无法通过默认值修正的配置错误。
func (c *Config) Validate() error {
	if _, err := voicevox.ParseAccelerationMode(c.Engine.AccelerationMode); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries 不能为负数: %d", c.Cache.MaxEntries)
	}
	return nil
}

// InitializeOptions 把引擎配置转换为 voicevox.InitializeOptions。
func (c *Config) InitializeOptions() (voicevox.InitializeOptions, error) {
	mode, err := voicevox.ParseAccelerationMode(c.Engine.AccelerationMode)
	if err != nil {
		return voicevox.InitializeOptions{}, err
	}
	return voicevox.InitializeOptions{
		AccelerationMode: mode,
		CPUNumThreads:    c.Engine.CPUNumThreads,
		LoadAllModels:    c.Engine.LoadAllModels,
		OpenJtalkDictDir: c.Engine.OpenJtalkDictDir,
	}, nil
}

// TTSOptions 返回配置中的合成默认选项。
func (c *Config) TTSOptions() voicevox.TTSOptions {
	opts := voicevox.DefaultTTSOptions()
	opts.Kana = c.Synthesis.Kana
	if c.Synthesis.EnableInterrogativeUpspeak != nil {
		opts.EnableInterrogativeUpspeak = *c.Synthesis.EnableInterrogativeUpspeak
	}
	return opts
}

// LoggerConfig 返回日志模块需要的配置。
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
	}
}
