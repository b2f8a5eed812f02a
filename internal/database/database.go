package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/iabetor/vvcore/internal/logger"
)

// DB 是 vvcore 的 SQLite 连接，目前只承载合成缓存。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库。
// dbPath 为空时使用 ~/.vvcore/vvcore.db；":memory:" 表示内存数据库。
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			dbPath = filepath.Join(home, ".vvcore", "vvcore.db")
		} else {
			dbPath = "./vvcore.db"
		}
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// 内存库每个连接都是独立的数据库
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 busy_timeout 失败: %w", err)
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)

	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 创建所需的表和索引，可重复执行。
func (db *DB) Migrate() error {
	migrations := []string{
		// 合成结果缓存，key 由说话人、选项和文本派生
		`CREATE TABLE IF NOT EXISTS synthesis_cache (
			cache_key TEXT PRIMARY KEY,
			speaker_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			wav BLOB NOT NULL,
			size INTEGER NOT NULL,
			hit_count INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_used DATETIME DEFAULT CURRENT_TIMESTAMP,
			use_seq INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS system_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	// 旧库补充字段；SQLite 的 ALTER TABLE 不支持 IF NOT EXISTS，忽略错误
	db.Exec("ALTER TABLE synthesis_cache ADD COLUMN use_seq INTEGER NOT NULL DEFAULT 0")

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_synthesis_cache_use_seq ON synthesis_cache(use_seq)`,
		`CREATE INDEX IF NOT EXISTS idx_synthesis_cache_speaker ON synthesis_cache(speaker_id)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Debug("[database] 数据库迁移完成")
	return nil
}

// GetConfig 读取 system_config 中的值，不存在时返回空字符串。
func (db *DB) GetConfig(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM system_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("读取配置 %s 失败: %w", key, err)
	}
	return value, nil
}

// SetConfig 写入 system_config。
func (db *DB) SetConfig(key, value string) error {
	_, err := db.Exec(`INSERT INTO system_config (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, key, value)
	if err != nil {
		return fmt.Errorf("写入配置 %s 失败: %w", key, err)
	}
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
