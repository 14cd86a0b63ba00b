package testutil

import (
	"path/filepath"
	"testing"

	"github.com/ashwinyue/next-chat/internal/config"
	"github.com/ashwinyue/next-chat/internal/database"
	"github.com/stretchr/testify/require"
)

// NewTestConfig 返回测试用配置：临时目录下的 SQLite，离线模式
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "chat.db")
	cfg.AI.DeepSeek.APIKey = ""
	cfg.AI.OpenAI.APIKey = ""
	cfg.Redis.Enabled = false
	return cfg
}

// NewTestDB 创建迁移好的临时 SQLite 数据库，测试结束自动关闭
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()
	return NewTestDBWithConfig(t, NewTestConfig(t))
}

// NewTestDBWithConfig 按给定配置创建数据库
func NewTestDBWithConfig(t *testing.T, cfg *config.Config) *database.DB {
	t.Helper()
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
