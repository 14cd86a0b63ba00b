package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig
	Chat     ChatConfig
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string
	Environment string
	Version     string
	Debug       bool
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  int
	WriteTimeout int // 0 表示不限制，流式响应可能持续较久
	StaticDir    string
}

// DatabaseConfig 数据库配置
// Driver 为 sqlite 时只使用 Path，为 postgres 时使用其余连接参数
type DatabaseConfig struct {
	Driver       string
	Path         string
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
}

// RedisConfig Redis配置，未启用时不缓存历史
type RedisConfig struct {
	Enabled    bool
	Host       string
	Port       int
	Password   string
	DB         int
	HistoryTTL int // 秒
}

// AIConfig AI配置
type AIConfig struct {
	Provider     string
	OpenAI       ModelConfig
	DeepSeek     ModelConfig
	SystemPrompt string
	Temperature  float32
}

// ModelConfig 上游模型配置
type ModelConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	ReasonerModel string // 深度思考模式使用的模型
	Timeout       int    // 秒，0 表示不限制
}

// ChatConfig 会话与流式转发配置
type ChatConfig struct {
	DefaultTitle      string
	TitleMaxRunes     int
	HistoryWindow     int
	SessionListLimit  int
	StreamIdleTimeout int // 秒，0 表示不限制
	FinalizeTimeout   int // 秒
}

// Load 加载配置
// path 指向的文件不存在时只使用默认值与环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	// 环境变量
	v.SetEnvPrefix("NEXT_CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 常用的简写环境变量
	bindings := map[string][]string{
		"server.port":         {"NEXT_CHAT_SERVER_PORT", "PORT"},
		"database.path":       {"NEXT_CHAT_DATABASE_PATH", "DATABASE_PATH"},
		"ai.deepseek.apiKey":  {"NEXT_CHAT_AI_DEEPSEEK_APIKEY", "DEEPSEEK_API_KEY"},
		"ai.deepseek.baseUrl": {"NEXT_CHAT_AI_DEEPSEEK_BASEURL", "DEEPSEEK_BASE_URL"},
		"ai.openai.apiKey":    {"NEXT_CHAT_AI_OPENAI_APIKEY", "OPENAI_API_KEY"},
		"ai.openai.baseUrl":   {"NEXT_CHAT_AI_OPENAI_BASEURL", "OPENAI_BASE_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", c.Path)
}

// GetAddr 获取服务器地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAddr 获取 Redis 地址
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Active 返回当前 provider 对应的模型配置
func (c *AIConfig) Active() (ModelConfig, error) {
	switch c.Provider {
	case "deepseek", "":
		return c.DeepSeek, nil
	case "openai":
		return c.OpenAI, nil
	default:
		return ModelConfig{}, fmt.Errorf("unsupported ai provider: %s", c.Provider)
	}
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "next-chat")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.debug", false)

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 0)
	v.SetDefault("server.staticDir", "./static")

	// Database
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "chat.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "next_chat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.maxLifetime", 300)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.historyTTL", 600)

	// AI
	v.SetDefault("ai.provider", "deepseek")
	v.SetDefault("ai.systemPrompt", "You are a helpful assistant.")
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.deepseek.apiKey", "")
	v.SetDefault("ai.deepseek.baseUrl", "https://api.deepseek.com")
	v.SetDefault("ai.deepseek.model", "deepseek-chat")
	v.SetDefault("ai.deepseek.reasonerModel", "deepseek-reasoner")
	v.SetDefault("ai.deepseek.timeout", 120)
	v.SetDefault("ai.openai.apiKey", "")
	v.SetDefault("ai.openai.baseUrl", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.openai.reasonerModel", "o3-mini")
	v.SetDefault("ai.openai.timeout", 120)

	// Chat
	v.SetDefault("chat.defaultTitle", "新会话")
	v.SetDefault("chat.titleMaxRunes", 20)
	v.SetDefault("chat.historyWindow", 9)
	v.SetDefault("chat.sessionListLimit", 100)
	v.SetDefault("chat.streamIdleTimeout", 0)
	v.SetDefault("chat.finalizeTimeout", 10)
}
