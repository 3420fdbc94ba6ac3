// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	RemoteAPI RemoteAPIConfig `mapstructure:"remote_api"`
	Store     StoreConfig     `mapstructure:"store"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Seed      SeedConfig      `mapstructure:"seed"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// RemoteAPIConfig 描述远端 EcoAdvisor 服务（上传、知识库、对话、聊天）。
type RemoteAPIConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	UserID          string        `mapstructure:"user_id"`
	KnowledgeBaseID string        `mapstructure:"knowledge_base_id"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// StoreConfig 描述远端不可达时使用的本地回退存储。
// Driver 取值: bolt | redis | memory。
type StoreConfig struct {
	Driver   string      `mapstructure:"driver"`
	BoltPath string      `mapstructure:"bolt_path"`
	Redis    RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// UploadConfig 控制批量上传。MaxConcurrency <= 0 表示不限制并发。
type UploadConfig struct {
	MaxConcurrency int   `mapstructure:"max_concurrency"`
	MaxFileBytes   int64 `mapstructure:"max_file_bytes"`
}

// SyncConfig 控制本地与服务端对话的合并策略。
// TiePolicy 取值: prefer_local | prefer_server。
type SyncConfig struct {
	TiePolicy string `mapstructure:"tie_policy"`
}

// TelemetryConfig 控制 OpenTelemetry 追踪。
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// SeedConfig 指定启动时自动上传并处理的目录。
type SeedConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load 从指定路径读取 YAML 配置文件，并允许 ECOADVISOR_ 前缀的环境变量覆盖。
// 配置文件不存在时仅使用默认值和环境变量。
func Load(configPath string) (*Config, error) {
	// .env 仅用于本地开发，不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ECOADVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if cfg.RemoteAPI.BaseURL == "" {
		return nil, errors.New("remote_api.base_url 不能为空")
	}
	cfg.RemoteAPI.BaseURL = strings.TrimRight(cfg.RemoteAPI.BaseURL, "/")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("remote_api.base_url", "")
	v.SetDefault("remote_api.user_id", "user-123")
	v.SetDefault("remote_api.knowledge_base_id", "")
	v.SetDefault("remote_api.timeout", 10*time.Second)
	v.SetDefault("store.driver", "bolt")
	v.SetDefault("store.bolt_path", "data/ecoadvisor.db")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("upload.max_concurrency", 0)
	v.SetDefault("upload.max_file_bytes", 50<<20)
	v.SetDefault("sync.tie_policy", "prefer_local")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "ecoadvisor-gateway")
	v.SetDefault("seed.dir", "")
	v.SetDefault("log.output_path", "")
}
