package config

import (
	"os"
	"strconv"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	// 慢查询阈值（毫秒），0 表示使用默认 100ms
	SlowQueryMS int `yaml:"slow_query_ms"`
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ServerConfig 运维 HTTP 服务配置（healthz / readyz / metrics）
type ServerConfig struct {
	Port string `yaml:"port"`
}

// ForwardingConfig 邮件转发流水线配置
type ForwardingConfig struct {
	// 每次同步处理的未转发邮件上限
	BatchLimit      int `yaml:"batch_limit"`
	DedupTTLSeconds int `yaml:"dedup_ttl_seconds"`
	MaxRetries      int `yaml:"max_retries"`
}

// NotificationConfig 站内通知配置
type NotificationConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

const (
	DefaultBatchLimit    = 10
	DefaultDedupTTL      = time.Hour
	DefaultMaxRetries    = 3
	DefaultRetentionDays = 30
)

// DedupTTL 返回去重 key 的过期时间
func (c ForwardingConfig) DedupTTL() time.Duration {
	if c.DedupTTLSeconds <= 0 {
		return DefaultDedupTTL
	}
	return time.Duration(c.DedupTTLSeconds) * time.Second
}

// ApplyDefaults fills zero values with the package defaults.
func (c *ForwardingConfig) ApplyDefaults() {
	if c.BatchLimit <= 0 {
		c.BatchLimit = DefaultBatchLimit
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// ApplyDefaults fills zero values with the package defaults.
func (c *NotificationConfig) ApplyDefaults() {
	if c.RetentionDays <= 0 {
		c.RetentionDays = DefaultRetentionDays
	}
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.SSLMode = sslmode
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideForwardingFromEnv 从环境变量覆盖转发配置
func OverrideForwardingFromEnv(cfg *ForwardingConfig) {
	if limit := os.Getenv("FORWARDING_BATCH_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			cfg.BatchLimit = n
		}
	}
}
