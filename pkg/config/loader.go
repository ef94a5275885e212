package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 worker / cleanup 共用的完整配置
type Config struct {
	DB           DBConfig           `yaml:"db"`
	MQ           MQConfig           `yaml:"mq"`
	Redis        RedisConfig        `yaml:"redis"`
	Server       ServerConfig       `yaml:"server"`
	Forwarding   ForwardingConfig   `yaml:"forwarding"`
	Notification NotificationConfig `yaml:"notification"`
}

// Load 按 CONFIG_ENV / CONFIG_DIR 加载配置并应用环境变量覆盖
func Load() (*Config, error) {
	env := GetConfigEnv()
	configDir := GetEnv("CONFIG_DIR", "config")

	cfgMap, err := LoadConfig(env, configDir)
	if err != nil {
		return nil, err
	}

	cfg, err := Decode(cfgMap)
	if err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	OverrideDBFromEnv(&cfg.DB)
	OverrideMQFromEnv(&cfg.MQ)
	OverrideRedisFromEnv(&cfg.Redis)
	OverrideServerFromEnv(&cfg.Server)
	OverrideForwardingFromEnv(&cfg.Forwarding)

	cfg.Forwarding.ApplyDefaults()
	cfg.Notification.ApplyDefaults()

	return cfg, nil
}

// Decode 把合并后的 map 转换为 Config 结构
func Decode(cfgMap map[string]interface{}) (*Config, error) {
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoadConfig 读取 base.yaml，叠加 <env>.yaml，最后展开 ${VAR} 占位符。
// 占位符先查 secrets.env，再查进程环境变量。
func LoadConfig(env string, configDir string) (map[string]interface{}, error) {
	if configDir == "" {
		configDir = "config"
	}

	merged, err := readYAML(filepath.Join(configDir, "base.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load base.yaml: %w", err)
	}

	if env != "" && env != "base" {
		overlay, err := readYAML(filepath.Join(configDir, env+".yaml"))
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to load %s.yaml: %w", env, err)
		default:
			overlayInto(merged, overlay)
		}
	}

	secrets, err := readSecrets(filepath.Join(configDir, "secrets.env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load secrets.env: %w", err)
	}
	expandPlaceholders(merged, func(name string) string {
		if v, ok := secrets[name]; ok {
			return v
		}
		return os.Getenv(name)
	})

	return merged, nil
}

func readYAML(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

// readSecrets 解析 KEY=VALUE 格式，忽略空行和 # 注释
func readSecrets(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	secrets := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		secrets[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return secrets, nil
}

// overlayInto 把 src 递归写入 dst，嵌套 map 逐层合并，其余值直接覆盖
func overlayInto(dst, src map[string]interface{}) {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]interface{})
		dstMap, dstIsMap := dst[k].(map[string]interface{})
		if srcIsMap && dstIsMap {
			overlayInto(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
}

// expandPlaceholders 原地展开字符串值里的 ${VAR}
func expandPlaceholders(node map[string]interface{}, lookup func(string) string) {
	for k, v := range node {
		switch val := v.(type) {
		case string:
			if strings.Contains(val, "${") {
				node[k] = os.Expand(val, lookup)
			}
		case map[string]interface{}:
			expandPlaceholders(val, lookup)
		}
	}
}

// GetEnv 获取环境变量，如果未设置则返回默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv 获取配置环境（从环境变量 CONFIG_ENV，默认为 local）
func GetConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}
