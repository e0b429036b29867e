package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogFormat 日志输出格式
type LogFormat int

const (
	// FormatText 文本格式（默认）
	FormatText LogFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

const (
	envLevel     = "QUICKLISTENER_LOG_LEVEL"
	envFormat    = "QUICKLISTENER_LOG_FORMAT"
	envAddSource = "QUICKLISTENER_LOG_ADD_SOURCE"
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// SubsystemLevels 各子系统的日志级别
	SubsystemLevels map[string]slog.Level

	// Format 输出格式
	Format LogFormat

	// AddSource 是否添加源码位置
	AddSource bool
}

// LevelForSubsystem 获取指定子系统的日志级别
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	if level, ok := c.SubsystemLevels[subsystem]; ok {
		return level
	}
	return c.DefaultLevel
}

var (
	configCache *Config
	configOnce  sync.Once
)

// ConfigFromEnv 从环境变量解析配置（结果缓存）
func ConfigFromEnv() *Config {
	configOnce.Do(func() {
		configCache = parseConfig(os.Getenv)
	})
	return configCache
}

// parseConfig 解析环境变量配置
func parseConfig(getenv func(string) string) *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}

	if levelStr := getenv(envLevel); levelStr != "" {
		parseLevelConfig(cfg, levelStr)
	}

	if strings.EqualFold(getenv(envFormat), "json") {
		cfg.Format = FormatJSON
	}

	if addSource := getenv(envAddSource); addSource != "" {
		cfg.AddSource = addSource != "false" && addSource != "0"
	}

	return cfg
}

// parseLevelConfig 解析日志级别配置字符串
// 格式: subsystem=level,subsystem=level,defaultLevel
func parseLevelConfig(cfg *Config, levelStr string) {
	for _, part := range strings.Split(levelStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		subsystem, levelName, scoped := strings.Cut(part, "=")
		if !scoped {
			if level, ok := parseLevel(part); ok {
				cfg.DefaultLevel = level
			}
			continue
		}
		if level, ok := parseLevel(strings.TrimSpace(levelName)); ok {
			cfg.SubsystemLevels[strings.TrimSpace(subsystem)] = level
		}
	}
}

// parseLevel 解析日志级别名称
func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ResetConfig 重置配置缓存（仅用于测试）
func ResetConfig() {
	configOnce = sync.Once{}
	configCache = nil
}
