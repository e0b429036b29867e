// Package logger 提供 quicklistener 的统一日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别
//   - 环境变量配置（QUICKLISTENER_LOG_LEVEL, QUICKLISTENER_LOG_FORMAT）
//   - 结构化日志
//
// 使用示例:
//
//	package eventbus
//
//	import "github.com/dep2p/go-quicklistener/internal/util/logger"
//
//	var log = logger.Logger("core/eventbus")
//
//	func foo() {
//	    log.Warn("slow consumer", "depth", depth, "subscription", id)
//	}
//
// 环境变量配置:
//
//	# 所有子系统为 info，core/eventbus 为 debug
//	QUICKLISTENER_LOG_LEVEL=core/eventbus=debug,info
//
//	# 使用 JSON 格式输出
//	QUICKLISTENER_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// levels 缓存各子系统的级别变量（用于动态调整级别）
	levels sync.Map // map[string]*slog.LevelVar
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回相同的实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	level := new(slog.LevelVar)
	level.Set(cfg.LevelForSubsystem(subsystem))

	logger := slog.New(newHandler(subsystem, level, cfg))

	actual, loaded := loggers.LoadOrStore(subsystem, logger)
	if !loaded {
		levels.Store(subsystem, level)
	}
	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if v, ok := levels.Load(subsystem); ok {
		v.(*slog.LevelVar).Set(level)
	}
}

// SetGlobalLevel 设置所有已创建子系统的日志级别
func SetGlobalLevel(level slog.Level) {
	levels.Range(func(_, value any) bool {
		value.(*slog.LevelVar).Set(level)
		return true
	})
}

// Discard 返回一个丢弃所有日志的 Logger
//
// 主要用于测试。
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// With 创建带有预设属性的 Logger
func With(subsystem string, args ...any) *slog.Logger {
	return Logger(subsystem).With(args...)
}

// SetOutput 设置全局日志输出目标
//
// 已创建的 Logger 通过 dynamicWriter 同样生效。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}
