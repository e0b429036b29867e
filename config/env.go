package config

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"
)

// ============================================================================
//                              环境变量（供 CLI 使用）
// ============================================================================

// 环境变量前缀和名称常量（供 cmd 层使用）
const (
	// EnvPrefix 环境变量前缀
	EnvPrefix = "QUICKLISTENER_"

	// EnvSlowConsumerThreshold 慢消费者告警阈值
	EnvSlowConsumerThreshold = "SLOW_CONSUMER_THRESHOLD"

	// EnvDefaultWaitTimeout WaitFor* 默认超时，如 "5s"
	EnvDefaultWaitTimeout = "DEFAULT_WAIT_TIMEOUT"

	// EnvResponseRetention 响应回放日志容量
	EnvResponseRetention = "RESPONSE_RETENTION"

	// EnvDebug 打开调试输出
	EnvDebug = "DEBUG"

	// EnvDebugNDJSON 调试输出文件路径
	EnvDebugNDJSON = "DEBUG_NDJSON"
)

// ApplyEnv 用环境变量覆盖配置
//
// 未设置的变量保持原值。所有无法解析的变量一并返回，已解析的仍然生效。
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	var errs error

	if v := getenv(EnvPrefix + EnvSlowConsumerThreshold); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = multierr.Append(errs, envError(EnvSlowConsumerThreshold, v, err))
		} else {
			cfg.Delivery.SlowConsumerThreshold = n
		}
	}

	if v := getenv(EnvPrefix + EnvDefaultWaitTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = multierr.Append(errs, envError(EnvDefaultWaitTimeout, v, err))
		} else {
			cfg.Delivery.DefaultWaitTimeout = Duration(d)
		}
	}

	if v := getenv(EnvPrefix + EnvResponseRetention); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = multierr.Append(errs, envError(EnvResponseRetention, v, err))
		} else {
			cfg.Response.Retention = n
		}
	}

	if v := getenv(EnvPrefix + EnvDebug); v != "" {
		enable, err := strconv.ParseBool(v)
		if err != nil {
			errs = multierr.Append(errs, envError(EnvDebug, v, err))
		} else {
			cfg.Debug.Enable = enable
		}
	}

	if v := getenv(EnvPrefix + EnvDebugNDJSON); v != "" {
		cfg.Debug.NDJSONPath = v
		cfg.Debug.Enable = true
	}

	return errs
}

func envError(name, value string, err error) error {
	return fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, value, err)
}
