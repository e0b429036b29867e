package config

import "errors"

// DebugConfig 调试输出配置
type DebugConfig struct {
	// Enable 创建 Bus 时打开进程级调试开关
	Enable bool `json:"enable"`

	// NDJSONPath 调试输出文件路径，为空时写入日志
	NDJSONPath string `json:"ndjson_path,omitempty"`
}

// DefaultDebugConfig 返回默认调试配置
func DefaultDebugConfig() DebugConfig {
	return DebugConfig{}
}

// Validate 验证调试配置
func (c DebugConfig) Validate() error {
	if c.NDJSONPath != "" && !c.Enable {
		return errors.New("debug ndjson path requires debug to be enabled")
	}
	return nil
}
