package config

import "errors"

// ResponseConfig 响应通道配置
type ResponseConfig struct {
	// Retention 回放日志保留的广播数量
	//
	// 广播方在响应已发出之后才开始等待时，从回放日志中取回该响应。
	Retention int `json:"retention"`
}

// DefaultResponseConfig 返回默认响应通道配置
func DefaultResponseConfig() ResponseConfig {
	return ResponseConfig{
		Retention: 256,
	}
}

// Validate 验证响应通道配置
func (c ResponseConfig) Validate() error {
	if c.Retention <= 0 {
		return errors.New("response retention must be positive")
	}
	return nil
}
