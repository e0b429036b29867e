// Package config 提供 quicklistener 的配置管理
//
// 主 Config 结构体嵌入各子配置，每个子配置在独立文件中定义：
//   - Delivery: 事件投递（慢消费者阈值、默认等待超时）
//   - Response: 响应通道（回放日志容量）
//   - Debug: 调试输出
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Delivery.DefaultWaitTimeout = config.Duration(5 * time.Second)
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
package config

import "errors"

// Config 是 quicklistener 的完整配置结构
type Config struct {
	// Delivery 事件投递配置
	Delivery DeliveryConfig `json:"delivery"`

	// Response 响应通道配置
	Response ResponseConfig `json:"response"`

	// Debug 调试输出配置
	Debug DebugConfig `json:"debug"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Delivery: DefaultDeliveryConfig(),
		Response: DefaultResponseConfig(),
		Debug:    DefaultDebugConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Delivery.Validate(); err != nil {
		return err
	}
	if err := c.Response.Validate(); err != nil {
		return err
	}
	return c.Debug.Validate()
}
