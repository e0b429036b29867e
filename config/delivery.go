package config

import (
	"errors"
	"time"
)

// DeliveryConfig 事件投递配置
type DeliveryConfig struct {
	// SlowConsumerThreshold 订阅者待处理队列告警阈值
	//
	// 队列深度每跨越一个阈值倍数记录一次告警。0 表示不告警。
	SlowConsumerThreshold int `json:"slow_consumer_threshold"`

	// DefaultWaitTimeout WaitFor* 操作的默认超时，0 表示不超时
	DefaultWaitTimeout Duration `json:"default_wait_timeout"`
}

// DefaultDeliveryConfig 返回默认投递配置
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		SlowConsumerThreshold: 100,
		DefaultWaitTimeout:    0,
	}
}

// Validate 验证投递配置
func (c DeliveryConfig) Validate() error {
	if c.SlowConsumerThreshold < 0 {
		return errors.New("delivery slow consumer threshold must not be negative")
	}
	if time.Duration(c.DefaultWaitTimeout) < 0 {
		return errors.New("delivery default wait timeout must not be negative")
	}
	return nil
}
