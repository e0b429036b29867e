package eventbus

// Option 总线选项
type Option func(*Bus)

// SlowConsumerThreshold 设置慢消费者告警阈值
//
// 订阅待处理队列深度每达到阈值的整数倍告警一次，0 表示关闭告警。
func SlowConsumerThreshold(n int) Option {
	return func(b *Bus) {
		if n >= 0 {
			b.slowThreshold = n
		}
	}
}

// SubscriptionOpt 订阅选项
type SubscriptionOpt func(*Subscription)

// WithFilter 在 key 匹配之外附加过滤条件
//
// Filter 在总线锁内调用，不能回调总线。
func WithFilter(f Filter) SubscriptionOpt {
	return func(s *Subscription) {
		s.filter = f
	}
}

// Bound 将订阅标记为绑定到其 key，CloseBound 只关闭绑定订阅
func Bound() SubscriptionOpt {
	return func(s *Subscription) {
		s.bound = true
	}
}

// OnDiscard 设置取消后仍在队列中的事件的回调
func OnDiscard(fn func(event Keyed)) SubscriptionOpt {
	return func(s *Subscription) {
		s.discard = fn
	}
}
