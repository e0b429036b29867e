package eventbus

import (
	"slices"
	"sync"

	"github.com/dep2p/go-quicklistener/internal/util/logger"
)

var log = logger.Logger("core/eventbus")

// Keyed 携带投递 key 的事件
type Keyed interface {
	EventKey() string
}

// Handler 在订阅自己的 goroutine 中处理事件
type Handler func(sub *Subscription, event Keyed)

// Filter 附加过滤条件
type Filter func(event Keyed) bool

// ============================================================================
// Bus 实现
// ============================================================================

// Bus 广播通道
type Bus struct {
	mu     sync.Mutex
	sinks  []*Subscription
	nextID uint64
	closed bool

	slowThreshold int
}

// NewBus 创建新的广播通道
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		slowThreshold: 100,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe 注册订阅
//
// keys 为空表示通配订阅。订阅的投递 goroutine 随即启动。
func (b *Bus) Subscribe(keys []string, h Handler, opts ...SubscriptionOpt) (*Subscription, error) {
	if h == nil {
		return nil, ErrNilHandler
	}

	sub := newSubscription(b, keys, h)
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.nextID++
	sub.id = b.nextID
	b.sinks = append(b.sinks, sub)
	b.mu.Unlock()

	go sub.run()
	return sub, nil
}

// Emit 将事件投递给所有匹配的订阅，返回接收者数量
//
// onAccept 对每个接收者在入队前调用一次，与匹配在同一临界区内完成，
// 因此接收者不可能在被计数之前处理完该事件。
func (b *Bus) Emit(event Keyed, onAccept func(*Subscription)) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	key := event.EventKey()
	accepted := 0
	for _, sub := range b.sinks {
		if !sub.Matches(key) {
			continue
		}
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		if onAccept != nil {
			onAccept(sub)
		}
		if depth := sub.push(event); b.slowThreshold > 0 && depth%b.slowThreshold == 0 {
			log.Warn("慢消费者检测",
				"subscription", sub.id,
				"depth", depth,
				"key", key)
		}
		accepted++
	}
	return accepted, nil
}

// CloseBound 关闭绑定到 key 的订阅，空 key 关闭全部绑定订阅
//
// 通配订阅不绑定任何具体 key，只在 key 为空时被关闭。
func (b *Bus) CloseBound(key string) int {
	b.mu.Lock()
	var victims []*Subscription
	for _, sub := range b.sinks {
		if !sub.bound {
			continue
		}
		if key == "" || slices.Contains(sub.keys, key) {
			victims = append(victims, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range victims {
		_ = sub.Close()
	}
	return len(victims)
}

// Len 返回当前订阅数量
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sinks)
}

// BoundLen 返回当前绑定订阅数量
func (b *Bus) BoundLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, sub := range b.sinks {
		if sub.bound {
			n++
		}
	}
	return n
}

// Close 关闭总线并取消全部订阅
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.closed = true
	sinks := slices.Clone(b.sinks)
	b.mu.Unlock()

	for _, sub := range sinks {
		_ = sub.Close()
	}
	return nil
}

// removeSub 移除订阅
func (b *Bus) removeSub(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.sinks {
		if s == sub {
			b.sinks = slices.Delete(b.sinks, i, i+1)
			return
		}
	}
}

// MatchKey 判断 key 集合是否接收事件 key，空 key 与空集合均为通配
func MatchKey(keys []string, key string) bool {
	if key == "" || len(keys) == 0 {
		return true
	}
	return slices.Contains(keys, key)
}
