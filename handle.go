package quicklistener

import (
	"context"
	"slices"
	"sync"

	"github.com/dep2p/go-quicklistener/internal/core/barrier"
	"github.com/dep2p/go-quicklistener/internal/core/eventbus"
)

// ============================================================================
// Handle
// ============================================================================

// Handle 绑定到一组 key 的轻量视图
//
// 构造 Handle 会激活它的 key；通过 Handle 注册的监听者、发出的广播与等待
// 都限定在这组 key 上。没有 key 的 Handle 是通配 Handle。
// T 是 onData 回调期望的负载类型，负载类型不匹配时回调收到零值。
type Handle[T any] struct {
	bus  *Bus
	keys []string
	id   uint64

	mu   sync.Mutex
	subs []*eventbus.Subscription
}

// NewHandle 在 b 上构造 Handle
//
// key 可以是 nil、string、*string 或 []string，空字符串与 nil 表示通配。
// 其他类型返回 *KeyTypeError。
func NewHandle[T any](b *Bus, key any) (*Handle[T], error) {
	if b == nil {
		return nil, ErrNilBus
	}
	keys, err := parseKey(key)
	if err != nil {
		return nil, err
	}

	h := &Handle[T]{
		bus:  b,
		keys: keys,
		id:   b.nextNode.Add(1),
	}
	b.activate(keys)
	return h, nil
}

// For 以单个 key 构造 Handle，b 为 nil 时 panic
func For[T any](b *Bus, key string) *Handle[T] {
	h, err := NewHandle[T](b, key)
	if err != nil {
		panic(err)
	}
	return h
}

// ID 返回 Handle 编号
func (h *Handle[T]) ID() uint64 { return h.id }

// Keys 返回 Handle 的 key，通配 Handle 返回空
func (h *Handle[T]) Keys() []string { return slices.Clone(h.keys) }

// IsWildcard 是否为通配 Handle
func (h *Handle[T]) IsWildcard() bool { return len(h.keys) == 0 }

// Bus 返回所属 Bus
func (h *Handle[T]) Bus() *Bus { return h.bus }

// Listen 注册监听者，返回 h 以便链式调用
//
// 回调在监听者自己的 goroutine 中按广播顺序执行。回调返回的错误或 panic
// 包装为 *DeliveryError 交给 onStreamError，不会影响广播方与其他监听者。
// Bus 已关闭时注册失败，错误交给 onStreamError。
func (h *Handle[T]) Listen(onData DataFunc[T], opts ...ListenOption) *Handle[T] {
	l := &listener[T]{h: h, onData: onData}
	for _, opt := range opts {
		opt(&l.listenSettings)
	}

	sub, err := h.bus.events.Subscribe(h.keys, l.deliver,
		eventbus.Bound(),
		eventbus.OnDiscard(h.bus.release),
	)
	if err != nil {
		h.bus.log.Warn("注册监听者失败", "keys", h.keys, "err", err)
		l.streamError(err)
		return h
	}

	h.mu.Lock()
	h.subs = append(slices.DeleteFunc(h.subs, (*eventbus.Subscription).Closed), sub)
	h.mu.Unlock()

	h.bus.debug.Printf("handle %d: listener %d on %v", h.id, sub.ID(), h.keys)
	return h
}

// Broadcast 推送值，不等待监听者
//
// 多 key 的 Handle 对每个 key 各推送一次，通配 Handle 推送一次通配事件。
// 值的类型决定事件类型：error 为 Error，其他为 Data，可用 AsData、AsError、
// AsDone 强制指定。监听者的错误不会传播到这里。
func (h *Handle[T]) Broadcast(value any) error {
	_, err := h.broadcast(value)
	return err
}

// BroadcastAndWait 推送值并等待所有接收者处理完毕
//
// 没有接收者时立即返回。ctx 结束时返回 ctx.Err()，广播本身不受影响。
func (h *Handle[T]) BroadcastAndWait(ctx context.Context, value any) error {
	barriers, err := h.broadcast(value)
	if err != nil {
		return err
	}
	return waitAll(ctx, barriers)
}

// Done 广播 Done 并等待处理完毕，然后退役 Handle 的 key
//
// 绑定到这些 key 的监听者全部取消；通配 Handle 退役所有 key 并取消所有监听者。
// 通配监听者收到具体 key 的 Done 时只会得到通知，不会被取消。
// ctx 先结束时返回 ctx.Err()，key 在所有接收者处理完 Done 之后于后台退役。
func (h *Handle[T]) Done(ctx context.Context) error {
	barriers, err := h.broadcast(AsDone())
	if err != nil {
		return err
	}
	if err := waitAll(ctx, barriers); err != nil {
		go func() {
			if waitAll(context.Background(), barriers) == nil {
				h.finish()
			}
		}()
		return err
	}
	h.finish()
	return nil
}

// finish 退役 Handle 的 key 并关闭剩余订阅
func (h *Handle[T]) finish() {
	if h.IsWildcard() {
		h.bus.sweep(Wildcard)
	} else {
		for _, k := range h.keys {
			h.bus.sweep(k)
		}
	}
	h.cancel()
}

// Dispose 取消通过 h 注册的所有监听者，key 保持活跃
func (h *Handle[T]) Dispose() error {
	n := h.cancel()
	h.bus.debug.Printf("handle %d: %d listeners disposed", h.id, n)
	return nil
}

// broadcast 对每个目标 key 推送一次
func (h *Handle[T]) broadcast(value any) ([]*barrier.Barrier, error) {
	targets := h.keys
	if len(targets) == 0 {
		targets = []string{Wildcard}
	}

	barriers := make([]*barrier.Barrier, 0, len(targets))
	for _, key := range targets {
		bar, err := h.bus.broadcast(key, value)
		if err != nil {
			return barriers, err
		}
		barriers = append(barriers, bar)
	}
	return barriers, nil
}

func waitAll(ctx context.Context, barriers []*barrier.Barrier) error {
	for _, bar := range barriers {
		if err := bar.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// cancel 关闭 h 的全部订阅，返回关闭数量
func (h *Handle[T]) cancel() int {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()

	n := 0
	for _, sub := range subs {
		if !sub.Closed() {
			n++
		}
		_ = sub.Close()
	}
	return n
}
