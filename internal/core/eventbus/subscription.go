package eventbus

import (
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
)

// ============================================================================
// Subscription 实现
// ============================================================================

// Subscription 订阅
type Subscription struct {
	bus     *Bus
	id      uint64
	keys    []string
	filter  Filter
	bound   bool
	handler Handler
	discard func(Keyed)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Keyed
	closed bool

	closeOnce sync.Once
	finished  chan struct{}
}

func newSubscription(b *Bus, keys []string, h Handler) *Subscription {
	s := &Subscription{
		bus:      b,
		keys:     slices.Clone(keys),
		handler:  h,
		finished: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// ID 返回订阅编号
func (s *Subscription) ID() uint64 { return s.id }

// Keys 返回订阅 key 集合的副本，空表示通配
func (s *Subscription) Keys() []string { return slices.Clone(s.keys) }

// IsBound 返回是否为绑定订阅
func (s *Subscription) IsBound() bool { return s.bound }

// Matches 判断订阅是否接收 key 的事件
func (s *Subscription) Matches(key string) bool {
	return MatchKey(s.keys, key)
}

// Closed 返回订阅是否已取消
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Pending 返回待处理事件数量
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Done 在投递 goroutine 退出后关闭
func (s *Subscription) Done() <-chan struct{} {
	return s.finished
}

// Close 取消订阅
//
// Close 是并发安全的，可以多次调用，也可以在自己的 Handler 中调用。
// 关闭后：
//  1. 从总线移除订阅，之后的 Emit 不再投递
//  2. 正在执行的 Handler 继续执行完毕
//  3. 队列中剩余事件交给 OnDiscard
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.bus.removeSub(s)

		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	return nil
}

// push 入队并唤醒投递 goroutine，返回入队后的队列深度
func (s *Subscription) push(event Keyed) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, event)
	s.cond.Signal()
	return len(s.queue)
}

// next 阻塞直到有事件或订阅关闭
func (s *Subscription) next() (Keyed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil, false
	}

	event := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return event, true
}

// run 投递循环
func (s *Subscription) run() {
	defer close(s.finished)

	for {
		event, ok := s.next()
		if !ok {
			break
		}
		s.deliver(event)
	}

	s.mu.Lock()
	rest := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, event := range rest {
		if s.discard != nil {
			s.discard(event)
		}
	}
}

// deliver 调用 Handler，panic 只影响当前事件
func (s *Subscription) deliver(event Keyed) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("订阅处理函数 panic",
				"subscription", s.id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	s.handler(s, event)
}
