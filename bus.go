package quicklistener

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dep2p/go-quicklistener/config"
	"github.com/dep2p/go-quicklistener/internal/core/barrier"
	"github.com/dep2p/go-quicklistener/internal/core/eventbus"
	"github.com/dep2p/go-quicklistener/internal/core/keyset"
	"github.com/dep2p/go-quicklistener/internal/core/metrics"
	"github.com/dep2p/go-quicklistener/internal/debuglog"
	"github.com/dep2p/go-quicklistener/internal/util/logger"
)

// ============================================================================
// Bus
// ============================================================================

// Bus 进程内共享的监听上下文
//
// 持有事件通道、响应通道、屏障表与活跃 key 集合。
// 同一个 Bus 上构造的 Handle 互相可见，不同 Bus 之间完全隔离。
type Bus struct {
	id       string
	cfg      *config.Config
	clock    clock.Clock
	log      *slog.Logger
	debug    *debuglog.Recorder
	classify Classifier

	events    *eventbus.Bus
	responses *eventbus.Bus
	replies   *replyLog
	barriers  *barrier.Table
	keys      *keyset.Set
	metrics   *metrics.Metrics

	ndjson io.Closer

	nextNode      atomic.Uint64
	nextBroadcast atomic.Uint64
	closed        atomic.Bool
}

// Stats Bus 的运行状态快照
type Stats struct {
	ActiveKeys      int
	Listeners       int
	Waiters         int
	PendingBarriers int
	Broadcasts      uint64
}

// New 创建 Bus
func New(opts ...Option) (*Bus, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	id := uuid.NewString()
	b := &Bus{
		id:       id,
		cfg:      o.cfg,
		clock:    o.clock,
		classify: o.classify,
		barriers: barrier.NewTable(),
		keys:     keyset.New(),
	}

	b.log = o.log
	if b.log == nil {
		b.log = logger.Logger("quicklistener")
	}
	b.log = b.log.With("bus", id)

	threshold := eventbus.SlowConsumerThreshold(o.cfg.Delivery.SlowConsumerThreshold)
	b.events = eventbus.NewBus(threshold)
	b.responses = eventbus.NewBus(threshold)

	replies, err := newReplyLog(o.cfg.Response.Retention)
	if err != nil {
		return nil, err
	}
	b.replies = replies

	sink := o.sink
	if sink == nil && o.cfg.Debug.NDJSONPath != "" {
		f, err := os.OpenFile(o.cfg.Debug.NDJSONPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open debug log: %w", err)
		}
		b.ndjson = f
		sink = debuglog.NewNDJSONSink(f, id)
	}
	if sink == nil {
		sink = debuglog.LoggerSink(b.log)
	}
	b.debug = debuglog.NewRecorder(sink, o.clock)
	if o.cfg.Debug.Enable {
		debuglog.Enable()
	}

	b.metrics, err = metrics.New(o.reg, id, metrics.Gauges{
		ActiveKeys:      func() float64 { return float64(b.keys.Len()) },
		Listeners:       func() float64 { return float64(b.events.BoundLen()) },
		PendingBarriers: func() float64 { return float64(b.barriers.Len()) },
	})
	if err != nil {
		if b.ndjson != nil {
			err = multierr.Append(err, b.ndjson.Close())
		}
		return nil, err
	}

	b.log.Debug("Bus 已创建")
	return b, nil
}

// ID 返回 Bus 的唯一标识
func (b *Bus) ID() string { return b.id }

// ListAllActiveKeys 返回活跃 key 的快照，按首次激活顺序
//
// 返回的切片由调用方持有，之后的变化不会反映到其中。
func (b *Bus) ListAllActiveKeys() []string {
	return b.keys.List()
}

// Stats 返回运行状态快照
func (b *Bus) Stats() Stats {
	bound := b.events.BoundLen()
	return Stats{
		ActiveKeys:      b.keys.Len(),
		Listeners:       bound,
		Waiters:         b.events.Len() - bound + b.responses.Len(),
		PendingBarriers: b.barriers.Len(),
		Broadcasts:      b.nextBroadcast.Load(),
	}
}

// Close 关闭 Bus
//
// 所有订阅被取消，排队未处理的事件被丢弃，正在执行的回调会执行完毕。
// 之后的广播返回 ErrClosed。重复关闭返回 ErrClosed。
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	err := multierr.Combine(
		b.events.Close(),
		b.responses.Close(),
		b.metrics.Unregister(),
	)
	if b.ndjson != nil {
		err = multierr.Append(err, b.ndjson.Close())
	}

	b.log.Debug("Bus 已关闭")
	return err
}

// ============================================================================
// 内部操作
// ============================================================================

// activate 将 key 加入活跃集合
func (b *Bus) activate(keys []string) {
	for _, k := range keys {
		if b.keys.Add(k) {
			b.debug.Printf("key %q activated", k)
		}
	}
}

// retire 将 key 移出活跃集合，通配 key 清空整个集合
func (b *Bus) retire(key string) {
	if key == Wildcard {
		if n := b.keys.Clear(); n > 0 {
			b.debug.Printf("all %d keys retired", n)
		}
		return
	}
	if b.keys.Remove(key) {
		b.debug.Printf("key %q retired", key)
	}
}

// sweep 退役 key 并取消绑定到它的监听者
func (b *Bus) sweep(key string) {
	b.retire(key)
	b.replies.forget(key)
	if n := b.events.CloseBound(key); n > 0 {
		b.debug.Printf("key %q: %d listeners cancelled", key, n)
	}
}

// broadcast 向 key 推送一次广播，返回其完成屏障
//
// 屏障在返回前已封口，调用方只需等待。
func (b *Bus) broadcast(key string, value any) (*barrier.Barrier, error) {
	id := b.nextBroadcast.Add(1)
	bar := b.barriers.Open(id)
	defer bar.Seal()

	evt, cerr := newEvent(value, b.classify)
	if cerr != nil {
		b.log.Warn("广播值分类失败，回退为 Error 事件",
			"key", key,
			"broadcast", id,
			"err", cerr)
		evt = &Event{Type: EventError, Err: cerr}
	}
	evt.Key = key
	evt.BroadcastID = id
	b.replies.sent(key, id)

	n, err := b.events.Emit(evt, func(*eventbus.Subscription) { bar.Receive() })
	if err != nil {
		if cerr != nil {
			return bar, &ClassificationFallbackError{Value: value, Err: multierr.Combine(cerr, err)}
		}
		return bar, err
	}

	b.metrics.Broadcast(evt.Type.String())
	b.debug.Printf("broadcast %d key=%q type=%s receivers=%d", id, key, evt.Type, n)
	return bar, nil
}

// release 被丢弃的事件仍需要向屏障报告
func (b *Bus) release(raw eventbus.Keyed) {
	if evt, ok := raw.(*Event); ok {
		b.barriers.Signal(evt.BroadcastID)
	}
}

// respond 记录响应并推送到响应通道
func (b *Bus) respond(r Response) {
	b.replies.add(r)
	if _, err := b.responses.Emit(r, nil); err != nil {
		b.log.Debug("响应通道已关闭，丢弃响应", "key", r.Key, "broadcast", r.BroadcastID)
		return
	}
	b.metrics.Responded()
	b.debug.Printf("response to broadcast %d key=%q error=%t", r.BroadcastID, r.Key, r.IsError)
}

// timer d 为正时返回超时通道，否则返回永不触发的 nil 通道
func (b *Bus) timer(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := b.clock.Timer(d)
	return t.C, func() { t.Stop() }
}
