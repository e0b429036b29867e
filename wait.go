package quicklistener

import (
	"context"
	"slices"
	"time"

	"github.com/dep2p/go-quicklistener/internal/core/eventbus"
)

const (
	opWaitForNewData  = "wait_for_new_data"
	opWaitForNewEvent = "wait_for_new_event"
	opWaitForResponse = "wait_for_response"
)

// WaitOption 等待选项
type WaitOption func(*waitSettings)

type waitSettings struct {
	timeout time.Duration
	types   []EventType
}

// WithTimeout 设置超时，0 表示只受 ctx 限制
//
// 未设置时使用配置中的 Delivery.DefaultWaitTimeout。
func WithTimeout(d time.Duration) WaitOption {
	return func(s *waitSettings) { s.timeout = d }
}

// WithTypes 只接受给定类型的事件，只对 WaitForNewEvent 生效
func WithTypes(types ...EventType) WaitOption {
	return func(s *waitSettings) { s.types = types }
}

func (s *waitSettings) accepts(t EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

func (h *Handle[T]) waitSettings(opts []WaitOption) waitSettings {
	s := waitSettings{timeout: h.bus.cfg.Delivery.DefaultWaitTimeout.Duration()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// ============================================================================
// 等待操作
// ============================================================================

// WaitForNewData 等待 h 的 key 上下一个 Data 事件
//
// 调用之前的事件不会被看到。超时返回 *TimeoutError，Bus 关闭返回 ErrClosed。
func (h *Handle[T]) WaitForNewData(ctx context.Context, opts ...WaitOption) (*Event, error) {
	opts = append(slices.Clip(opts), WithTypes(EventData))
	return h.waitForEvent(ctx, opWaitForNewData, opts)
}

// WaitForNewEvent 等待 h 的 key 上下一个任意类型的事件
//
// 可用 WithTypes 限定事件类型。
func (h *Handle[T]) WaitForNewEvent(ctx context.Context, opts ...WaitOption) (*Event, error) {
	return h.waitForEvent(ctx, opWaitForNewEvent, opts)
}

// WaitForResponse 等待 h 的 key 上下一个响应
//
// 这些 key 上最近一次广播的响应如果已经发出且尚未被取走，直接返回该响应。
func (h *Handle[T]) WaitForResponse(ctx context.Context, opts ...WaitOption) (Response, error) {
	s := h.waitSettings(opts)

	got := make(chan Response, 1)
	sub, err := h.bus.responses.Subscribe(h.keys, func(_ *eventbus.Subscription, raw eventbus.Keyed) {
		if r, ok := raw.(Response); ok {
			select {
			case got <- r:
			default:
			}
		}
	})
	if err != nil {
		return Response{}, err
	}
	defer sub.Close()

	if r, ok := h.bus.replies.take(h.keys); ok {
		return r, nil
	}

	timeout, stop := h.bus.timer(s.timeout)
	defer stop()

	select {
	case r := <-got:
		h.bus.replies.consume(r.BroadcastID)
		return r, nil
	case <-sub.Done():
		select {
		case r := <-got:
			h.bus.replies.consume(r.BroadcastID)
			return r, nil
		default:
		}
		return Response{}, ErrClosed
	case <-timeout:
		return Response{}, h.timedOut(opWaitForResponse, s.timeout)
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// waitForEvent 注册一次性订阅，等到第一个满足条件的事件
//
// 一次性订阅与监听者一样计入屏障，收到事件后立即报告。
func (h *Handle[T]) waitForEvent(ctx context.Context, op string, opts []WaitOption) (*Event, error) {
	s := h.waitSettings(opts)

	got := make(chan *Event, 1)
	sub, err := h.bus.events.Subscribe(h.keys,
		func(_ *eventbus.Subscription, raw eventbus.Keyed) {
			evt := raw.(*Event)
			defer h.bus.barriers.Signal(evt.BroadcastID)
			select {
			case got <- evt:
			default:
			}
		},
		eventbus.WithFilter(func(raw eventbus.Keyed) bool {
			evt, ok := raw.(*Event)
			return ok && s.accepts(evt.Type)
		}),
		eventbus.OnDiscard(h.bus.release),
	)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	timeout, stop := h.bus.timer(s.timeout)
	defer stop()

	select {
	case evt := <-got:
		return evt, nil
	case <-sub.Done():
		select {
		case evt := <-got:
			return evt, nil
		default:
		}
		return nil, ErrClosed
	case <-timeout:
		return nil, h.timedOut(op, s.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle[T]) timedOut(op string, after time.Duration) error {
	h.bus.metrics.TimedOut(op)
	h.bus.debug.Printf("handle %d: %s timed out after %s", h.id, op, after)
	return &TimeoutError{Op: op, After: after}
}
