package quicklistener

import (
	"fmt"
	"runtime/debug"

	"github.com/dep2p/go-quicklistener/internal/core/eventbus"
)

// DataFunc 处理 Data 事件
type DataFunc[T any] func(data T, respond Respond) error

// ErrorFunc 处理 Error 事件
type ErrorFunc func(err error, respond Respond) error

// DoneFunc 处理 Done 事件
type DoneFunc func() error

// StreamErrorFunc 接收监听者自身的投递错误
type StreamErrorFunc func(err error)

// ListenOption 监听者选项
type ListenOption func(*listenSettings)

type listenSettings struct {
	onError       ErrorFunc
	onStreamError StreamErrorFunc
	onDone        DoneFunc
}

// WithOnError 设置 Error 事件回调
//
// 未设置时 Error 事件交给 onStreamError。
func WithOnError(fn ErrorFunc) ListenOption {
	return func(s *listenSettings) { s.onError = fn }
}

// WithOnStreamError 设置投递错误回调
func WithOnStreamError(fn StreamErrorFunc) ListenOption {
	return func(s *listenSettings) { s.onStreamError = fn }
}

// WithOnDone 设置 Done 事件回调
func WithOnDone(fn DoneFunc) ListenOption {
	return func(s *listenSettings) { s.onDone = fn }
}

// ============================================================================
// 监听者
// ============================================================================

type listener[T any] struct {
	h      *Handle[T]
	onData DataFunc[T]
	listenSettings
}

// deliver 在订阅 goroutine 中处理一个事件
//
// 无论回调结果如何，事件处理完毕后都向屏障报告。
func (l *listener[T]) deliver(sub *eventbus.Subscription, raw eventbus.Keyed) {
	evt, ok := raw.(*Event)
	if !ok {
		return
	}
	bus := l.h.bus
	defer bus.barriers.Signal(evt.BroadcastID)

	if evt.Type == EventDone {
		defer l.retire(sub, evt)
	}

	panicked, err := l.invoke(evt)
	bus.metrics.Delivered()
	if err != nil {
		l.fail(evt, panicked, err)
	}
}

// invoke 按事件类型调用回调，panic 转为错误
func (l *listener[T]) invoke(evt *Event) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.h.bus.log.Error("监听者回调 panic",
				"key", evt.Key,
				"broadcast", evt.BroadcastID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			panicked, err = true, fmt.Errorf("%v", r)
		}
	}()

	switch evt.Type {
	case EventError:
		if l.onError == nil {
			if l.onStreamError == nil {
				l.h.bus.log.Debug("Error 事件没有处理函数", "key", evt.Key, "err", evt.Err)
			}
			l.streamError(evt.Err)
			return false, nil
		}
		return false, l.onError(evt.Err, l.responder(evt, true))
	case EventDone:
		if l.onDone == nil {
			return false, nil
		}
		return false, l.onDone()
	default:
		if l.onData == nil {
			return false, nil
		}
		data, _ := evt.Payload.(T)
		return false, l.onData(data, l.responder(evt, false))
	}
}

// responder 构造本次事件的 respond
//
// 响应 key 取事件 key；通配事件到达单 key 监听者时取监听者的 key。
func (l *listener[T]) responder(evt *Event, isError bool) Respond {
	key := evt.Key
	if key == Wildcard && len(l.h.keys) == 1 {
		key = l.h.keys[0]
	}
	return func(value any) {
		l.h.bus.respond(Response{
			Key:         key,
			Value:       value,
			IsError:     isError,
			BroadcastID: evt.BroadcastID,
		})
	}
}

// retire 处理 Done 后取消监听者
//
// 只关闭本监听者的订阅，同一 Handle 上的其他监听者各自处理自己的 Done；
// 通配监听者只在收到通配 Done 时取消。
func (l *listener[T]) retire(sub *eventbus.Subscription, evt *Event) {
	if evt.Key != Wildcard && l.h.IsWildcard() {
		return
	}
	_ = sub.Close()
	l.h.bus.retire(evt.Key)
}

func (l *listener[T]) fail(evt *Event, panicked bool, err error) {
	l.h.bus.metrics.DeliveryFailed()
	derr := &DeliveryError{
		Key:         evt.Key,
		BroadcastID: evt.BroadcastID,
		Type:        evt.Type,
		Panic:       panicked,
		Err:         err,
	}
	if l.onStreamError == nil {
		l.h.bus.log.Debug("监听者回调失败", "err", derr)
		return
	}
	l.streamError(derr)
}

// streamError 调用 onStreamError，它自身的 panic 只记录日志
func (l *listener[T]) streamError(err error) {
	if l.onStreamError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.h.bus.log.Error("onStreamError panic", "panic", fmt.Sprint(r))
		}
	}()
	l.onStreamError(err)
}
