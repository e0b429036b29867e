package quicklistener

import (
	"errors"
	"fmt"
	"time"

	"github.com/dep2p/go-quicklistener/internal/core/eventbus"
)

// 公共错误定义
var (
	// ErrClosed Bus 已关闭
	ErrClosed = eventbus.ErrClosed

	// ErrTimeout WaitFor* 超时，TimeoutError 满足 errors.Is(err, ErrTimeout)
	ErrTimeout = errors.New("quicklistener: wait timed out")

	// ErrNilBus 构造 Handle 时 Bus 为 nil
	ErrNilBus = errors.New("quicklistener: nil bus")
)

// KeyTypeError 构造 Handle 时 key 的动态类型不受支持
type KeyTypeError struct {
	Expected string
	Received string
}

func (e *KeyTypeError) Error() string {
	return fmt.Sprintf("quicklistener: invalid key type: expected %s, received %s", e.Expected, e.Received)
}

// TimeoutError WaitFor* 在截止时间前没有等到结果
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("quicklistener: %s timed out after %s", e.Op, e.After)
}

// Is 使 errors.Is(err, ErrTimeout) 成立
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// DeliveryError 监听者回调返回错误或 panic
//
// 只会交给该监听者的 onStreamError，不会传播给广播方。
type DeliveryError struct {
	Key         string
	BroadcastID uint64
	Type        EventType
	Panic       bool
	Err         error
}

func (e *DeliveryError) Error() string {
	kind := "failed"
	if e.Panic {
		kind = "panicked"
	}
	return fmt.Sprintf("quicklistener: %s callback %s (key=%q broadcast=%d): %v", e.Type, kind, e.Key, e.BroadcastID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ClassificationError 分类器无法判定广播值的事件类型
//
// 广播仍以 Error 事件的形式送出，事件的 Err 即为本错误。
type ClassificationError struct {
	Value any
	Err   error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("quicklistener: classify %T: %v", e.Value, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// ClassificationFallbackError 分类失败且回退的 Error 事件也无法推送
//
// 这是唯一会传播给广播方的投递错误。
type ClassificationFallbackError struct {
	Value any
	Err   error
}

func (e *ClassificationFallbackError) Error() string {
	return fmt.Sprintf("quicklistener: broadcast %T: classification fallback failed: %v", e.Value, e.Err)
}

func (e *ClassificationFallbackError) Unwrap() error { return e.Err }
