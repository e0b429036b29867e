package eventbus

import "errors"

var (
	// ErrClosed 事件总线已关闭
	ErrClosed = errors.New("eventbus closed")

	// ErrNilHandler Handler 为 nil
	ErrNilHandler = errors.New("eventbus: nil handler")
)
