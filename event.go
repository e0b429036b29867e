package quicklistener

import (
	"errors"
	"fmt"
)

// EventType 事件类型
type EventType int

const (
	// EventData 普通数据
	EventData EventType = iota
	// EventError 错误
	EventError
	// EventDone key 退役通知
	EventDone
)

// String 返回类型字符串
func (t EventType) String() string {
	switch t {
	case EventData:
		return "data"
	case EventError:
		return "error"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event 一次广播推送到事件通道的内容，构造后不可修改
type Event struct {
	Type        EventType
	Payload     any
	Err         error
	Key         string
	BroadcastID uint64
}

// EventKey 实现 eventbus.Keyed
func (e *Event) EventKey() string { return e.Key }

// Override 强制指定事件类型的广播值包装
//
// 用于把错误值当作普通数据广播，或显式发送 Done。
type Override struct {
	typ   EventType
	value any
	err   error
}

// AsData 无论 v 的动态类型如何，都作为 Data 事件广播
func AsData(v any) Override {
	return Override{typ: EventData, value: v}
}

// AsError 作为 Error 事件广播
func AsError(err error) Override {
	return Override{typ: EventError, err: err}
}

// AsDone 作为 Done 事件广播
func AsDone() Override {
	return Override{typ: EventDone}
}

// Type 返回强制的事件类型
func (o Override) Type() EventType { return o.typ }

// Classifier 判定未包装广播值的事件类型，只能返回 EventData 或 EventError
type Classifier func(value any) (EventType, error)

// DefaultClassifier 实现 error 接口的值为 Error，其余为 Data
func DefaultClassifier(value any) (EventType, error) {
	if _, ok := value.(error); ok {
		return EventError, nil
	}
	return EventData, nil
}

var errBadClassification = errors.New("classifier returned a type other than data or error")

// newEvent 将广播值规范化为事件
//
// 分类器返回错误或 panic 时返回 *ClassificationError。
func newEvent(value any, classify Classifier) (evt *Event, err error) {
	if o, ok := value.(Override); ok {
		switch o.typ {
		case EventError:
			return &Event{Type: EventError, Err: o.err}, nil
		case EventDone:
			return &Event{Type: EventDone}, nil
		default:
			return &Event{Type: EventData, Payload: o.value}, nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			evt, err = nil, &ClassificationError{Value: value, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	typ, cerr := classify(value)
	if cerr != nil {
		return nil, &ClassificationError{Value: value, Err: cerr}
	}

	switch typ {
	case EventError:
		e, _ := value.(error)
		if e == nil {
			e = fmt.Errorf("%v", value)
		}
		return &Event{Type: EventError, Err: e}, nil
	case EventData:
		return &Event{Type: EventData, Payload: value}, nil
	default:
		return nil, &ClassificationError{Value: value, Err: errBadClassification}
	}
}
