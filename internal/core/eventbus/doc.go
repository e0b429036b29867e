// Package eventbus 实现进程内按 key 过滤的广播通道
//
// 每个推送到总线的事件都会按推送顺序独立投递给推送时刻已注册、且 key 匹配的
// 每个订阅；推送之后注册的订阅看不到该事件。
//
// 特性：
//   - 推送不阻塞：每个订阅拥有无界待处理队列和独立的投递 goroutine
//   - 全局有序：Emit 在总线锁内完成匹配与入队，所有订阅看到相同的相对顺序
//   - 故障隔离：某个订阅的 Handler panic 不影响其他订阅
//   - 接收回调：Emit 的 onAccept 在入队前于同一临界区内调用，用于计数
//
// # 快速开始
//
//	bus := eventbus.NewBus()
//
//	sub, _ := bus.Subscribe([]string{"orders"}, func(sub *eventbus.Subscription, evt eventbus.Keyed) {
//	    // 处理事件
//	})
//	defer sub.Close()
//
//	bus.Emit(myEvent, nil)
//
// # key 匹配
//
// 空 key 为通配：事件 key 为空、或订阅没有 key、或订阅 key 集合包含事件 key 时匹配。
//
// # 取消
//
// Close 只阻止之后的投递：正在执行的 Handler 会执行完毕，已入队但尚未开始的
// 事件交给 OnDiscard 回调，不再调用 Handler。
package eventbus
