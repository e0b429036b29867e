// Package metrics 提供事件总线的 Prometheus 指标
//
// 每个 Bus 创建一组独立的采集器，通过常量标签 bus 区分实例，
// 因此多个 Bus 可以注册到同一个 Registerer。
//
// 指标列表：
//   - quicklistener_broadcasts_total{type}: 按事件类型统计的广播次数
//   - quicklistener_deliveries_total: 监听者回调执行次数
//   - quicklistener_delivery_errors_total: 回调返回错误或 panic 的次数
//   - quicklistener_responses_total: respond 调用次数
//   - quicklistener_wait_timeouts_total{op}: WaitFor* 超时次数
//   - quicklistener_active_keys / listeners / pending_barriers: 当前状态
package metrics
