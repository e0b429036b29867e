package quicklistener

import "github.com/dep2p/go-quicklistener/internal/debuglog"

// DebugSink 调试输出目标
type DebugSink = debuglog.Sink

// DebugSinkFunc 函数形式的 DebugSink
type DebugSinkFunc = debuglog.SinkFunc

// EnableDebugMode 开启进程级调试输出
//
// 开启后所有 Bus 把 key 激活、退役、广播与响应写到各自的 DebugSink。
func EnableDebugMode() { debuglog.Enable() }

// DisableDebugMode 关闭进程级调试输出
func DisableDebugMode() { debuglog.Disable() }

// DebugModeEnabled 返回调试输出是否开启
func DebugModeEnabled() bool { return debuglog.Enabled() }
