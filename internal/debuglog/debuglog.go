// Package debuglog 提供调试输出
//
// 调试输出由进程级开关控制：关闭时所有 Recorder 都是空操作。
// Sink 只接收 (时间戳, 消息)，不影响事件投递。
package debuglog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

var enabled atomic.Bool

// Enable 打开进程级调试开关
func Enable() { enabled.Store(true) }

// Disable 关闭进程级调试开关
func Disable() { enabled.Store(false) }

// Enabled 返回调试开关状态
func Enabled() bool { return enabled.Load() }

// Sink 调试输出目标
type Sink interface {
	Debug(ts time.Time, msg string)
}

// SinkFunc 函数形式的 Sink
type SinkFunc func(ts time.Time, msg string)

// Debug 实现 Sink
func (f SinkFunc) Debug(ts time.Time, msg string) { f(ts, msg) }

// LoggerSink 将调试消息以 Info 级别写入 slog Logger
func LoggerSink(l *slog.Logger) Sink {
	return SinkFunc(func(ts time.Time, msg string) {
		l.Info(msg, "at", ts)
	})
}

// ndjsonSink 每条消息写一行 JSON
type ndjsonSink struct {
	mu      sync.Mutex
	w       io.Writer
	session string
}

type ndjsonLine struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// NewNDJSONSink 创建 NDJSON Sink，session 写入每一行的 sessionId 字段
func NewNDJSONSink(w io.Writer, session string) Sink {
	return &ndjsonSink{w: w, session: session}
}

// Debug 实现 Sink，忽略所有写入错误
func (s *ndjsonSink) Debug(ts time.Time, msg string) {
	b, err := json.Marshal(ndjsonLine{
		SessionID: s.session,
		Message:   msg,
		Timestamp: ts.UnixMilli(),
	})
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(append(b, '\n'))
}

// Recorder 绑定 Sink 与时钟
type Recorder struct {
	sink  Sink
	clock clock.Clock
}

// NewRecorder 创建 Recorder
func NewRecorder(sink Sink, clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.New()
	}
	return &Recorder{sink: sink, clock: clk}
}

// Printf 在调试开关打开时格式化并输出消息
func (r *Recorder) Printf(format string, args ...any) {
	if r == nil || r.sink == nil || !enabled.Load() {
		return
	}
	r.sink.Debug(r.clock.Now(), fmt.Sprintf(format, args...))
}
