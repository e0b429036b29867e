// Package barrier 实现广播完成屏障
//
// 每次广播对应一个 Barrier：
//   - Receive: 匹配的监听者收到事件时计数 +1（在投递临界区内调用）
//   - Signal: 监听者处理完毕（无论成功、失败或被取消）时计数 -1
//   - Seal: 推送调用返回后标记已发送
//
// 当已发送且计数归零时，Barrier 完成：关闭完成信号并从表中移除。
package barrier

import (
	"context"
	"sync"

	"github.com/dep2p/go-quicklistener/internal/util/logger"
)

var log = logger.Logger("core/barrier")

// Table 广播屏障表
type Table struct {
	mu       sync.Mutex
	barriers map[uint64]*Barrier
}

// NewTable 创建屏障表
func NewTable() *Table {
	return &Table{
		barriers: make(map[uint64]*Barrier),
	}
}

// Barrier 单次广播的完成屏障
type Barrier struct {
	id    uint64
	table *Table

	// 以下字段由 table.mu 保护
	remaining int
	sent      bool
	completed bool

	done chan struct{}
}

// Open 为广播创建屏障并登记到表中
func (t *Table) Open(id uint64) *Barrier {
	b := &Barrier{
		id:    id,
		table: t,
		done:  make(chan struct{}),
	}

	t.mu.Lock()
	t.barriers[id] = b
	t.mu.Unlock()
	return b
}

// Signal 报告一个监听者处理完毕
//
// 屏障已完成或不存在时返回 false。
func (t *Table) Signal(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.barriers[id]
	if !ok {
		return false
	}
	if b.remaining == 0 {
		log.Warn("屏障计数下溢", "broadcast", id)
		return false
	}
	b.remaining--
	t.tryCompleteLocked(b)
	return true
}

// Len 返回未完成的屏障数量
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.barriers)
}

// tryCompleteLocked 已发送且计数归零时完成屏障
func (t *Table) tryCompleteLocked(b *Barrier) {
	if b.completed || !b.sent || b.remaining > 0 {
		return
	}
	b.completed = true
	delete(t.barriers, b.id)
	close(b.done)
}

// ID 返回广播编号
func (b *Barrier) ID() uint64 { return b.id }

// Receive 报告一个监听者收到事件
func (b *Barrier) Receive() {
	b.table.mu.Lock()
	defer b.table.mu.Unlock()
	b.remaining++
}

// Seal 标记推送已完成，并尝试完成屏障
func (b *Barrier) Seal() {
	b.table.mu.Lock()
	defer b.table.mu.Unlock()
	b.sent = true
	b.table.tryCompleteLocked(b)
}

// Remaining 返回尚未处理完毕的监听者数量
func (b *Barrier) Remaining() int {
	b.table.mu.Lock()
	defer b.table.mu.Unlock()
	return b.remaining
}

// Done 屏障完成时关闭
func (b *Barrier) Done() <-chan struct{} {
	return b.done
}

// Wait 等待屏障完成或 ctx 结束
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
