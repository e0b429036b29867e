package quicklistener

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// newTestBus 创建测试用 Bus，测试结束时关闭
func newTestBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	b, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// testContext 带超时的 ctx，避免测试在屏障上挂死
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	t.Cleanup(cancel)
	return ctx
}

// recorder 线程安全地记录回调收到的值
type recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// onData 返回把数据写入 r 的 DataFunc
func (r *recorder[T]) onData() DataFunc[T] {
	return func(data T, _ Respond) error {
		r.add(data)
		return nil
	}
}
