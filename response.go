package quicklistener

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-quicklistener/internal/core/eventbus"
)

// Response 监听者通过 respond 发回的值
type Response struct {
	// Key 响应所属的 key，通配表示对所有等待者可见
	Key string
	// Value 响应值
	Value any
	// IsError 来自 onError 回调时为 true
	IsError bool
	// BroadcastID 被响应的广播编号
	BroadcastID uint64
}

// EventKey 实现 eventbus.Keyed
func (r Response) EventKey() string { return r.Key }

// Respond 回调中用于发回响应的函数，可以调用任意次
type Respond func(value any)

// ============================================================================
// 回放日志
// ============================================================================

// replyLog 按广播编号保留最近的响应
//
// 监听者在 BroadcastAndWait 返回之前就已经响应时，之后的 WaitForResponse
// 从这里取回结果。每个 key 只回放最近一次广播的响应，取走后不再回放。
type replyLog struct {
	mu     sync.Mutex
	cache  *lru.Cache[uint64, []Response]
	latest map[string]uint64 // key 上最近一次广播中尚未被取走响应的编号
}

func newReplyLog(size int) (*replyLog, error) {
	cache, err := lru.New[uint64, []Response](size)
	if err != nil {
		return nil, fmt.Errorf("create reply log: %w", err)
	}
	return &replyLog{
		cache:  cache,
		latest: make(map[string]uint64),
	}, nil
}

// sent 记录 key 上最近一次广播
func (l *replyLog) sent(key string, id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latest[key] = id
}

// add 追加一条响应
func (l *replyLog) add(r Response) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rs, _ := l.cache.Get(r.BroadcastID)
	l.cache.Add(r.BroadcastID, append(slices.Clip(rs), r))
}

// take 取走 keys 上最近一次广播的第一条匹配响应
//
// keys 为空时考虑所有 key。较新的广播优先。
func (l *replyLog) take(keys []string) (Response, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var ids []uint64
	if len(keys) == 0 {
		for _, id := range l.latest {
			ids = append(ids, id)
		}
	} else {
		for _, k := range append([]string{Wildcard}, keys...) {
			if id, ok := l.latest[k]; ok {
				ids = append(ids, id)
			}
		}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
	slices.Reverse(ids)

	for _, id := range ids {
		rs, ok := l.cache.Peek(id)
		if !ok {
			continue
		}
		for _, r := range rs {
			if eventbus.MatchKey(keys, r.Key) {
				l.consumeLocked(id)
				return r, true
			}
		}
	}
	return Response{}, false
}

// consume 标记广播的响应已被取走
func (l *replyLog) consume(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consumeLocked(id)
}

func (l *replyLog) consumeLocked(id uint64) {
	maps.DeleteFunc(l.latest, func(_ string, v uint64) bool { return v == id })
}

// forget 退役 key 时丢弃它的回放记录，通配 key 丢弃全部
func (l *replyLog) forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if key == Wildcard {
		clear(l.latest)
		return
	}
	delete(l.latest, key)
}

// size 返回保留的广播数量
func (l *replyLog) size() int {
	return l.cache.Len()
}
