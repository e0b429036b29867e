// Package keyset 维护活跃 key 集合
//
// 集合保留插入顺序；移除后重新加入的 key 排在末尾。
package keyset

import (
	"slices"
	"sync"
)

// Set 活跃 key 集合，并发安全
type Set struct {
	mu    sync.RWMutex
	index map[string]int
	order []string
}

// New 创建空集合
func New() *Set {
	return &Set{
		index: make(map[string]int),
	}
}

// Add 加入 key，已存在时返回 false
func (s *Set) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = len(s.order)
	s.order = append(s.order, key)
	return true
}

// Remove 移除 key，不存在时返回 false
func (s *Set) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[key]
	if !ok {
		return false
	}
	delete(s.index, key)
	s.order = slices.Delete(s.order, i, i+1)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j]] = j
	}
	return true
}

// Clear 清空集合，返回移除的数量
func (s *Set) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.order)
	s.index = make(map[string]int)
	s.order = nil
	return n
}

// Contains 判断 key 是否活跃
func (s *Set) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[key]
	return ok
}

// List 返回按插入顺序排列的快照
func (s *Set) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Len 返回活跃 key 数量
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
