package quicklistener

import (
	"fmt"
	"slices"
)

// Wildcard 通配 key：不限定 key 的 Handle 监听所有事件，广播的事件到达所有监听者
const Wildcard = ""

// parseKey 将构造参数规范化为 key 列表，空列表表示通配
//
// 接受 nil、string、*string、[]string。
func parseKey(key any) ([]string, error) {
	switch k := key.(type) {
	case nil:
		return nil, nil
	case string:
		return normalizeKeys([]string{k}), nil
	case *string:
		if k == nil {
			return nil, nil
		}
		return normalizeKeys([]string{*k}), nil
	case []string:
		return normalizeKeys(k), nil
	default:
		return nil, &KeyTypeError{
			Expected: "nil, string or []string",
			Received: fmt.Sprintf("%T", key),
		}
	}
}

// normalizeKeys 去掉空 key 与重复 key，保持原顺序
func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == Wildcard || slices.Contains(out, k) {
			continue
		}
		out = append(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
