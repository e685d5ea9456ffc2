package crawlers

import "sync"

// VisitedSet 一次镜像运行中已处理页面的集合
// 只增不减; 只暴露原子的检查并插入操作
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisitedSet 创建空的访问集合
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// Visit 原子地检查并插入url
// 返回true表示本次调用完成了插入,调用方应处理该URL; false表示已存在,调用方必须跳过
func (v *VisitedSet) Visit(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[url]; ok {
		return false
	}
	v.seen[url] = struct{}{}
	return true
}

// Len 已访问的URL数量
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
