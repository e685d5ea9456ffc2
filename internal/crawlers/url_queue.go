package crawlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/SiteMirror/internal/models"
)

// URLQueue 待镜像页面的工作队列
// 职责: 以发现顺序保存待处理页面,供worker并发Pop.
// 队列为空且没有正在处理的页面时自动结束,所有等待中的Pop返回false.
type URLQueue struct {
	mu sync.Mutex

	// 待处理页面(FIFO)
	items []models.URLItem

	// 已Pop但尚未Done的页面数
	active int

	// 队列是否已结束
	closed bool

	// 状态变化通知: 每次变化关闭旧channel并换新
	wake chan struct{}
}

// NewURLQueue 创建工作队列
func NewURLQueue() *URLQueue {
	return &URLQueue{wake: make(chan struct{})}
}

// Push 添加页面到队列尾部
func (q *URLQueue) Push(item models.URLItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("队列已关闭")
	}
	q.items = append(q.items, item)
	q.notifyLocked()
	return nil
}

// Pop 取出下一个待处理页面,没有时阻塞等待
// 返回false表示队列已结束或ctx已取消; 取消后不再交出新页面
// 每次成功Pop都必须对应一次Done
func (q *URLQueue) Pop(ctx context.Context) (models.URLItem, bool) {
	for {
		if ctx.Err() != nil {
			return models.URLItem{}, false
		}

		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = models.URLItem{}
			q.items = q.items[1:]
			q.active++
			q.mu.Unlock()
			return item, true
		}
		if q.closed || q.active == 0 {
			q.closed = true
			q.notifyLocked()
			q.mu.Unlock()
			return models.URLItem{}, false
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.URLItem{}, false
		case <-wake:
		}
	}
}

// Done 标记一个已Pop的页面处理完成
func (q *URLQueue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active > 0 {
		q.active--
	}
	if q.active == 0 && len(q.items) == 0 {
		q.closed = true
	}
	q.notifyLocked()
}

// PendingCount 返回当前待处理页面数量
func (q *URLQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ActiveCount 返回正在处理的页面数量
func (q *URLQueue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Close 关闭队列,后续Push返回错误,等待中的Pop在队列取空后返回false
func (q *URLQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.notifyLocked()
	}
}

func (q *URLQueue) notifyLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}
