package crawlers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RecoveryAshes/SiteMirror/internal/models"
)

func TestVisitedSet_ConcurrentVisit(t *testing.T) {
	visited := NewVisitedSet()

	const goroutines = 64
	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if visited.Visit("http://x.test/") {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Errorf("期望恰好1次插入成功, 实际 %d", wins)
	}
	if visited.Len() != 1 {
		t.Errorf("集合大小错误: %d", visited.Len())
	}
}

func TestVisitedSet_DistinctURLs(t *testing.T) {
	visited := NewVisitedSet()

	var wg sync.WaitGroup
	var wins int32
	for i := 0; i < 100; i++ {
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				if visited.Visit(fmt.Sprintf("http://x.test/p%d/", n)) {
					atomic.AddInt32(&wins, 1)
				}
			}(i)
		}
	}
	wg.Wait()

	if wins != 100 || visited.Len() != 100 {
		t.Errorf("期望100个URL各插入一次, 实际插入 %d, 大小 %d", wins, visited.Len())
	}
}

func TestURLQueue_FIFOAndTermination(t *testing.T) {
	queue := NewURLQueue()
	ctx := context.Background()

	queue.Push(models.URLItem{URL: "a"})
	queue.Push(models.URLItem{URL: "b"})

	item, ok := queue.Pop(ctx)
	if !ok || item.URL != "a" {
		t.Fatalf("期望先取出a, 实际 %v %v", item, ok)
	}

	// 处理a时发现c
	queue.Push(models.URLItem{URL: "c", Depth: 1})
	queue.Done()

	var got []string
	for {
		item, ok := queue.Pop(ctx)
		if !ok {
			break
		}
		got = append(got, item.URL)
		queue.Done()
	}
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("出队顺序错误: %v", got)
	}

	if err := queue.Push(models.URLItem{URL: "d"}); err == nil {
		t.Error("队列结束后Push应返回错误")
	}
}

func TestURLQueue_WaitsForActiveItems(t *testing.T) {
	queue := NewURLQueue()
	ctx := context.Background()
	queue.Push(models.URLItem{URL: "seed"})

	if _, ok := queue.Pop(ctx); !ok {
		t.Fatal("取出种子失败")
	}

	result := make(chan string, 1)
	go func() {
		item, ok := queue.Pop(ctx)
		if !ok {
			result <- "closed"
			return
		}
		result <- item.URL
	}()

	// 种子处理中,第二个worker必须等待而不是结束
	select {
	case r := <-result:
		t.Fatalf("worker过早返回: %s", r)
	case <-time.After(50 * time.Millisecond):
	}

	queue.Push(models.URLItem{URL: "child"})
	queue.Done()

	select {
	case r := <-result:
		if r != "child" {
			t.Errorf("期望取到child, 实际 %s", r)
		}
	case <-time.After(time.Second):
		t.Fatal("等待中的worker未被唤醒")
	}
}

func TestURLQueue_CancelStopsPop(t *testing.T) {
	queue := NewURLQueue()
	queue.Push(models.URLItem{URL: "a"})
	queue.Push(models.URLItem{URL: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	if _, ok := queue.Pop(ctx); !ok {
		t.Fatal("取出a失败")
	}
	cancel()

	if _, ok := queue.Pop(ctx); ok {
		t.Error("取消后不应再交出新页面")
	}
	if queue.PendingCount() != 1 {
		t.Errorf("待处理数量错误: %d", queue.PendingCount())
	}
}
