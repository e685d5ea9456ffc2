package crawlers

import (
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/mem"
)

func newTestMonitor(available uint64, cores int, memErr error) *ResourceMonitor {
	rm := NewResourceMonitor(ResourceMonitorConfig{
		SafetyReserveMemory: 100 * 1024 * 1024,
		SafetyThreshold:     100 * 1024 * 1024,
		MaxWorkersLimit:     16,
		WorkerMemoryUsage:   50 * 1024 * 1024,
	})
	rm.virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		if memErr != nil {
			return nil, memErr
		}
		return &mem.VirtualMemoryStat{Total: available * 2, Available: available}, nil
	}
	rm.cpuCount = func() (int, error) { return cores, nil }
	return rm
}

func TestResourceMonitor_CalculateMaxWorkers(t *testing.T) {
	const mb = 1024 * 1024

	tests := []struct {
		name      string
		available uint64
		cores     int
		memErr    error
		requested int
		expected  int
	}{
		{"资源充足时使用请求值", 8192 * mb, 8, nil, 4, 4},
		{"受绝对上限限制", 8192 * mb, 8, nil, 64, 16},
		{"受CPU限制", 8192 * mb, 1, nil, 10, 4},
		{"受内存限制", 400 * mb, 8, nil, 10, 4},
		{"内存紧张至少保留1个", 150 * mb, 8, nil, 10, 1},
		{"读取内存失败时忽略内存限制", 0, 8, errors.New("boom"), 6, 6},
		{"请求值小于1时按1处理", 8192 * mb, 8, nil, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := newTestMonitor(tt.available, tt.cores, tt.memErr)
			if got := rm.CalculateMaxWorkers(tt.requested); got != tt.expected {
				t.Errorf("CalculateMaxWorkers(%d) = %d, 期望 %d", tt.requested, got, tt.expected)
			}
		})
	}
}

func TestResourceMonitor_MemoryPressure(t *testing.T) {
	const mb = 1024 * 1024

	tests := []struct {
		available uint64
		expected  string
	}{
		{2048 * mb, "normal"},
		{550 * mb, "warning"},
		{350 * mb, "critical"},
		{200 * mb, "emergency"},
	}
	for _, tt := range tests {
		rm := newTestMonitor(tt.available, 4, nil)
		if got := rm.GetMemoryStatus().MemoryPressure; got != tt.expected {
			t.Errorf("可用 %dMB: 压力等级 %s, 期望 %s", tt.available/mb, got, tt.expected)
		}
	}
}
