package crawlers

import (
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源检查
// 职责: 按可用内存和CPU核数给页面worker数量设上限
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 读取系统内存的函数,测试中可替换
	virtualMemory func() (*mem.VirtualMemoryStat, error)

	// 读取逻辑CPU数的函数,测试中可替换
	cpuCount func() (int, error)
}

// ResourceMonitorConfig 资源检查配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	SafetyThreshold     int64 // 安全阈值(字节)
	MaxWorkersLimit     int   // 绝对最大worker数
	WorkerMemoryUsage   int64 // 单个worker平均内存消耗(字节)
}

// MemoryStatus 内存状态信息
type MemoryStatus struct {
	TotalMemory     uint64 // 系统总内存(字节)
	AvailableMemory int64  // 扣除安全保留后的可用内存(字节)
	MemoryPressure  string // 内存压力等级: normal, warning, critical, emergency
}

// NewResourceMonitor 创建资源检查器
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.WorkerMemoryUsage <= 0 {
		config.WorkerMemoryUsage = 50 * 1024 * 1024 // 50MB
	}
	if config.MaxWorkersLimit <= 0 {
		config.MaxWorkersLimit = 64
	}
	return &ResourceMonitor{
		config:        config,
		virtualMemory: mem.VirtualMemory,
		cpuCount: func() (int, error) {
			return cpu.Counts(true)
		},
	}
}

// GetMemoryStatus 获取当前内存状态
func (rm *ResourceMonitor) GetMemoryStatus() MemoryStatus {
	vm, err := rm.virtualMemory()
	if err != nil || vm == nil {
		log.Warn().Err(err).Msg("获取系统内存失败,按内存充足处理")
		return MemoryStatus{AvailableMemory: -1, MemoryPressure: "unknown"}
	}

	available := int64(vm.Available) - rm.config.SafetyReserveMemory
	status := MemoryStatus{TotalMemory: vm.Total, AvailableMemory: available}

	switch mb := available / (1024 * 1024); {
	case mb < 200:
		status.MemoryPressure = "emergency"
	case mb < 300:
		status.MemoryPressure = "critical"
	case mb < 500:
		status.MemoryPressure = "warning"
	default:
		status.MemoryPressure = "normal"
	}
	return status
}

// CalculateMaxWorkers 计算允许的页面worker上限
// 取 requested、内存余量/单worker内存、CPU核数×4、绝对上限 中的最小值,至少为1
func (rm *ResourceMonitor) CalculateMaxWorkers(requested int) int {
	result := requested
	if result < 1 {
		result = 1
	}

	status := rm.GetMemoryStatus()
	if status.MemoryPressure != "unknown" {
		byMemory := 1
		if surplus := status.AvailableMemory - rm.config.SafetyThreshold; surplus > 0 {
			byMemory = int(surplus / rm.config.WorkerMemoryUsage)
		}
		if byMemory < result {
			log.Warn().Str("pressure", status.MemoryPressure).
				Msgf("可用内存不足(当前%dMB),worker数从%d降至%d", status.AvailableMemory/(1024*1024), result, byMemory)
			result = byMemory
		}
	}

	// 网络IO为主,每核允许4个worker
	cores, err := rm.cpuCount()
	if err != nil || cores < 1 {
		cores = runtime.NumCPU()
	}
	if byCPU := cores * 4; byCPU < result {
		result = byCPU
	}

	if rm.config.MaxWorkersLimit < result {
		result = rm.config.MaxWorkersLimit
	}
	if result < 1 {
		result = 1
	}
	return result
}
