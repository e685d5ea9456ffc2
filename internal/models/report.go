package models

import (
	"encoding/json"
	"time"
)

// MirrorReport 镜像运行报告
// 写入日志目录,不写入镜像树
type MirrorReport struct {
	// 任务信息
	RunID     string `json:"run_id"`
	SeedURL   string `json:"seed_url"`
	Domain    string `json:"domain"`
	OutputDir string `json:"output_dir"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	Stats TaskStats `json:"stats"`

	// 失败列表
	FailedItems []FailedItem `json:"failed_items"`

	// 配置快照
	Config MirrorConfig `json:"config"`
}

// Success 种子页面被镜像即视为成功
func (r *MirrorReport) Success() bool {
	return r.Stats.PagesMirrored > 0
}

// ToJSON 序列化为JSON
func (r *MirrorReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *MirrorReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
