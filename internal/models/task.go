package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// PageState 页面处理状态
// 状态流转: fetching → parsing → classifying → dispatching → persisting → recursing → done
// 任意阶段的页面抓取失败都会进入 failed
type PageState string

const (
	PageStateFetching    PageState = "fetching"    // 抓取页面
	PageStateParsing     PageState = "parsing"     // 解析HTML
	PageStateClassifying PageState = "classifying" // 引用分类
	PageStateDispatching PageState = "dispatching" // 下载资源/改写链接
	PageStatePersisting  PageState = "persisting"  // 写入index.html
	PageStateRecursing   PageState = "recursing"   // 子页面入队
	PageStateDone        PageState = "done"        // 完成
	PageStateFailed      PageState = "failed"      // 失败
)

// TaskStats 镜像任务统计
type TaskStats struct {
	PagesMirrored       int     `json:"pages_mirrored"`       // 成功写入的页面数
	PagesFailed         int     `json:"pages_failed"`         // 抓取失败的页面数
	PagesSkipped        int     `json:"pages_skipped"`        // 已访问而跳过的页面数
	ResourcesSaved      int     `json:"resources_saved"`      // 保存的资源文件数
	ResourcesFailed     int     `json:"resources_failed"`     // 失败的资源数
	StylesheetResources int     `json:"stylesheet_resources"` // 内联样式中保存的资源数
	FilteredReferences  int     `json:"filtered_references"`  // 被过滤规则丢弃的引用数
	TotalSize           int64   `json:"total_size"`           // 总字节数
	Duration            float64 `json:"duration"`             // 总耗时(秒)
}

// Failures 返回失败项总数
func (s TaskStats) Failures() int {
	return s.PagesFailed + s.ResourcesFailed
}

// MirrorConfig 镜像配置(种子目标)
// 一次镜像运行期间不可变
type MirrorConfig struct {
	SeedURL           string   `json:"seed_url"`           // 种子URL
	RejectTypes       []string `json:"reject_types"`       // 拒绝的扩展名(不含点)
	ExcludeDirs       []string `json:"exclude_dirs"`       // 排除的目录
	ConvertLinks      bool     `json:"convert_links"`      // 是否改写链接用于离线浏览
	OutputDir         string   `json:"output_dir"`         // 镜像根目录
	MaxWorkers        int      `json:"max_workers"`        // 页面并发数 (默认:4)
	IncludeSubdomains bool     `json:"include_subdomains"` // 子域名视为同站
	RequestTimeout    int      `json:"request_timeout"`    // 请求超时(秒) (默认:30)
	MaxBodySizeMB     int      `json:"max_body_size_mb"`   // 单个响应最大大小(MB)
}

// Validate 验证配置
func (c *MirrorConfig) Validate() error {
	if err := ValidateURL(c.SeedURL); err != nil {
		return fmt.Errorf("种子URL无效: %w", err)
	}
	if c.MaxWorkers < 1 || c.MaxWorkers > 64 {
		return fmt.Errorf("并发数必须在1-64之间")
	}
	if c.RequestTimeout < 0 || c.RequestTimeout > 3600 {
		return fmt.Errorf("请求超时必须在0-3600秒之间")
	}
	if c.MaxBodySizeMB < 0 {
		return fmt.Errorf("响应大小上限不能为负数")
	}
	return nil
}

// Domain 返回种子URL的主机名
func (c *MirrorConfig) Domain() string {
	parsed, err := url.Parse(c.SeedURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// ParseList 解析逗号分隔的列表,去除空白和空项
func ParseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	items := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// MirrorTask 一次镜像运行
type MirrorTask struct {
	ID          string       `json:"id"`                     // 运行ID (UUID)
	SeedURL     string       `json:"seed_url"`               // 种子URL
	Domain      string       `json:"domain"`                 // 种子域名
	CreatedAt   time.Time    `json:"created_at"`             // 创建时间
	CompletedAt *time.Time   `json:"completed_at,omitempty"` // 完成时间
	Config      MirrorConfig `json:"config"`                 // 镜像配置
	Stats       TaskStats    `json:"stats"`                  // 统计
}

// NewMirrorTask 创建镜像任务
func NewMirrorTask(config MirrorConfig) (*MirrorTask, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &MirrorTask{
		ID:        newRunID(),
		SeedURL:   config.SeedURL,
		Domain:    config.Domain(),
		CreatedAt: time.Now(),
		Config:    config,
	}, nil
}

// Complete 标记任务完成
func (t *MirrorTask) Complete(stats TaskStats) {
	now := time.Now()
	t.CompletedAt = &now
	t.Stats = stats
}

// ToJSON 序列化为JSON
func (t *MirrorTask) ToJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}
