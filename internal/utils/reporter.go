package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/SiteMirror/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 报告生成器
// 报告写入日志目录下的reports子目录,不污染镜像树
type Reporter struct {
	reportsDir string
}

// NewReporter 创建报告生成器
func NewReporter(logDir string) *Reporter {
	return &Reporter{
		reportsDir: filepath.Join(logDir, "reports"),
	}
}

// GenerateReport 生成镜像报告,返回主报告路径
func (r *Reporter) GenerateReport(report *models.MirrorReport) (string, error) {
	if err := os.MkdirAll(r.reportsDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	if report.FailedItems == nil {
		report.FailedItems = []models.FailedItem{}
	}

	stamp := report.StartTime.Format("20060102_150405")
	if report.StartTime.IsZero() {
		stamp = time.Now().Format("20060102_150405")
	}
	name := fmt.Sprintf("mirror_%s_%s.json", sanitizeFileName(report.Domain), stamp)

	// 保存主报告
	if err := r.saveJSONReport(name, report); err != nil {
		return "", err
	}

	// 失败列表单独保存,便于重新抓取
	if len(report.FailedItems) > 0 {
		failedName := fmt.Sprintf("failed_%s_%s.json", sanitizeFileName(report.Domain), stamp)
		if err := r.saveJSONReport(failedName, report.FailedItems); err != nil {
			return "", err
		}
	}

	path := filepath.Join(r.reportsDir, name)
	Infof("✅ 报告已生成: %s", path)
	return path, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(filename string, data interface{}) error {
	path := filepath.Join(r.reportsDir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// sanitizeFileName 把主机名中的端口分隔符等替换为下划线
func sanitizeFileName(s string) string {
	if s == "" {
		return "unknown"
	}
	out := []rune(s)
	for i, c := range out {
		switch c {
		case ':', '/', '\\', '*', '?', '"', '<', '>', '|':
			out[i] = '_'
		}
	}
	return string(out)
}

// NewBytesProgressBar 创建字节进度条
// total为-1时显示为不确定长度的进度
func NewBytesProgressBar(total int64, description string, out io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// FormatSize 格式化字节数 (B/KB/MB/GB)
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
