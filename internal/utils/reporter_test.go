package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/SiteMirror/internal/models"
)

func TestReporter_GenerateReport(t *testing.T) {
	tempDir := t.TempDir()
	reporter := NewReporter(tempDir)

	report := &models.MirrorReport{
		RunID:     "run-1",
		SeedURL:   "http://127.0.0.1:8080/",
		Domain:    "127.0.0.1:8080",
		OutputDir: "out",
		StartTime: time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC),
		Stats:     models.TaskStats{PagesMirrored: 2, ResourcesFailed: 1},
		FailedItems: []models.FailedItem{
			{URL: "http://127.0.0.1:8080/x.png", Kind: "resource", ErrorType: "http_status", ErrorMsg: "HTTP 404"},
		},
	}

	path, err := reporter.GenerateReport(report)
	if err != nil {
		t.Fatalf("生成报告失败: %v", err)
	}

	if filepath.Dir(path) != filepath.Join(tempDir, "reports") {
		t.Errorf("报告目录错误: %s", path)
	}
	if filepath.Base(path) != "mirror_127.0.0.1_8080_20261019_100000.json" {
		t.Errorf("报告文件名错误: %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取报告失败: %v", err)
	}
	var loaded models.MirrorReport
	if err := loaded.FromJSON(data); err != nil {
		t.Fatalf("解析报告失败: %v", err)
	}
	if loaded.RunID != "run-1" || len(loaded.FailedItems) != 1 {
		t.Errorf("报告内容错误: %+v", loaded)
	}

	failedPath := filepath.Join(tempDir, "reports", "failed_127.0.0.1_8080_20261019_100000.json")
	if _, err := os.Stat(failedPath); err != nil {
		t.Errorf("失败列表未生成: %v", err)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size     int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1048576, "1.00 MB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.size); got != tt.expected {
			t.Errorf("FormatSize(%d) = %q, 期望 %q", tt.size, got, tt.expected)
		}
	}
}
