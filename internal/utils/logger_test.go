package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取日志失败 [%s]: %v", path, err)
	}
	return string(data)
}

func TestInitLogger_Files(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	config := DefaultLogConfig()
	config.LogDir = logDir
	config.Compress = false
	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}
	defer CloseLogger()

	Infof("页面已保存: %s", "/about/")
	Debug("调试信息不应写入")
	Errorf("资源下载失败: %s", "/img/a.png")

	main := readLog(t, filepath.Join(logDir, "sitemirror.log"))
	if !strings.Contains(main, "页面已保存") || !strings.Contains(main, "资源下载失败") {
		t.Errorf("主日志缺少记录: %q", main)
	}
	if strings.Contains(main, "调试信息不应写入") {
		t.Error("info级别下不应记录debug日志")
	}

	errLog := readLog(t, filepath.Join(logDir, "sitemirror_error.log"))
	if strings.Contains(errLog, "页面已保存") {
		t.Error("错误日志不应包含info记录")
	}
	if !strings.Contains(errLog, "资源下载失败") {
		t.Errorf("错误日志缺少error记录: %q", errLog)
	}
}

func TestInitLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"warn", "warn", zerolog.WarnLevel},
		{"空值默认info", "", zerolog.InfoLevel},
		{"非法值默认info", "verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultLogConfig()
			config.LogDir = t.TempDir()
			config.Level = tt.level
			if err := InitLogger(config); err != nil {
				t.Fatalf("初始化日志器失败: %v", err)
			}
			if got := zerolog.GlobalLevel(); got != tt.want {
				t.Errorf("全局级别 = %s, want %s", got, tt.want)
			}
		})
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func TestBackgroundLogSink(t *testing.T) {
	tempDir := t.TempDir()
	sinkPath := filepath.Join(tempDir, "wget-log")

	config := DefaultLogConfig()
	config.LogDir = filepath.Join(tempDir, "logs")
	config.Background = true
	config.BackgroundFile = sinkPath

	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}
	defer CloseLogger()

	if StatusWriter() == os.Stdout {
		t.Error("后台模式下状态行不应写终端")
	}

	Statusf("start at %s", "2026-10-19 10:00:00")
	Statusf("Downloaded [%s]", "http://example.com/")
	Info("后台模式日志")

	content := readLog(t, sinkPath)
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("期望3行, 实际 %d: %q", len(lines), content)
	}
	if lines[1] != "Downloaded [http://example.com/]" {
		t.Errorf("状态行内容错误: %q", lines[1])
	}
	if !strings.Contains(lines[2], "后台模式日志") || strings.Contains(lines[2], "\x1b[") {
		t.Errorf("日志行应为无颜色纯文本: %q", lines[2])
	}

	// 追加模式: 再次打开不截断
	f, err := OpenLogSink(sinkPath)
	if err != nil {
		t.Fatalf("重新打开失败: %v", err)
	}
	f.WriteString("追加\n")
	f.Close()

	if after := readLog(t, sinkPath); !strings.HasPrefix(after, content) {
		t.Error("后台日志被截断")
	}

	CloseLogger()
	if StatusWriter() != os.Stdout {
		t.Error("关闭后状态行应恢复到stdout")
	}
}

func TestFilteredWriter(t *testing.T) {
	var buf strings.Builder
	w := &FilteredWriter{Writer: &buf, MinLevel: zerolog.ErrorLevel}

	w.WriteLevel(zerolog.InfoLevel, []byte("info\n"))
	w.WriteLevel(zerolog.ErrorLevel, []byte("error\n"))
	w.WriteLevel(zerolog.FatalLevel, []byte("fatal\n"))

	if buf.String() != "error\nfatal\n" {
		t.Errorf("过滤结果错误: %q", buf.String())
	}
}
