package downloader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RecoveryAshes/SiteMirror/internal/models"
	"github.com/RecoveryAshes/SiteMirror/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files/report.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-UA", r.UserAgent())
		w.Write([]byte(strings.Repeat("x", 100*1024)))
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("X-Token") + "|" + r.UserAgent()))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("<html>root</html>"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestDownload(t *testing.T) {
	server := newFileServer(t)
	d := NewDownloader(Config{})

	t.Run("默认文件名取URL最后一段", func(t *testing.T) {
		dir := t.TempDir()
		result, err := d.Download(context.Background(), server.URL+"/files/report.pdf", Options{Directory: dir, Quiet: true})
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(dir, "report.pdf"), result.Path)
		assert.EqualValues(t, 100*1024, result.Bytes)

		info, err := os.Stat(result.Path)
		require.NoError(t, err)
		assert.EqualValues(t, 100*1024, info.Size())
	})

	t.Run("根路径保存为index.html", func(t *testing.T) {
		dir := t.TempDir()
		result, err := d.Download(context.Background(), server.URL+"/", Options{Directory: dir, Quiet: true})
		require.NoError(t, err)
		assert.Equal(t, "index.html", filepath.Base(result.Path))
	})

	t.Run("-O指定文件名并创建-P目录", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "out")
		result, err := d.Download(context.Background(), server.URL+"/files/report.pdf", Options{
			OutputName: "renamed.bin",
			Directory:  dir,
			Quiet:      true,
		})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "renamed.bin"), result.Path)
		assert.FileExists(t, result.Path)
	})

	t.Run("非2xx返回HTTPStatusError", func(t *testing.T) {
		dir := t.TempDir()
		_, err := d.Download(context.Background(), server.URL+"/missing.zip", Options{Directory: dir, Quiet: true})
		require.Error(t, err)

		var statusErr *models.HTTPStatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
		assert.NoFileExists(t, filepath.Join(dir, "missing.zip"))
	})

	t.Run("无效URL", func(t *testing.T) {
		_, err := d.Download(context.Background(), "ftp://example.com/a", Options{Quiet: true})
		assert.Error(t, err)
	})
}

func TestDownloadHeaders(t *testing.T) {
	server := newFileServer(t)
	d := NewDownloader(Config{
		Headers: models.StaticHeaders{
			"X-Token":    []string{"abc"},
			"User-Agent": []string{"custom"},
		},
	})

	dir := t.TempDir()
	result, err := d.Download(context.Background(), server.URL+"/echo", Options{Directory: dir, Quiet: true})
	require.NoError(t, err)

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	// User-Agent固定, 不可被覆盖
	assert.Equal(t, "abc|Wget/1.21.4 (sitemirror)", string(data))
}

func TestDownloadBackgroundProgress(t *testing.T) {
	server := newFileServer(t)
	d := NewDownloader(Config{})

	dir := t.TempDir()
	result, err := d.Download(context.Background(), server.URL+"/files/report.pdf", Options{Directory: dir, Background: true})
	require.NoError(t, err)
	assert.EqualValues(t, 100*1024, result.Bytes)
}

func TestDownloadBackgroundSinkLines(t *testing.T) {
	server := newFileServer(t)
	tempDir := t.TempDir()
	sinkPath := filepath.Join(tempDir, "wget-log")

	logConfig := utils.DefaultLogConfig()
	logConfig.LogDir = filepath.Join(tempDir, "logs")
	logConfig.Background = true
	logConfig.BackgroundFile = sinkPath
	require.NoError(t, utils.InitLogger(logConfig))
	defer utils.CloseLogger()

	target := server.URL + "/files/report.pdf"
	_, err := NewDownloader(Config{}).Download(context.Background(), target, Options{
		Directory:  filepath.Join(tempDir, "out"),
		Background: true,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(sinkPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")

	// 每个事件一行, 不能有空行
	for i, line := range lines {
		assert.NotEmpty(t, strings.TrimSpace(line), "第%d行为空", i+1)
	}
	assert.Contains(t, lines, "Downloaded ["+target+"]")
	assert.True(t, strings.HasPrefix(lines[0], "start at "), lines[0])
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "finished at "), lines[len(lines)-1])
}

func TestDownloadCancelled(t *testing.T) {
	server := newFileServer(t)
	d := NewDownloader(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Download(ctx, server.URL+"/files/report.pdf", Options{Directory: t.TempDir(), Quiet: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStepProgress(t *testing.T) {
	var lines []string
	p := &stepProgress{
		name:  "f",
		total: 1000,
		report: func(format string, args ...interface{}) {
			lines = append(lines, format)
		},
	}

	for i := 0; i < 10; i++ {
		p.Write(make([]byte, 100))
	}
	assert.Len(t, lines, 10)

	lines = nil
	unknown := &stepProgress{
		name:  "g",
		total: -1,
		report: func(format string, args ...interface{}) {
			lines = append(lines, format)
		},
	}
	unknown.Write(make([]byte, unknownSizeStep*2+1))
	assert.Len(t, lines, 2)
}

func TestFileNameFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"普通文件", "https://example.com/a/b/file.zip", "file.zip"},
		{"根路径", "https://example.com/", "index.html"},
		{"无路径", "https://example.com", "index.html"},
		{"目录", "https://example.com/docs/", "docs"},
		{"带查询", "https://example.com/x.tar.gz?v=1", "x.tar.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileNameFromURL(tt.url))
		})
	}
}
