package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/SiteMirror/internal/models"
	"github.com/andybalholm/brotli"
)

func newTestFetcher(t *testing.T, headers models.HeaderProvider) *Fetcher {
	t.Helper()
	fetcher, err := NewFetcher(FetcherConfig{
		OutputRoot:  t.TempDir(),
		Timeout:     5 * time.Second,
		Parallelism: 4,
		Headers:     headers,
	})
	if err != nil {
		t.Fatalf("创建抓取器失败: %v", err)
	}
	return fetcher
}

func TestFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("hello"))
		case "/missing":
			http.NotFound(w, r)
		case "/error":
			w.WriteHeader(http.StatusInternalServerError)
		case "/br":
			var buf bytes.Buffer
			bw := brotli.NewWriter(&buf)
			bw.Write([]byte("brotli body"))
			bw.Close()
			w.Header().Set("Content-Encoding", "br")
			w.Write(buf.Bytes())
		case "/headers":
			w.Write([]byte(r.Header.Get("X-Mirror") + "|" + r.Header.Get("User-Agent")))
		}
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, models.StaticHeaders{"X-Mirror": []string{"yes"}})

	t.Run("成功响应", func(t *testing.T) {
		body, err := fetcher.Fetch(server.URL + "/ok")
		if err != nil {
			t.Fatalf("抓取失败: %v", err)
		}
		if string(body) != "hello" {
			t.Errorf("响应体错误: %q", body)
		}
	})

	t.Run("404返回HTTPStatusError", func(t *testing.T) {
		_, err := fetcher.Fetch(server.URL + "/missing")
		var statusErr *models.HTTPStatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
			t.Fatalf("期望404状态错误, 实际 %v", err)
		}
	})

	t.Run("500返回HTTPStatusError", func(t *testing.T) {
		_, err := fetcher.Fetch(server.URL + "/error")
		if !models.IsHTTPStatusError(err) {
			t.Fatalf("期望状态错误, 实际 %v", err)
		}
	})

	t.Run("brotli解压", func(t *testing.T) {
		body, err := fetcher.Fetch(server.URL + "/br")
		if err != nil {
			t.Fatalf("抓取失败: %v", err)
		}
		if string(body) != "brotli body" {
			t.Errorf("解压结果错误: %q", body)
		}
	})

	t.Run("应用自定义头部", func(t *testing.T) {
		body, err := fetcher.Fetch(server.URL + "/headers")
		if err != nil {
			t.Fatalf("抓取失败: %v", err)
		}
		if string(body) != "yes|"+DefaultUserAgent {
			t.Errorf("头部未生效: %q", body)
		}
	})

	t.Run("传输错误", func(t *testing.T) {
		closed := httptest.NewServer(http.NotFoundHandler())
		addr := closed.URL
		closed.Close()

		_, err := fetcher.Fetch(addr + "/gone")
		if err == nil {
			t.Fatal("期望返回错误")
		}
		if models.IsHTTPStatusError(err) {
			t.Errorf("传输错误不应是状态错误: %v", err)
		}
		if models.ErrorType(err) != "transport" {
			t.Errorf("错误类别错误: %s", models.ErrorType(err))
		}
	})
}

func TestFetcher_Save(t *testing.T) {
	fetcher := newTestFetcher(t, nil)
	root := fetcher.OutputRoot()

	t.Run("自动创建父目录", func(t *testing.T) {
		path := filepath.Join(root, "x.test", "img", "deep", "a.png")
		if err := fetcher.Save([]byte("one"), path); err != nil {
			t.Fatalf("保存失败: %v", err)
		}
		data, _ := os.ReadFile(path)
		if string(data) != "one" {
			t.Errorf("文件内容错误: %q", data)
		}
	})

	t.Run("覆盖已有文件", func(t *testing.T) {
		path := filepath.Join(root, "x.test", "b.txt")
		fetcher.Save([]byte("first version"), path)
		if err := fetcher.Save([]byte("second"), path); err != nil {
			t.Fatalf("保存失败: %v", err)
		}
		data, _ := os.ReadFile(path)
		if string(data) != "second" {
			t.Errorf("未覆盖旧文件: %q", data)
		}
	})

	t.Run("拒绝写入根目录之外", func(t *testing.T) {
		err := fetcher.Save([]byte("x"), filepath.Join(root, "..", "escape.txt"))
		var fsErr *models.FilesystemError
		if !errors.As(err, &fsErr) {
			t.Fatalf("期望FilesystemError, 实际 %v", err)
		}
	})
}

func TestDecompressResponse(t *testing.T) {
	payload := []byte("compressed payload")

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write(payload)
	gw.Close()

	var fl bytes.Buffer
	fw, _ := flate.NewWriter(&fl, flate.DefaultCompression)
	fw.Write(payload)
	fw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{"gzip", "gzip", gz.Bytes()},
		{"已解压的gzip原样返回", "gzip", payload},
		{"deflate", "deflate", fl.Bytes()},
		{"未知编码原样返回", "identity", payload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decompressResponse(tt.encoding, tt.body)
			if err != nil {
				t.Fatalf("解压失败: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("解压结果错误: %q", got)
			}
		})
	}
}
