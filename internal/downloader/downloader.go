// Package downloader 单文件流式下载 (非镜像模式)
package downloader

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/SiteMirror/internal/crawlers"
	"github.com/RecoveryAshes/SiteMirror/internal/models"
	"github.com/RecoveryAshes/SiteMirror/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// timeLayout 状态行中的时间格式
const timeLayout = "2006-01-02 15:04:05"

// Config 下载器配置
type Config struct {
	UserAgent          string                // User-Agent (默认: crawlers.DefaultUserAgent)
	Timeout            time.Duration         // 连接+响应头超时, 0表示不限制
	InsecureSkipVerify bool                  // 跳过TLS证书验证
	Headers            models.HeaderProvider // 每个请求附加的头部
}

// Options 单次下载选项
type Options struct {
	// OutputName -O 指定的文件名, 为空时取URL最后一段
	OutputName string

	// Directory -P 指定的保存目录, 不存在时创建
	Directory string

	// RateLimit 限速(字节/秒), 0表示不限速
	RateLimit int64

	// Background 后台模式: 不显示进度条, 进度按10%写入日志
	Background bool

	// Quiet 批量模式: 不输出状态行和进度
	Quiet bool
}

// Result 下载结果
type Result struct {
	URL      string
	Path     string
	Bytes    int64
	Duration time.Duration
}

// Downloader 单文件下载器
type Downloader struct {
	client    *http.Client
	userAgent string
	headers   models.HeaderProvider
}

// NewDownloader 创建下载器
func NewDownloader(config Config) *Downloader {
	if config.UserAgent == "" {
		config.UserAgent = crawlers.DefaultUserAgent
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: config.InsecureSkipVerify}
	if config.Timeout > 0 {
		transport.ResponseHeaderTimeout = config.Timeout
	}

	return &Downloader{
		client:    &http.Client{Transport: transport},
		userAgent: config.UserAgent,
		headers:   config.Headers,
	}
}

// Download 下载一个URL到本地文件
func (d *Downloader) Download(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	if err := models.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	status := utils.Statusf
	if opts.Quiet {
		status = func(string, ...interface{}) {}
	}

	start := time.Now()
	status("start at %s", start.Format(timeLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	if err := d.applyHeaders(req); err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败 %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	status("sending request, awaiting response... status %s", resp.Status)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	total := resp.ContentLength
	shown := total
	if shown < 0 {
		shown = 0
	}
	status("content size: %d [~%.2fMB]", shown, float64(shown)/(1024*1024))

	name := opts.OutputName
	if name == "" {
		name = FileNameFromURL(rawURL)
	}
	if opts.Directory != "" {
		if err := os.MkdirAll(opts.Directory, 0755); err != nil {
			return nil, &models.FilesystemError{Path: opts.Directory, Op: "创建目录", Err: err}
		}
	}
	target := filepath.Join(opts.Directory, name)
	status("saving file to: %s", target)

	file, err := os.Create(target)
	if err != nil {
		return nil, &models.FilesystemError{Path: target, Op: "创建文件", Err: err}
	}
	defer file.Close()

	var body io.Reader = resp.Body
	if opts.RateLimit > 0 {
		body = NewThrottledReader(ctx, body, opts.RateLimit)
	}

	var dst io.Writer = file
	var bar *progressbar.ProgressBar
	switch {
	case opts.Quiet:
	case opts.Background:
		dst = io.MultiWriter(file, &stepProgress{name: name, total: total, report: status})
	default:
		bar = utils.NewBytesProgressBar(total, name, utils.StatusWriter())
		dst = io.MultiWriter(file, bar)
	}

	written, err := copyChunks(dst, body, target)
	if bar != nil {
		// 进度条结束时自行换行, 之后的状态行从新行开始
		bar.Finish()
	}
	if err != nil {
		return nil, err
	}
	if err := file.Sync(); err != nil {
		return nil, &models.FilesystemError{Path: target, Op: "写入文件", Err: err}
	}

	status("Downloaded [%s]", rawURL)
	status("finished at %s", time.Now().Format(timeLayout))

	log.Debug().Str("url", rawURL).Str("path", target).Int64("bytes", written).Msg("下载完成")
	return &Result{
		URL:      rawURL,
		Path:     target,
		Bytes:    written,
		Duration: time.Since(start),
	}, nil
}

// copyChunks 按ChunkSize分块把body写入dst
func copyChunks(dst io.Writer, body io.Reader, target string) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, &models.FilesystemError{Path: target, Op: "写入文件", Err: err}
			}
			written += int64(n)
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("下载中断: %w", readErr)
		}
	}
}

// applyHeaders 应用头部提供者的头部和固定UA
// Accept-Encoding交给Transport协商, 保证写入磁盘的是解码后的内容
func (d *Downloader) applyHeaders(req *http.Request) error {
	if d.headers != nil {
		headers, err := d.headers.GetHeaders()
		if err != nil {
			return fmt.Errorf("获取HTTP头部失败: %w", err)
		}
		for key, values := range headers {
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}
	}
	req.Header.Del("Accept-Encoding")
	req.Header.Set("User-Agent", d.userAgent)
	return nil
}

// FileNameFromURL 取URL路径的最后一段作为文件名, 为空时为index.html
func FileNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "index.html"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "index.html"
	}
	return name
}

// stepProgress 后台模式下按10%步进报告进度
// 长度未知时每10MB报告一次
type stepProgress struct {
	name    string
	total   int64
	written int64
	next    int64
	report  func(string, ...interface{})
}

const unknownSizeStep = 10 * 1024 * 1024

func (p *stepProgress) Write(b []byte) (int, error) {
	p.written += int64(len(b))

	if p.total <= 0 {
		if p.next == 0 {
			p.next = unknownSizeStep
		}
		for p.written >= p.next {
			p.report("%s: %s", p.name, utils.FormatSize(p.written))
			p.next += unknownSizeStep
		}
		return len(b), nil
	}

	if p.next == 0 {
		p.next = 10
	}
	percent := p.written * 100 / p.total
	if percent >= p.next {
		p.report("%s: %d%% (%s / %s)", p.name, percent, utils.FormatSize(p.written), utils.FormatSize(p.total))
		p.next = percent/10*10 + 10
	}
	return len(b), nil
}
