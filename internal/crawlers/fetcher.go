package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/SiteMirror/internal/models"
	"github.com/RecoveryAshes/SiteMirror/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

// DefaultUserAgent 固定的User-Agent
const DefaultUserAgent = "Wget/1.21.4 (sitemirror)"

// fetchResultKey colly.Context中保存响应结果的键
const fetchResultKey = "fetch_result"

// FetcherConfig 抓取器配置
type FetcherConfig struct {
	OutputRoot         string                // 镜像根目录,Save只允许写入其下
	UserAgent          string                // User-Agent (默认: DefaultUserAgent)
	Timeout            time.Duration         // 单次请求超时 (默认: 30s)
	MaxBodySize        int                   // 响应体上限(字节), 0表示不限
	Parallelism        int                   // 同时进行的请求数上限
	InsecureSkipVerify bool                  // 跳过TLS证书验证
	Headers            models.HeaderProvider // 自定义头部 (可选)
}

// fetchResult 单次请求的结果
// 通过colly.Context在回调与调用方之间传递
type fetchResult struct {
	status int
	header http.Header
	body   []byte
}

// Fetcher 资源抓取器
// 职责: 发起一次GET,校验2xx,返回响应体; 把字节写入镜像树
// 不做重试,失败只报告一次
type Fetcher struct {
	collector  *colly.Collector
	outputRoot string
	headers    models.HeaderProvider

	// 同一路径的写入互斥, 值为*sync.Mutex
	pathLocks sync.Map
}

// NewFetcher 创建抓取器
// 所有页面和资源请求共用一个collector,可被多个worker并发调用
func NewFetcher(config FetcherConfig) (*Fetcher, error) {
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}

	root, err := filepath.Abs(config.OutputRoot)
	if err != nil {
		return nil, fmt.Errorf("解析输出目录失败: %w", err)
	}

	// 同一URL在不同页面下各保存一份,必须允许重复请求
	// 非2xx响应也交给OnResponse,由Fetch统一转换为HTTPStatusError
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(config.UserAgent),
		colly.MaxBodySize(config.MaxBodySize),
	)

	c.WithTransport(&http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: config.InsecureSkipVerify},
		MaxIdleConnsPerHost: config.Parallelism,
		IdleConnTimeout:     90 * time.Second,
	})
	c.SetRequestTimeout(config.Timeout)

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: config.Parallelism,
	}); err != nil {
		utils.Warnf("设置并发限制失败: %v", err)
	}

	f := &Fetcher{
		collector:  c,
		outputRoot: root,
		headers:    config.Headers,
	}
	f.setupCallbacks()

	utils.Debugf("抓取器初始化: 超时=%s, 并发=%d, 响应上限=%d 字节",
		config.Timeout, config.Parallelism, config.MaxBodySize)
	return f, nil
}

// setupCallbacks 设置Colly回调
func (f *Fetcher) setupCallbacks() {
	// 应用自定义HTTP头部
	f.collector.OnRequest(func(r *colly.Request) {
		if f.headers != nil {
			headers, err := f.headers.GetHeaders()
			if err != nil {
				utils.Warnf("获取HTTP头部失败: %v", err)
			} else {
				for name, values := range headers {
					if len(values) > 0 {
						r.Headers.Set(name, values[0])
					}
				}
			}
		}
		utils.Debugf("请求: %s", r.URL.String())
	})

	f.collector.OnResponse(func(r *colly.Response) {
		result, ok := r.Ctx.GetAny(fetchResultKey).(*fetchResult)
		if !ok {
			return
		}
		result.status = r.StatusCode
		if r.Headers != nil {
			result.header = r.Headers.Clone()
		}
		result.body = r.Body
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Request != nil {
			utils.Debugf("请求出错 [%s]: %v", r.Request.URL, err)
		}
	})
}

// Fetch 发起一次GET请求
// 非2xx返回*models.HTTPStatusError,其他失败为传输错误
func (f *Fetcher) Fetch(rawURL string) ([]byte, error) {
	result := &fetchResult{}
	ctx := colly.NewContext()
	ctx.Put(fetchResultKey, result)

	if err := f.collector.Request(http.MethodGet, rawURL, nil, ctx, nil); err != nil {
		if result.status != 0 && (result.status < 200 || result.status > 299) {
			return nil, &models.HTTPStatusError{URL: rawURL, StatusCode: result.status}
		}
		return nil, fmt.Errorf("请求失败 [%s]: %w", rawURL, err)
	}

	if result.status == 0 {
		return nil, fmt.Errorf("请求失败 [%s]: 未收到响应", rawURL)
	}
	if result.status < 200 || result.status > 299 {
		return nil, &models.HTTPStatusError{URL: rawURL, StatusCode: result.status}
	}

	body := result.body
	if encoding := result.header.Get("Content-Encoding"); encoding != "" {
		decoded, err := decompressResponse(encoding, body)
		if err != nil {
			utils.Warnf("解压响应失败 [%s] (编码=%s): %v", rawURL, encoding, err)
		} else {
			body = decoded
		}
	}
	return body, nil
}

// Save 把数据写入path,自动创建父目录,已存在的文件直接覆盖
// path必须位于镜像根目录之下
func (f *Fetcher) Save(data []byte, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &models.FilesystemError{Path: path, Op: "解析路径", Err: err}
	}
	rel, err := filepath.Rel(f.outputRoot, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &models.FilesystemError{Path: path, Op: "写入文件", Err: fmt.Errorf("路径超出镜像根目录 %s", f.outputRoot)}
	}

	lock, _ := f.pathLocks.LoadOrStore(abs, &sync.Mutex{})
	lock.(*sync.Mutex).Lock()
	defer lock.(*sync.Mutex).Unlock()

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return &models.FilesystemError{Path: filepath.Dir(abs), Op: "创建目录", Err: err}
	}
	if err := os.WriteFile(abs, data, 0644); err != nil {
		return &models.FilesystemError{Path: abs, Op: "写入文件", Err: err}
	}
	return nil
}

// OutputRoot 返回镜像根目录的绝对路径
func (f *Fetcher) OutputRoot() string {
	return f.outputRoot
}

// decompressResponse 根据Content-Encoding解压响应体
// 支持 gzip, deflate, br (Brotli) 三种压缩格式
// colly已自动解压gzip,此时body不再以gzip魔数开头,原样返回
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip", "x-gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(bytes.NewReader(body))
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	default:
		return body, nil
	}

	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%s读取失败: %w", contentEncoding, err)
	}
	return decoded, nil
}
