package crawlers

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/SiteMirror/internal/models"
	"github.com/rs/zerolog/log"
)

// cssURLPattern 匹配 url(...) 引用,可带单/双引号
var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'"()]+)['"]?\s*\)`)

// ResourceFetcher 抓取并保存资源的能力
type ResourceFetcher interface {
	Fetch(rawURL string) ([]byte, error)
	Save(data []byte, path string) error
}

// StylesheetResult 样式表处理结果
type StylesheetResult struct {
	// Text 改写后的样式表文本
	Text string

	// Replacements 原始引用 → 本地文件名
	Replacements map[string]string

	// Saved 保存成功的资源数
	Saved int

	// Bytes 保存的字节数
	Bytes int64

	// Failed 失败的资源
	Failed []models.FailedItem
}

// StylesheetHandler 样式表资源处理器
// 职责: 找出样式表中的url(...)引用,逐个抓取,以引用的最后一段路径为文件名
// 保存到当前页面目录,并把原始引用替换为该文件名.
// 不同目录下同名的资源会互相覆盖.
type StylesheetHandler struct {
	fetcher ResourceFetcher

	// accept 返回false的URL不抓取(拒绝扩展名/排除目录)
	accept func(*url.URL) bool
}

// NewStylesheetHandler 创建样式表处理器, accept可为nil
func NewStylesheetHandler(fetcher ResourceFetcher, accept func(*url.URL) bool) *StylesheetHandler {
	return &StylesheetHandler{fetcher: fetcher, accept: accept}
}

// Process 处理一段样式表文本
// base为解析相对引用的基准URL, pageDir为页面在本地的目录
func (h *StylesheetHandler) Process(css string, base *url.URL, pageDir string) StylesheetResult {
	result := StylesheetResult{Text: css, Replacements: make(map[string]string)}

	seen := make(map[string]bool)
	for _, match := range cssURLPattern.FindAllStringSubmatch(css, -1) {
		original := strings.TrimSpace(match[1])
		if original == "" || seen[original] {
			continue
		}
		seen[original] = true

		if strings.HasPrefix(original, "#") || strings.HasPrefix(strings.ToLower(original), "data:") {
			continue
		}

		abs := ResolveReference(base, original)
		if abs == nil || (abs.Scheme != "http" && abs.Scheme != "https") {
			continue
		}
		if h.accept != nil && !h.accept(abs) {
			log.Debug().Str("url", abs.String()).Msg("样式表资源被过滤")
			continue
		}

		filename := path.Base(abs.Path)
		if filename == "/" || filename == "." || filename == "" {
			continue
		}

		data, err := h.fetcher.Fetch(abs.String())
		if err == nil {
			err = h.fetcher.Save(data, filepath.Join(pageDir, filename))
		}
		if err != nil {
			log.Warn().Err(err).Str("url", abs.String()).Msg("样式表资源下载失败")
			result.Failed = append(result.Failed, models.FailedItem{
				URL:       abs.String(),
				Kind:      "stylesheet",
				ErrorType: models.ErrorType(err),
				ErrorMsg:  err.Error(),
			})
			continue
		}

		result.Replacements[original] = filename
		result.Saved++
		result.Bytes += int64(len(data))
	}

	// 先替换较长的引用,避免短引用是长引用子串时被提前破坏
	originals := make([]string, 0, len(result.Replacements))
	for original := range result.Replacements {
		originals = append(originals, original)
	}
	sort.Slice(originals, func(i, j int) bool {
		if len(originals[i]) != len(originals[j]) {
			return len(originals[i]) > len(originals[j])
		}
		return originals[i] < originals[j]
	})
	for _, original := range originals {
		result.Text = strings.ReplaceAll(result.Text, original, result.Replacements[original])
	}

	return result
}
