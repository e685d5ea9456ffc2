package crawlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/SiteMirror/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"
)

// referenceSelector 暴露链接或资源属性的元素
const referenceSelector = "a[href], img[src], link[href], script[src], style"

// maxTokenSize 单个HTML token的上限,超过即视为无法解析
const maxTokenSize = 4 << 20

// ErrUnparseableMarkup 页面无法解析
var ErrUnparseableMarkup = errors.New("无法解析的HTML")

// PageReferences 一个页面中发现的引用
type PageReferences struct {
	// References 按文档顺序排列的href/src属性值
	References []models.Reference

	// Stylesheets 内联<style>块的原始文本,按文档顺序
	Stylesheets []string
}

// ExtractReferences 从HTML中按文档顺序提取引用和内联样式块
// 无法解析时返回ErrUnparseableMarkup,调用方应视为零引用
func ExtractReferences(body []byte) (*PageReferences, error) {
	if err := checkMarkup(body); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableMarkup, err)
	}

	refs := &PageReferences{}
	doc.Find(referenceSelector).Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		if tag == "style" {
			if text := s.Text(); strings.TrimSpace(text) != "" {
				refs.Stylesheets = append(refs.Stylesheets, text)
			}
			return
		}

		attr := "src"
		if tag == "a" || tag == "link" {
			attr = "href"
		}
		if raw, ok := s.Attr(attr); ok {
			refs.References = append(refs.References, models.Reference{Raw: raw, Tag: tag})
		}
	})

	return refs, nil
}

// checkMarkup 用x/net/html分词器扫描一遍,识别二进制内容或超长token
func checkMarkup(body []byte) error {
	if !utf8.Valid(body) && bytes.IndexByte(body, 0) >= 0 {
		return fmt.Errorf("%w: 二进制内容", ErrUnparseableMarkup)
	}

	z := html.NewTokenizer(bytes.NewReader(body))
	z.SetMaxBuf(maxTokenSize)
	for {
		if z.Next() == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return fmt.Errorf("%w: %v", ErrUnparseableMarkup, err)
			}
			return nil
		}
	}
}

// Classifier 引用分类器
// 职责: 解析为绝对URL, 应用拒绝扩展名/排除目录过滤, 判断Subpage或Resource
type Classifier struct {
	// 种子主机(含端口)
	host string

	// 种子的可注册域名 (includeSubdomains时使用)
	site string

	// 子域名是否视为同站
	includeSubdomains bool

	// 拒绝的扩展名(小写,不含点)
	reject map[string]bool

	// 排除的目录(去掉首尾/)
	exclude []string
}

// NewClassifier 创建分类器
func NewClassifier(seed *url.URL, config models.MirrorConfig) *Classifier {
	c := &Classifier{
		host:              strings.ToLower(seed.Host),
		includeSubdomains: config.IncludeSubdomains,
		reject:            make(map[string]bool),
	}

	if config.IncludeSubdomains {
		site, err := publicsuffix.EffectiveTLDPlusOne(seed.Hostname())
		if err != nil {
			log.Debug().Err(err).Str("host", seed.Hostname()).Msg("无法计算可注册域名,仅匹配种子主机")
		} else {
			c.site = site
		}
	}

	for _, ext := range config.RejectTypes {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			c.reject[ext] = true
		}
	}
	for _, dir := range config.ExcludeDirs {
		dir = strings.Trim(strings.TrimSpace(dir), "/")
		if dir != "" {
			c.exclude = append(c.exclude, dir)
		}
	}
	return c
}

// Classify 对页面base中的一个引用分类
func (c *Classifier) Classify(base *url.URL, ref models.Reference) models.Reference {
	raw := strings.TrimSpace(ref.Raw)
	ignore := func(reason string) models.Reference {
		ref.Kind = models.RefIgnored
		ref.Reason = reason
		return ref
	}

	if raw == "" {
		return ignore("空引用")
	}
	if strings.HasPrefix(raw, "#") {
		return ignore("纯片段")
	}

	abs := ResolveReference(base, raw)
	if abs == nil {
		return ignore("URL格式无效")
	}
	ref.Absolute = abs

	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ignore("不支持的协议")
	}
	if !c.SameSite(abs) {
		return ignore("跨域链接")
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(abs.Path), "."))
	if c.reject[ext] {
		return ignore("扩展名被拒绝")
	}
	if c.isExcluded(abs.Path) {
		return ignore("目录被排除")
	}

	if abs.Path == "" || strings.HasSuffix(abs.Path, "/") || ext == "" {
		ref.Kind = models.RefSubpage
	} else {
		ref.Kind = models.RefResource
	}
	return ref
}

// IsFiltered 引用是否被拒绝/排除规则丢弃
func IsFiltered(ref models.Reference) bool {
	return ref.Kind == models.RefIgnored && (ref.Reason == "扩展名被拒绝" || ref.Reason == "目录被排除")
}

// SameSite 判断URL是否与种子同站
func (c *Classifier) SameSite(u *url.URL) bool {
	host := strings.ToLower(u.Host)
	if host == c.host {
		return true
	}
	if !c.includeSubdomains || c.site == "" {
		return false
	}
	site, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(u.Hostname()))
	return err == nil && site == c.site
}

// isExcluded 判断路径的直接父目录是否被排除
// 以/结尾的路径,其父目录即自身; 含/的排除项按目录前缀匹配
func (c *Classifier) isExcluded(p string) bool {
	if len(c.exclude) == 0 {
		return false
	}

	dir := p
	if !strings.HasSuffix(p, "/") {
		dir = path.Dir(p)
	}
	dir = strings.Trim(dir, "/")
	if dir == "" || dir == "." {
		return false
	}
	parent := path.Base(dir)

	for _, ex := range c.exclude {
		if strings.Contains(ex, "/") {
			if dir == ex || strings.HasPrefix(dir, ex+"/") {
				return true
			}
		} else if parent == ex {
			return true
		}
	}
	return false
}
