package crawlers

import (
	"net/url"
	"path"
	"strings"
)

// NormalizePath 规范化以/分隔的路径
// 去掉空段; 与下一段或下两段相同的段视为冗余并丢弃,
// 避免出现 a/a/index.html 或 a/b/a/index.html 这类路径.
// 重复处理直到不再变化,因此结果幂等. "." 和 ".." 保留原样.
func NormalizePath(p string) string {
	segments := make([]string, 0, strings.Count(p, "/")+1)
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	for {
		kept := segments[:0:0]
		for i, seg := range segments {
			if isRedundantSegment(segments, i) {
				continue
			}
			kept = append(kept, seg)
		}
		if len(kept) == len(segments) {
			break
		}
		segments = kept
	}

	return strings.Join(segments, "/")
}

// isRedundantSegment 判断第i段是否与其后第1段或第2段相同
func isRedundantSegment(segments []string, i int) bool {
	seg := segments[i]
	if seg == "." || seg == ".." {
		return false
	}
	if i+1 < len(segments) && segments[i+1] == seg {
		return true
	}
	return i+2 < len(segments) && segments[i+2] == seg
}

// ResolveReference 以页面URL为基准解析引用,并去掉片段
// 返回nil表示无法解析
func ResolveReference(base *url.URL, raw string) *url.URL {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs
}

// URLKey 入队和抓取使用的URL: 不含片段的绝对URL
func URLKey(u *url.URL) string {
	clean := *u
	clean.Fragment = ""
	clean.RawFragment = ""
	return clean.String()
}

// PageKey 访问集合使用的页面标识, 即页面在镜像树中的目录
// http://host 与 http://host/, /about 与 /about/ 落在同一个index.html, 视为同一页面
func PageKey(u *url.URL) string {
	return strings.ToLower(u.Host) + "/" + NormalizePath(u.Path)
}

// PageDir 页面在镜像树中的相对目录: <host>/<规范化路径>
func PageDir(u *url.URL) string {
	rel := NormalizePath(u.Path)
	if rel == "" {
		return u.Host
	}
	return path.Join(u.Host, rel)
}

// ResourcePath 资源相对于所在页面目录的保存路径
func ResourcePath(u *url.URL) string {
	return NormalizePath(u.Path)
}

// RelativePageLink 从当前页面目录指向目标页面index.html的相对链接
func RelativePageLink(fromDir, toDir string) string {
	from := splitSegments(fromDir)
	to := splitSegments(toDir)

	common := 0
	for common < len(from) && common < len(to) && from[common] == to[common] {
		common++
	}

	parts := make([]string, 0, len(from)-common+len(to)-common+1)
	for range from[common:] {
		parts = append(parts, "..")
	}
	parts = append(parts, to[common:]...)
	parts = append(parts, "index.html")
	link := strings.Join(parts, "/")
	if len(parts) == 1 {
		link = "./" + link
	}
	return NormalizePath(link)
}

func splitSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
