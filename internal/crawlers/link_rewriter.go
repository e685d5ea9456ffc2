package crawlers

import (
	"regexp"
	"strings"
)

// RewriteLink 把处于属性值位置的original替换为规范化后的replacement
// 只替换紧跟在 = " ( ' 之后且紧接 ) " ' 的完整出现,其他位置的相似文本不受影响.
// 每次调用相互独立,可对同一文本重复调用.
func RewriteLink(text, original, replacement string) string {
	if original == "" || !strings.Contains(text, original) {
		return text
	}

	target := NormalizePath(replacement)
	re := regexp.MustCompile(`([="('])` + regexp.QuoteMeta(original) + `([)"'])`)
	return re.ReplaceAllString(text, "${1}"+escapeReplacement(target)+"${2}")
}

// escapeReplacement 转义替换串中的$
func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}
