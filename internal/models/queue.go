package models

// URLItem 工作队列中的一个待镜像页面
type URLItem struct {
	// URL 完整的绝对URL(不含片段)
	URL string

	// Depth 距种子页面的层级
	//   - 0: 种子页面
	//   - 1: 从种子页面发现的子页面
	//   - 以此类推...
	Depth int

	// SourceURL 发现此URL的页面(可选,用于日志)
	SourceURL string
}
