package models

import "net/url"

// ReferenceKind 引用分类
type ReferenceKind int

const (
	// RefIgnored 跨域、纯片段、被过滤或无法解析的引用
	RefIgnored ReferenceKind = iota
	// RefSubpage 同域且以/结尾或没有扩展名,需要递归镜像
	RefSubpage
	// RefResource 同域且带扩展名,下载一次,不递归
	RefResource
)

// String 返回分类名称
func (k ReferenceKind) String() string {
	switch k {
	case RefSubpage:
		return "subpage"
	case RefResource:
		return "resource"
	default:
		return "ignored"
	}
}

// Reference 页面或样式表中发现的一个属性值(href/src/url())
// 扫描时创建,立即被消费
type Reference struct {
	Raw      string        // 原始值(可能是相对路径)
	Tag      string        // 来源元素名(a/img/link/script)
	Absolute *url.URL      // 解析后的绝对URL(不含片段)
	Kind     ReferenceKind // 分类结果
	Reason   string        // 被忽略的原因
}

// FailedItem 失败项
type FailedItem struct {
	URL       string `json:"url"`
	Kind      string `json:"kind"`       // page, resource, stylesheet
	ErrorType string `json:"error_type"` // http_status, transport, filesystem
	ErrorMsg  string `json:"error_msg"`
}
