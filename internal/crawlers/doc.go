// Package crawlers 提供整站镜像引擎
//
// # 概述
//
// 从种子URL出发,递归发现同站页面和内嵌资源(图片、样式表、脚本、文档),
// 下载到本地镜像目录,并可改写页面中的引用以便离线浏览.
//
// # 核心组件
//
// ## NormalizePath / RewriteLink
//
// NormalizePath 去掉空段并丢弃与后一段或后两段相同的段,结果幂等:
//
//	NormalizePath("a/a/b")   // "a/b"
//	NormalizePath("/a//b/")  // "a/b"
//
// RewriteLink 只替换处于属性值位置(前为 = " ( ',后为 ) " ')的完整引用.
//
// ## Fetcher
//
// 基于Colly的资源抓取器. 所有请求共用一个collector,
// 非2xx响应返回 *models.HTTPStatusError. Save 自动创建父目录并覆盖已有文件.
//
// ## StylesheetHandler
//
// 处理内联<style>中的 url(...) 引用,资源以最后一段路径为文件名保存在页面目录.
//
// ## VisitedSet / URLQueue
//
// VisitedSet.Visit 原子地检查并插入; URLQueue 是无界工作队列,
// 队列为空且无处理中的页面时结束.
//
// ## MirrorCrawler
//
// 由有界worker池驱动的页面状态机:
//
//	fetching → parsing → classifying → dispatching → persisting → recursing → done
//
// 使用示例:
//
//	fetcher, _ := NewFetcher(FetcherConfig{OutputRoot: "mirror"})
//	m, err := NewMirrorCrawler(config, fetcher)
//	if err != nil { /* 处理错误 */ }
//	stats, err := m.Run(ctx)
//
// # 镜像目录
//
//	<root>/<host>/<页面路径>/index.html
//	<root>/<host>/<页面路径>/<资源路径>
//
// # 并发安全
//
// VisitedSet、URLQueue、Fetcher 可被多个goroutine并发使用.
// 页面的工作副本只由处理该页面的worker持有.
package crawlers
