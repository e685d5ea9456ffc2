package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/SiteMirror/internal/models"
	"github.com/RecoveryAshes/SiteMirror/internal/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultProgressInterval 进度日志间隔
const DefaultProgressInterval = 5 * time.Second

// MirrorCrawler 整站镜像驱动
// 职责: 从种子页面出发,由有界worker池消费工作队列,
// 对每个页面执行 抓取 → 解析 → 分类 → 分发 → 落盘 → 递归 状态流转.
// 页面失败只中止该分支,资源失败记录后跳过,不做重试.
type MirrorCrawler struct {
	config     models.MirrorConfig
	seed       *url.URL
	root       string
	fetcher    ResourceFetcher
	classifier *Classifier
	styles     *StylesheetHandler
	visited    *VisitedSet
	queue      *URLQueue

	// 页面并发数
	workers int

	// 单个页面内资源下载并发数
	resourceWorkers int

	// 进度日志间隔
	progressInterval time.Duration

	mu      sync.Mutex
	stats   models.TaskStats
	failed  []models.FailedItem
	seedErr error
}

// NewMirrorCrawler 创建镜像驱动
// 种子URL无效或输出目录无法创建时返回错误
func NewMirrorCrawler(config models.MirrorConfig, fetcher ResourceFetcher) (*MirrorCrawler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, errors.New("未提供资源抓取器")
	}

	seed, err := url.Parse(config.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("解析种子URL失败: %w", err)
	}
	seed.Fragment = ""
	seed.RawFragment = ""

	root, err := filepath.Abs(config.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("解析输出目录失败: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &models.FilesystemError{Path: root, Op: "创建输出目录", Err: err}
	}

	classifier := NewClassifier(seed, config)
	m := &MirrorCrawler{
		config:           config,
		seed:             seed,
		root:             root,
		fetcher:          fetcher,
		classifier:       classifier,
		visited:          NewVisitedSet(),
		queue:            NewURLQueue(),
		workers:          config.MaxWorkers,
		resourceWorkers:  config.MaxWorkers,
		progressInterval: DefaultProgressInterval,
	}
	m.styles = NewStylesheetHandler(fetcher, func(u *url.URL) bool {
		ref := classifier.Classify(u, models.Reference{Raw: u.String()})
		return !IsFiltered(ref)
	})
	return m, nil
}

// SetWorkers 覆盖页面并发数 (例如按系统资源下调)
func (m *MirrorCrawler) SetWorkers(n int) {
	if n >= 1 {
		m.workers = n
	}
}

// SetProgressInterval 设置进度日志间隔, <=0 关闭
func (m *MirrorCrawler) SetProgressInterval(d time.Duration) {
	m.progressInterval = d
}

// Run 执行镜像,直到工作队列耗尽或ctx取消
// ctx取消后worker不再领取新页面,正在处理的页面会完成
// 只有启动失败才返回错误,页面和资源的失败体现在统计和失败列表中
func (m *MirrorCrawler) Run(ctx context.Context) (models.TaskStats, error) {
	startTime := time.Now()

	utils.Infof("🌐 镜像模式启动")
	utils.Infof("种子URL: %s", m.seed.String())
	utils.Infof("输出目录: %s", m.root)
	utils.Infof("并发数: %d", m.workers)
	if len(m.config.RejectTypes) > 0 {
		utils.Infof("拒绝扩展名: %s", strings.Join(m.config.RejectTypes, ","))
	}
	if len(m.config.ExcludeDirs) > 0 {
		utils.Infof("排除目录: %s", strings.Join(m.config.ExcludeDirs, ","))
	}

	if err := m.queue.Push(models.URLItem{URL: URLKey(m.seed)}); err != nil {
		return models.TaskStats{}, fmt.Errorf("种子入队失败: %w", err)
	}

	// 进度监控goroutine
	done := make(chan struct{})
	if m.progressInterval > 0 {
		go m.reportProgress(done)
	}

	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			m.worker(ctx, id)
		}(i)
	}
	wg.Wait()
	close(done)

	if ctx.Err() != nil {
		utils.Warnf("镜像已取消,%d 个页面未处理", m.queue.PendingCount())
		m.queue.Close()
	}

	m.mu.Lock()
	m.stats.Duration = time.Since(startTime).Seconds()
	stats := m.stats
	m.mu.Unlock()

	utils.Infof("✅ 镜像完成")
	utils.Infof("页面: 成功 %d, 失败 %d, 跳过 %d", stats.PagesMirrored, stats.PagesFailed, stats.PagesSkipped)
	utils.Infof("资源: 成功 %d (样式表 %d), 失败 %d, 过滤 %d",
		stats.ResourcesSaved, stats.StylesheetResources, stats.ResourcesFailed, stats.FilteredReferences)
	utils.Infof("总大小: %s, 总耗时: %.2f秒", utils.FormatSize(stats.TotalSize), stats.Duration)

	return stats, nil
}

// worker 从队列领取页面直到队列结束或ctx取消
func (m *MirrorCrawler) worker(ctx context.Context, id int) {
	for {
		item, ok := m.queue.Pop(ctx)
		if !ok {
			log.Debug().Int("worker", id).Msg("worker退出")
			return
		}
		m.processPage(ctx, item)
		m.queue.Done()
	}
}

// reportProgress 定期输出进度
func (m *MirrorCrawler) reportProgress(done <-chan struct{}) {
	ticker := time.NewTicker(m.progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			stats := m.Stats()
			utils.Infof("进度: 已镜像 %d 个页面, 已保存 %d 个资源, 失败 %d 个, 处理中 %d 个, 队列中 %d 个",
				stats.PagesMirrored, stats.ResourcesSaved, stats.Failures(), m.queue.ActiveCount(), m.queue.PendingCount())
		}
	}
}

// pageState 记录页面状态流转
func pageState(pageURL string, state models.PageState) {
	log.Debug().Str("url", pageURL).Str("state", string(state)).Msg("页面状态")
}

// processPage 处理单个页面
func (m *MirrorCrawler) processPage(ctx context.Context, item models.URLItem) {
	// Fetching
	pageState(item.URL, models.PageStateFetching)
	pageURL, err := url.Parse(item.URL)
	if err != nil {
		m.pageFailed(item, err)
		return
	}

	if !m.visited.Visit(PageKey(pageURL)) {
		m.mu.Lock()
		m.stats.PagesSkipped++
		m.mu.Unlock()
		log.Debug().Str("url", item.URL).Msg("页面已访问,跳过")
		pageState(item.URL, models.PageStateDone)
		return
	}

	body, err := m.fetcher.Fetch(item.URL)
	if err != nil {
		m.pageFailed(item, err)
		return
	}
	utils.Infof("📄 页面 [%d]: %s (%s)", item.Depth, item.URL, utils.FormatSize(int64(len(body))))

	pageDir := PageDir(pageURL)
	localDir := filepath.Join(m.root, filepath.FromSlash(pageDir))

	// Parsing
	pageState(item.URL, models.PageStateParsing)
	refs, err := ExtractReferences(body)
	if err != nil {
		utils.Warnf("页面无法解析,按原样保存 [%s]: %v", item.URL, err)
		refs = &PageReferences{}
	}

	// Classifying
	pageState(item.URL, models.PageStateClassifying)
	var resources, subpages []models.Reference
	filtered := 0
	for _, ref := range refs.References {
		ref = m.classifier.Classify(pageURL, ref)
		switch ref.Kind {
		case models.RefResource:
			resources = append(resources, ref)
		case models.RefSubpage:
			subpages = append(subpages, ref)
		default:
			if IsFiltered(ref) {
				filtered++
			}
			log.Debug().Str("page", item.URL).Str("ref", ref.Raw).Str("reason", ref.Reason).Msg("忽略引用")
		}
	}

	// Dispatching
	pageState(item.URL, models.PageStateDispatching)
	working := string(body)
	working = m.dispatchResources(resources, localDir, working)

	if m.config.ConvertLinks {
		for _, ref := range subpages {
			working = RewriteLink(working, ref.Raw, RelativePageLink(pageDir, PageDir(ref.Absolute)))
		}
	}

	for _, block := range refs.Stylesheets {
		result := m.styles.Process(block, pageURL, localDir)
		m.mu.Lock()
		m.stats.StylesheetResources += result.Saved
		m.stats.ResourcesSaved += result.Saved
		m.stats.ResourcesFailed += len(result.Failed)
		m.stats.TotalSize += result.Bytes
		m.failed = append(m.failed, result.Failed...)
		m.mu.Unlock()

		if m.config.ConvertLinks && result.Text != block {
			working = replaceStylesheet(working, block, result)
		}
	}

	// Persisting
	pageState(item.URL, models.PageStatePersisting)
	content := body
	if m.config.ConvertLinks {
		content = []byte(working)
	}
	indexPath := filepath.Join(localDir, "index.html")
	if err := m.fetcher.Save(content, indexPath); err != nil {
		m.pageFailed(item, err)
	} else {
		m.mu.Lock()
		m.stats.PagesMirrored++
		m.stats.TotalSize += int64(len(content))
		m.stats.FilteredReferences += filtered
		m.mu.Unlock()
		log.Debug().Str("url", item.URL).Str("path", indexPath).Msg("页面已保存")
	}

	// Recursing
	pageState(item.URL, models.PageStateRecursing)
	if ctx.Err() != nil {
		if len(subpages) > 0 {
			log.Debug().Str("url", item.URL).Int("subpages", len(subpages)).Msg("已取消,不再加入子页面")
		}
	} else {
		queued := make(map[string]bool, len(subpages))
		for _, ref := range subpages {
			page := PageKey(ref.Absolute)
			if queued[page] {
				continue
			}
			queued[page] = true
			next := URLKey(ref.Absolute)
			if err := m.queue.Push(models.URLItem{URL: next, Depth: item.Depth + 1, SourceURL: item.URL}); err != nil {
				log.Debug().Err(err).Str("url", next).Msg("子页面入队失败")
			}
		}
	}

	pageState(item.URL, models.PageStateDone)
}

// resourceResult 一个资源保存路径对应的下载结果
type resourceResult struct {
	url  string
	rel  string
	size int
	err  error
	raws []string
}

// dispatchResources 并发下载页面的资源,全部完成后按发现顺序改写链接
// 同一页面内保存路径相同的资源只下载一次
func (m *MirrorCrawler) dispatchResources(resources []models.Reference, localDir, working string) string {
	if len(resources) == 0 {
		return working
	}

	byPath := make(map[string]*resourceResult)
	var ordered []*resourceResult
	for _, ref := range resources {
		rel := ResourcePath(ref.Absolute)
		if rel == "" {
			continue
		}
		res, ok := byPath[rel]
		if !ok {
			res = &resourceResult{url: ref.Absolute.String(), rel: rel}
			byPath[rel] = res
			ordered = append(ordered, res)
		}
		res.raws = append(res.raws, ref.Raw)
	}

	var g errgroup.Group
	g.SetLimit(m.resourceWorkers)
	for _, res := range ordered {
		res := res
		g.Go(func() error {
			data, err := m.fetcher.Fetch(res.url)
			if err == nil {
				err = m.fetcher.Save(data, filepath.Join(localDir, filepath.FromSlash(res.rel)))
			}
			res.size = len(data)
			res.err = err
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range ordered {
		if res.err != nil {
			utils.Warnf("资源下载失败 [%s]: %v", res.url, res.err)
			m.mu.Lock()
			m.stats.ResourcesFailed++
			m.failed = append(m.failed, models.FailedItem{
				URL:       res.url,
				Kind:      "resource",
				ErrorType: models.ErrorType(res.err),
				ErrorMsg:  res.err.Error(),
			})
			m.mu.Unlock()
			continue
		}

		m.mu.Lock()
		m.stats.ResourcesSaved++
		m.stats.TotalSize += int64(res.size)
		m.mu.Unlock()
		log.Debug().Str("url", res.url).Str("path", res.rel).Msg("资源已保存")

		if m.config.ConvertLinks {
			for _, raw := range res.raws {
				working = RewriteLink(working, raw, "./"+res.rel)
			}
		}
	}
	return working
}

// replaceStylesheet 用改写后的样式块替换页面中的原样式块
// 解析器可能改变原文(如换行符),找不到原文时逐个改写url(...)引用
func replaceStylesheet(working, block string, result StylesheetResult) string {
	if strings.Contains(working, block) {
		return strings.ReplaceAll(working, block, result.Text)
	}
	for original, filename := range result.Replacements {
		working = RewriteLink(working, original, filename)
	}
	return working
}

// pageFailed 记录页面失败,该分支中止
func (m *MirrorCrawler) pageFailed(item models.URLItem, err error) {
	utils.Warnf("页面镜像失败 [%s]: %v", item.URL, err)
	pageState(item.URL, models.PageStateFailed)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.PagesFailed++
	m.failed = append(m.failed, models.FailedItem{
		URL:       item.URL,
		Kind:      "page",
		ErrorType: models.ErrorType(err),
		ErrorMsg:  err.Error(),
	})
	if item.Depth == 0 && m.seedErr == nil {
		m.seedErr = err
	}
}

// FailedItems 返回失败列表的副本
func (m *MirrorCrawler) FailedItems() []models.FailedItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.FailedItem, len(m.failed))
	copy(out, m.failed)
	return out
}

// SeedError 种子页面失败时返回其错误
func (m *MirrorCrawler) SeedError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seedErr
}

// Stats 返回当前统计
func (m *MirrorCrawler) Stats() models.TaskStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Visited 已访问的页面数
func (m *MirrorCrawler) Visited() int {
	return m.visited.Len()
}
