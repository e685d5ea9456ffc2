package core

import (
	"context"
	"sync"
	"time"

	"github.com/RecoveryAshes/SiteMirror/internal/downloader"
	"github.com/RecoveryAshes/SiteMirror/internal/models"
	"github.com/RecoveryAshes/SiteMirror/internal/utils"
	"golang.org/x/sync/errgroup"
)

// FileDownloader 单文件下载接口, 由 downloader.Downloader 实现
type FileDownloader interface {
	Download(ctx context.Context, rawURL string, opts downloader.Options) (*downloader.Result, error)
}

// BatchDownloader 批量下载器 (-i)
// 并发下载URL列表, 单个失败不影响其他URL
type BatchDownloader struct {
	fetcher   FileDownloader
	threads   int
	directory string
	rateLimit int64
}

// BatchResult 单个URL的下载结果
type BatchResult struct {
	URL      string
	Name     string
	Path     string
	Bytes    int64
	Error    error
	Duration float64
}

// BatchSummary 批量下载摘要
type BatchSummary struct {
	TotalURLs     int
	SuccessCount  int
	FailCount     int
	TotalSize     int64
	TotalDuration float64
	Results       []BatchResult
}

// NewBatchDownloader 创建批量下载器
func NewBatchDownloader(fetcher FileDownloader, threads int, directory string, rateLimit int64) *BatchDownloader {
	if threads < 1 {
		threads = 1
	}
	return &BatchDownloader{
		fetcher:   fetcher,
		threads:   threads,
		directory: directory,
		rateLimit: rateLimit,
	}
}

// DownloadAll 下载URL列表
// 结果按输入顺序排列; ctx取消后未开始的URL记为失败
func (bd *BatchDownloader) DownloadAll(ctx context.Context, urls []string) *BatchSummary {
	startTime := time.Now()
	utils.Infof("🚀 开始批量下载: %d个URL, 并发 %d", len(urls), bd.threads)

	summary := &BatchSummary{
		TotalURLs: len(urls),
		Results:   make([]BatchResult, len(urls)),
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(bd.threads)

	for i, target := range urls {
		i, target := i, target
		g.Go(func() error {
			result := bd.downloadOne(ctx, target)

			mu.Lock()
			summary.Results[i] = result
			if result.Error == nil {
				summary.SuccessCount++
				summary.TotalSize += result.Bytes
				utils.Statusf("Finished downloading %s", result.Name)
			} else {
				summary.FailCount++
				utils.Statusf("Error downloading %s: %v", result.Name, result.Error)
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	summary.TotalDuration = time.Since(startTime).Seconds()
	bd.printSummary(summary, startTime)
	return summary
}

// downloadOne 下载单个URL
func (bd *BatchDownloader) downloadOne(ctx context.Context, target string) BatchResult {
	start := time.Now()
	result := BatchResult{URL: target, Name: downloader.FileNameFromURL(target)}

	if err := ctx.Err(); err != nil {
		result.Error = err
		return result
	}

	res, err := bd.fetcher.Download(ctx, target, downloader.Options{
		Directory: bd.directory,
		RateLimit: bd.rateLimit,
		Quiet:     true,
	})
	result.Duration = time.Since(start).Seconds()
	if err != nil {
		result.Error = err
		utils.Debugf("下载失败 [%s] (%s): %v", target, models.ErrorType(err), err)
		return result
	}

	result.Path = res.Path
	result.Bytes = res.Bytes
	return result
}

// printSummary 打印批量下载摘要
func (bd *BatchDownloader) printSummary(summary *BatchSummary, start time.Time) {
	utils.Statusf("Download finished: %d/%d files, %s", summary.SuccessCount, summary.TotalURLs, utils.FormatSize(summary.TotalSize))

	utils.Info("==================================================")
	utils.Info("📊 批量下载摘要")
	utils.Infof("总URL数: %d", summary.TotalURLs)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("⏱️  总耗时: %s", elapsed(start))
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("失败的URL:")
		for _, result := range summary.Results {
			if result.Error != nil {
				utils.Warnf("  - %s: %v", result.URL, result.Error)
			}
		}
	}
}
