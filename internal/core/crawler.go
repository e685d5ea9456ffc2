package core

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/SiteMirror/internal/config"
	"github.com/RecoveryAshes/SiteMirror/internal/crawlers"
	"github.com/RecoveryAshes/SiteMirror/internal/models"
	"github.com/RecoveryAshes/SiteMirror/internal/utils"
)

// MirrorRunner 镜像运行协调器
// 职责: 组装抓取器和镜像驱动, 按系统资源限制并发, 运行后生成报告
type MirrorRunner struct {
	cfg     *config.Config
	headers models.HeaderProvider
	monitor *crawlers.ResourceMonitor
}

// NewMirrorRunner 创建镜像运行协调器
func NewMirrorRunner(cfg *config.Config, headers models.HeaderProvider) *MirrorRunner {
	const mb = 1024 * 1024
	return &MirrorRunner{
		cfg:     cfg,
		headers: headers,
		monitor: crawlers.NewResourceMonitor(crawlers.ResourceMonitorConfig{
			SafetyReserveMemory: int64(cfg.Resource.SafetyReserveMemory) * mb,
			SafetyThreshold:     int64(cfg.Resource.SafetyThreshold) * mb,
			WorkerMemoryUsage:   int64(cfg.Resource.WorkerMemoryUsage) * mb,
		}),
	}
}

// Run 执行一次镜像
// 执行流程:
//  1. 校验配置并创建运行任务
//  2. 按可用内存/CPU下调并发数
//  3. 运行镜像驱动直到队列耗尽或ctx取消
//  4. 生成报告 (output.report 开启时)
//
// 种子页面失败时返回报告和错误
func (r *MirrorRunner) Run(ctx context.Context, mc models.MirrorConfig) (*models.MirrorReport, error) {
	task, err := models.NewMirrorTask(mc)
	if err != nil {
		return nil, err
	}

	workers := r.monitor.CalculateMaxWorkers(mc.MaxWorkers)
	if workers < mc.MaxWorkers {
		utils.Warnf("系统资源不足,并发数从 %d 下调为 %d", mc.MaxWorkers, workers)
	}

	fetcher, err := crawlers.NewFetcher(crawlers.FetcherConfig{
		OutputRoot:         mc.OutputDir,
		UserAgent:          r.cfg.HTTP.UserAgent,
		Timeout:            r.cfg.RequestTimeout(),
		MaxBodySize:        mc.MaxBodySizeMB * 1024 * 1024,
		Parallelism:        workers,
		InsecureSkipVerify: r.cfg.HTTP.InsecureSkipVerify,
		Headers:            r.headers,
	})
	if err != nil {
		return nil, fmt.Errorf("创建抓取器失败: %w", err)
	}

	crawler, err := crawlers.NewMirrorCrawler(mc, fetcher)
	if err != nil {
		return nil, err
	}
	crawler.SetWorkers(workers)

	utils.Infof("🚀 开始镜像任务 [%s]", task.ID)
	stats, err := crawler.Run(ctx)
	if err != nil {
		return nil, err
	}
	task.Complete(stats)

	report := &models.MirrorReport{
		RunID:       task.ID,
		SeedURL:     task.SeedURL,
		Domain:      task.Domain,
		OutputDir:   mc.OutputDir,
		StartTime:   task.CreatedAt,
		EndTime:     *task.CompletedAt,
		Duration:    task.CompletedAt.Sub(task.CreatedAt).Seconds(),
		Stats:       stats,
		FailedItems: crawler.FailedItems(),
		Config:      mc,
	}

	if r.cfg.Output.Report {
		reporter := utils.NewReporter(r.cfg.Logging.LogDir)
		if _, err := reporter.GenerateReport(report); err != nil {
			utils.Warnf("生成报告失败: %v", err)
		}
	}

	if ctx.Err() != nil {
		utils.Warnf("⚠️  镜像被中断, 已处理 %d 个页面", crawler.Visited())
	}

	if seedErr := crawler.SeedError(); seedErr != nil {
		return report, fmt.Errorf("种子页面镜像失败: %w", seedErr)
	}
	return report, nil
}

// elapsed 格式化耗时
func elapsed(start time.Time) string {
	return fmt.Sprintf("%.2f秒", time.Since(start).Seconds())
}
