package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/SiteMirror/internal/config"
	"github.com/RecoveryAshes/SiteMirror/internal/core"
	"github.com/RecoveryAshes/SiteMirror/internal/downloader"
	"github.com/RecoveryAshes/SiteMirror/internal/models"
	"github.com/RecoveryAshes/SiteMirror/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string
	validateConfig bool

	// 镜像参数
	mirror       bool
	reject       string
	exclude      string
	convertLinks bool

	// 下载参数
	outputDocument string
	directory      string
	rateLimit      string
	background     bool
	inputFile      string
	threads        int

	// init-config参数
	forceInit bool

	// 在PersistentPreRunE中加载
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sitemirror [flags] <url>",
	Short: "wget风格的网站镜像和文件下载工具",
	Long: `SiteMirror - wget风格的网站镜像和文件下载工具

支持:
  • 单文件下载 (进度条、限速、后台模式)
  • -i 批量并发下载
  • --mirror 递归镜像同站页面和资源, 可改写链接用于离线浏览
  • 自定义HTTP请求头

示例:
  sitemirror https://example.com/file.zip
  sitemirror -O out.zip -P downloads --rate-limit 200k https://example.com/file.zip
  sitemirror -B https://example.com/big.iso
  sitemirror -i urls.txt --threads 8
  sitemirror --mirror --convert-links -R jpg,gif -X /assets https://example.com/
  sitemirror --validate-config -H "Authorization: Bearer token"

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		appConfig = cfg

		logConfig := utils.LogConfig{
			Level:          cfg.Logging.Level,
			LogDir:         cfg.Logging.LogDir,
			MaxSize:        cfg.Logging.Rotation.MaxSize,
			MaxBackups:     cfg.Logging.Rotation.MaxBackups,
			MaxAge:         cfg.Logging.Rotation.MaxAge,
			Compress:       cfg.Logging.Rotation.Compress,
			Background:     background,
			BackgroundFile: cfg.Logging.BackgroundFile,
		}

		// 命令行参数覆盖配置文件
		if verbose {
			logConfig.Level = "debug"
		}
		if logLevel != "" {
			logConfig.Level = logLevel
		}

		if background {
			fmt.Printf("Output will be written to %q.\n", logConfig.BackgroundFile)
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if cfg.ConfigFile != "" {
			utils.Debugf("使用配置文件: %s", cfg.ConfigFile)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		headerManager, err := core.NewHeaderManager(appConfig.HTTP.UserAgent, appConfig.HTTP.Headers, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		if validateConfig {
			return runValidateConfig(headerManager)
		}

		if len(args) == 0 && inputFile == "" {
			return cmd.Help()
		}

		if !cmd.Flags().Changed("threads") {
			threads = appConfig.Crawl.MaxWorkers
		}
		opts := runOptions{
			args:           args,
			mirror:         mirror,
			reject:         reject,
			exclude:        exclude,
			convertLinks:   convertLinks,
			outputDocument: outputDocument,
			directory:      directory,
			rateLimit:      rateLimit,
			background:     background,
			inputFile:      inputFile,
			threads:        threads,
		}
		rate, err := ValidateFlags(opts)
		if err != nil {
			return err
		}

		// 头部只在启动时校验一次
		if _, err := headerManager.GetHeaders(); err != nil {
			return fmt.Errorf("HTTP头部验证失败: %w", err)
		}

		switch {
		case mirror:
			return runMirror(ctx, args[0], headerManager)
		case inputFile != "":
			return runBatch(ctx, headerManager, rate)
		default:
			return runDownload(ctx, args[0], headerManager, rate)
		}
	},
}

// runValidateConfig 打印合并后的(脱敏)头部
func runValidateConfig(headerManager *core.HeaderManager) error {
	utils.Info("🔍 验证HTTP头部配置...")
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	safeHeaders := headerManager.GetSafeHeaders()
	utils.Info("✅ 配置验证通过!")
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	for name, value := range safeHeaders {
		utils.Infof("  %s: %s", name, value)
	}
	return nil
}

// runMirror 镜像模式
func runMirror(ctx context.Context, seedURL string, headerManager *core.HeaderManager) error {
	mc := appConfig.MirrorConfig(seedURL)
	mc.RejectTypes = models.ParseList(reject)
	mc.ExcludeDirs = models.ParseList(exclude)
	mc.ConvertLinks = convertLinks
	mc.MaxWorkers = threads
	if directory != "" {
		mc.OutputDir = directory
	}

	report, err := core.NewMirrorRunner(appConfig, headerManager).Run(ctx, mc)
	if report != nil {
		utils.Statusf("Mirrored %d pages, %d resources (%s) into %s",
			report.Stats.PagesMirrored, report.Stats.ResourcesSaved,
			utils.FormatSize(report.Stats.TotalSize), report.OutputDir)
	}
	if err != nil {
		return err
	}

	utils.Info("✨ 镜像任务完成!")
	return nil
}

// runBatch -i 批量下载
func runBatch(ctx context.Context, headerManager *core.HeaderManager, rate int64) error {
	urls, err := utils.ReadURLsFromFile(inputFile)
	if err != nil {
		return err
	}

	d := newDownloader(headerManager)
	summary := core.NewBatchDownloader(d, threads, outputDir(), rate).DownloadAll(ctx, urls)
	if summary.SuccessCount == 0 {
		return fmt.Errorf("所有URL下载失败 (%d个)", summary.TotalURLs)
	}
	return nil
}

// runDownload 单文件下载
func runDownload(ctx context.Context, target string, headerManager *core.HeaderManager, rate int64) error {
	d := newDownloader(headerManager)
	_, err := d.Download(ctx, target, downloader.Options{
		OutputName: outputDocument,
		Directory:  outputDir(),
		RateLimit:  rate,
		Background: background,
	})
	if err != nil {
		var statusErr *models.HTTPStatusError
		if errors.As(err, &statusErr) {
			utils.Statusf("ERROR %d: %s", statusErr.StatusCode, statusErr.URL)
		}
		return err
	}
	return nil
}

func newDownloader(headerManager *core.HeaderManager) *downloader.Downloader {
	return downloader.NewDownloader(downloader.Config{
		UserAgent:          appConfig.HTTP.UserAgent,
		Timeout:            appConfig.RequestTimeout(),
		InsecureSkipVerify: appConfig.HTTP.InsecureSkipVerify,
		Headers:            headerManager,
	})
}

// outputDir -P优先, 否则使用配置的输出目录
func outputDir() string {
	if directory != "" {
		return directory
	}
	return appConfig.Output.BaseDir
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("SiteMirror %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "生成默认配置文件",
	Args:  cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteTemplate(path, forceInit); err != nil {
			return err
		}
		fmt.Printf("✅ 配置文件已生成: %s\n", path)
		return nil
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式 (debug日志)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置并打印生效的HTTP头部")

	// 镜像参数
	rootCmd.Flags().BoolVar(&mirror, "mirror", false, "递归镜像整个站点")
	rootCmd.Flags().StringVarP(&reject, "reject", "R", "", "拒绝的文件扩展名,逗号分隔 (如 jpg,gif)")
	rootCmd.Flags().StringVarP(&exclude, "exclude", "X", "", "排除的目录,逗号分隔 (如 /assets,/img)")
	rootCmd.Flags().BoolVar(&convertLinks, "convert-links", false, "改写链接用于离线浏览")

	// 下载参数
	rootCmd.Flags().StringVarP(&outputDocument, "output-document", "O", "", "保存的文件名")
	rootCmd.Flags().StringVarP(&directory, "directory-prefix", "P", "", "保存目录")
	rootCmd.Flags().StringVar(&rateLimit, "rate-limit", "", "下载限速 (如 200k, 2M)")
	rootCmd.Flags().BoolVarP(&background, "background", "B", false, "后台模式,输出写入wget-log")
	rootCmd.Flags().StringVarP(&inputFile, "input-file", "i", "", "包含URL列表的文件")
	rootCmd.Flags().IntVar(&threads, "threads", 4, "并发数 (1-64), 默认取配置 crawl.max_workers")

	initConfigCmd.Flags().BoolVar(&forceInit, "force", false, "覆盖已存在的配置文件")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initConfigCmd)
}

func main() {
	// Ctrl+C/SIGTERM取消ctx, 正在处理的页面完成后退出
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			utils.Warn("收到中断信号, 正在优雅关闭...")
		case <-finished:
		}
	}()

	err := rootCmd.ExecuteContext(ctx)
	close(finished)
	utils.CloseLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		stop()
		os.Exit(1)
	}
}
