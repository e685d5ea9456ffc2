package main

import (
	"fmt"

	"github.com/RecoveryAshes/SiteMirror/internal/downloader"
	"github.com/RecoveryAshes/SiteMirror/internal/models"
)

// runOptions 一次命令行调用的参数
type runOptions struct {
	args           []string
	mirror         bool
	reject         string
	exclude        string
	convertLinks   bool
	outputDocument string
	directory      string
	rateLimit      string
	background     bool
	inputFile      string
	threads        int
}

// ValidateURL 验证URL格式
func ValidateURL(urlStr string) error {
	return models.ValidateURL(urlStr)
}

// ValidateFlags 验证命令行标志, 返回解析后的限速(字节/秒)
func ValidateFlags(opts runOptions) (int64, error) {
	if opts.mirror && opts.outputDocument != "" {
		return 0, fmt.Errorf("--mirror 不能与 -O 同时使用")
	}
	if opts.mirror && opts.inputFile != "" {
		return 0, fmt.Errorf("--mirror 不能与 -i 同时使用")
	}
	if opts.inputFile != "" && opts.outputDocument != "" {
		return 0, fmt.Errorf("-i 不能与 -O 同时使用")
	}

	if opts.inputFile == "" {
		if len(opts.args) != 1 {
			return 0, fmt.Errorf("需要且只能指定一个URL, 当前 %d 个", len(opts.args))
		}
		if err := ValidateURL(opts.args[0]); err != nil {
			return 0, fmt.Errorf("无效的目标URL: %w", err)
		}
	} else if len(opts.args) > 0 {
		return 0, fmt.Errorf("使用 -i 时不能再指定URL参数")
	}

	if opts.threads < 1 || opts.threads > 64 {
		return 0, fmt.Errorf("并发数必须在1-64之间,当前值: %d", opts.threads)
	}

	if !opts.mirror && (opts.reject != "" || opts.exclude != "" || opts.convertLinks) {
		return 0, fmt.Errorf("-R/-X/--convert-links 只能在 --mirror 模式下使用")
	}

	var rate int64
	if opts.rateLimit != "" {
		if opts.mirror {
			return 0, fmt.Errorf("--rate-limit 不支持 --mirror 模式")
		}
		parsed, err := downloader.ParseRateLimit(opts.rateLimit)
		if err != nil {
			return 0, err
		}
		rate = parsed
	}
	return rate, nil
}
