package core

import (
	"net/http"
	"sync"

	"github.com/RecoveryAshes/SiteMirror/internal/crawlers"
	"github.com/RecoveryAshes/SiteMirror/internal/models"
	"github.com/RecoveryAshes/SiteMirror/internal/utils"
)

// HeaderManager 管理HTTP请求头部
// 优先级: 默认 < 配置文件 < 命令行
// 实现 HeaderProvider 接口
type HeaderManager struct {
	// defaults 系统默认头部
	defaults http.Header

	// config 配置文件 http.headers 中的头部
	config http.Header

	// cli 命令行 -H 传入的头部
	cli http.Header

	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor

	// 校验只做一次,结果缓存
	once     sync.Once
	merged   http.Header
	validErr error
}

// NewHeaderManager 创建头部管理器
// 参数:
//   - userAgent: 默认User-Agent (为空时使用 crawlers.DefaultUserAgent)
//   - configHeaders: 配置文件中的头部
//   - cliHeaders: 命令行传递的 "Name: Value" 列表
//
// 命令行头部格式错误时返回错误
func NewHeaderManager(userAgent string, configHeaders map[string]string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults:  getDefaultHeaders(userAgent),
		config:    make(http.Header),
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
	}

	for name, value := range configHeaders {
		hm.config.Set(name, value)
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	} else {
		hm.cli = make(http.Header)
	}

	if len(hm.config) > 0 {
		utils.Debugf("加载了%d个配置文件头部: %v", len(hm.config), hm.redactor.Redact(hm.config))
	}
	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
func getDefaultHeaders(userAgent string) http.Header {
	if userAgent == "" {
		userAgent = crawlers.DefaultUserAgent
	}
	return http.Header{
		"User-Agent":      []string{userAgent},
		"Accept":          []string{"*/*"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// Validate 验证配置文件和命令行头部
// 默认头部由程序提供,不参与校验 (Accept-Encoding对用户是禁止头部)
func (hm *HeaderManager) Validate() error {
	if err := hm.validator.Validate(hm.config); err != nil {
		utils.Errorf("配置文件头部验证失败: %v", err)
		return err
	}
	if err := hm.validator.Validate(hm.cli); err != nil {
		utils.Errorf("命令行头部验证失败: %v", err)
		return err
	}

	utils.Debugf("所有HTTP头部验证通过")
	return nil
}

// GetMergedHeaders 按优先级合并头部 (default < config < cli)
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = append([]string(nil), values...)
		}
	}
	return result
}

// GetSafeHeaders 返回脱敏后的合并头部 (用于日志和 --validate-config)
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// GetHeaders 实现 HeaderProvider 接口
// 首次调用时校验, 之后返回缓存结果的副本
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	hm.once.Do(func() {
		if err := hm.Validate(); err != nil {
			hm.validErr = err
			return
		}
		hm.merged = hm.GetMergedHeaders()
	})
	if hm.validErr != nil {
		return nil, hm.validErr
	}
	return hm.merged.Clone(), nil
}
