package models

import (
	"fmt"
	"net/http"
	"strings"
)

// CliHeaders -H 传入的头部, 每项为 "Name: Value"
type CliHeaders []string

// Parse 解析为http.Header, 同名头部以最后一次出现为准
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header, len(ch))
	for i, line := range ch {
		name, value, err := ParseHeaderLine(line)
		if err != nil {
			return nil, fmt.Errorf("-H 第%d项 %q: %w", i+1, line, err)
		}
		result.Set(name, value)
	}
	return result, nil
}

// ParseHeaderLine 按第一个冒号拆分头部行, 名称和值去掉首尾空白
func ParseHeaderLine(line string) (name, value string, err error) {
	name, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", fmt.Errorf("缺少冒号, 应为 'Name: Value'")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("头部名称为空")
	}
	return name, strings.TrimSpace(value), nil
}

// HeaderProvider 镜像引擎和下载器在每个请求上应用的头部来源
type HeaderProvider interface {
	GetHeaders() (http.Header, error)
}

// StaticHeaders 固定头部, 用于测试和库调用
type StaticHeaders http.Header

// GetHeaders 返回副本
func (h StaticHeaders) GetHeaders() (http.Header, error) {
	return http.Header(h).Clone(), nil
}

// ValidationError 自定义头部不合法
type ValidationError struct {
	Field      string // "name" 或 "value"
	HeaderName string
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	part := "值"
	if e.Field == "name" {
		part = "名称"
	}
	msg := fmt.Sprintf("HTTP头部 %q 的%s无效: %s", e.HeaderName, part, e.Reason)
	if e.Suggestion != "" {
		msg += "; " + e.Suggestion
	}
	return msg
}

// ConfigError 配置文件无法读取或取值非法
type ConfigError struct {
	FilePath string
	Cause    error
}

func (e *ConfigError) Error() string {
	if e.FilePath == "" {
		return fmt.Sprintf("配置错误: %v", e.Cause)
	}
	return fmt.Sprintf("配置文件 %s: %v", e.FilePath, e.Cause)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}
