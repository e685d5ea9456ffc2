package models

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPStatusError 非2xx响应
// 与传输错误同等对待: 页面分支中止,资源跳过
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

// Error 实现error接口
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// IsHTTPStatusError 判断错误链中是否有HTTPStatusError
func IsHTTPStatusError(err error) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr)
}

// FilesystemError 目录或文件无法创建/写入
type FilesystemError struct {
	Path string
	Op   string
	Err  error
}

// Error 实现error接口
func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s失败 [%s]: %v", e.Op, e.Path, e.Err)
}

// Unwrap 支持errors.Unwrap
func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// ErrorType 返回报告中使用的错误类别
func ErrorType(err error) string {
	var statusErr *HTTPStatusError
	var fsErr *FilesystemError
	switch {
	case errors.As(err, &statusErr):
		return "http_status"
	case errors.As(err, &fsErr):
		return "filesystem"
	default:
		return "transport"
	}
}
