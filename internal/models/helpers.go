package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ValidateURL 只接受带主机名的http/https绝对URL
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	switch {
	case err != nil:
		return fmt.Errorf("无法解析URL %q: %w", raw, err)
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("不支持的协议 %q, 仅支持http和https", u.Scheme)
	case u.Host == "":
		return fmt.Errorf("URL缺少主机名: %q", raw)
	}
	return nil
}

// newRunID 一次运行的唯一标识
func newRunID() string {
	return uuid.NewString()
}
