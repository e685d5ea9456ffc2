package downloader

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ChunkSize 流式下载的分块大小
const ChunkSize = 32 * 1024

// ParseRateLimit 解析限速参数 "<整数>[k|K|m|M]", 返回字节/秒
// 不带单位时按字节处理
func ParseRateLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("限速参数为空")
	}

	multiplier := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		multiplier = 1024
		s = s[:len(s)-1]
	case 'm', 'M':
		multiplier = 1024 * 1024
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("限速参数无效 %q: 请使用如 200k 或 2M 的格式", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("限速必须大于0")
	}
	if n > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("限速过大: %s", s)
	}
	return n * multiplier, nil
}

// ThrottledReader 按字节速率限流的Reader
// 每读出一块数据,等待 块大小/速率 的时间
type ThrottledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

// NewThrottledReader 创建限流Reader
func NewThrottledReader(ctx context.Context, r io.Reader, bytesPerSec int64) *ThrottledReader {
	limiter := rate.NewLimiter(rate.Limit(bytesPerSec), ChunkSize)
	// 令牌桶初始为满,先清空,使第一块也按速率等待
	limiter.AllowN(time.Now(), ChunkSize)
	return &ThrottledReader{ctx: ctx, r: r, limiter: limiter}
}

// Read 实现io.Reader接口
func (t *ThrottledReader) Read(p []byte) (int, error) {
	if len(p) > ChunkSize {
		p = p[:ChunkSize]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if waitErr := t.limiter.WaitN(t.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
