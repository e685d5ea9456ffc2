package core

import (
	"errors"
	"testing"

	"github.com/RecoveryAshes/SiteMirror/internal/crawlers"
	"github.com/RecoveryAshes/SiteMirror/internal/models"
)

func TestHeaderManager_GetMergedHeaders(t *testing.T) {
	t.Run("默认头部存在", func(t *testing.T) {
		hm, err := NewHeaderManager("", nil, nil)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		headers := hm.GetMergedHeaders()
		if ua := headers.Get("User-Agent"); ua != crawlers.DefaultUserAgent {
			t.Errorf("期望默认User-Agent=%q, 实际=%q", crawlers.DefaultUserAgent, ua)
		}
		if headers.Get("Accept") != "*/*" {
			t.Error("期望默认Accept为 */*")
		}
		if headers.Get("Accept-Encoding") != "gzip, deflate, br" {
			t.Error("期望默认Accept-Encoding为 gzip, deflate, br")
		}
	})

	t.Run("配置的User-Agent作为默认值", func(t *testing.T) {
		hm, err := NewHeaderManager("MirrorBot/2.0", nil, nil)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}
		if ua := hm.GetMergedHeaders().Get("User-Agent"); ua != "MirrorBot/2.0" {
			t.Errorf("期望User-Agent='MirrorBot/2.0', 实际='%s'", ua)
		}
	})

	t.Run("优先级 默认<配置<命令行", func(t *testing.T) {
		configHeaders := map[string]string{
			"Accept":   "text/html",
			"X-Source": "config",
			"X-Config": "yes",
		}
		cliHeaders := []string{"X-Source: cli"}

		hm, err := NewHeaderManager("", configHeaders, cliHeaders)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		headers := hm.GetMergedHeaders()
		if headers.Get("Accept") != "text/html" {
			t.Errorf("配置应覆盖默认Accept, 实际=%q", headers.Get("Accept"))
		}
		if headers.Get("X-Source") != "cli" {
			t.Errorf("命令行应覆盖配置, 实际=%q", headers.Get("X-Source"))
		}
		if headers.Get("X-Config") != "yes" {
			t.Error("配置头部丢失")
		}
	})

	t.Run("命令行格式错误", func(t *testing.T) {
		if _, err := NewHeaderManager("", nil, []string{"NoColon"}); err == nil {
			t.Error("期望缺少冒号时返回错误")
		}
	})
}

func TestHeaderManager_GetHeaders(t *testing.T) {
	t.Run("合法头部", func(t *testing.T) {
		hm, err := NewHeaderManager("", nil, []string{"X-Custom: value1"})
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		headers, err := hm.GetHeaders()
		if err != nil {
			t.Fatalf("GetHeaders失败: %v", err)
		}
		if headers.Get("X-Custom") != "value1" {
			t.Error("X-Custom未正确设置")
		}

		// 返回副本,修改不影响后续调用
		headers.Set("X-Custom", "changed")
		again, _ := hm.GetHeaders()
		if again.Get("X-Custom") != "value1" {
			t.Error("GetHeaders应返回副本")
		}
	})

	t.Run("禁止头部被拒绝", func(t *testing.T) {
		hm, err := NewHeaderManager("", map[string]string{"Host": "evil.com"}, nil)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		_, err = hm.GetHeaders()
		var validationErr *models.ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("期望ValidationError, 实际: %v", err)
		}
		if validationErr.HeaderName != "Host" {
			t.Errorf("期望HeaderName=Host, 实际=%s", validationErr.HeaderName)
		}
	})

	t.Run("用户不能覆盖Accept-Encoding", func(t *testing.T) {
		hm, err := NewHeaderManager("", nil, []string{"Accept-Encoding: identity"})
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}
		if _, err := hm.GetHeaders(); err == nil {
			t.Error("期望Accept-Encoding被拒绝")
		}
	})

	t.Run("非法值", func(t *testing.T) {
		hm, err := NewHeaderManager("", nil, []string{"X-Bad: line\x01break"})
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}
		if err := hm.Validate(); err == nil {
			t.Error("期望控制字符被拒绝")
		}
	})
}

func TestHeaderManager_GetSafeHeaders(t *testing.T) {
	cliHeaders := []string{
		"Authorization: Bearer secret-token-12345",
		"X-API-Key: api-key-67890",
		"X-Plain: visible",
	}

	hm, err := NewHeaderManager("", nil, cliHeaders)
	if err != nil {
		t.Fatalf("创建HeaderManager失败: %v", err)
	}

	safe := hm.GetSafeHeaders()
	if safe["Authorization"] != "Bearer ***" {
		t.Errorf("Authorization未脱敏: %s", safe["Authorization"])
	}
	if safe["X-Api-Key"] == "api-key-67890" {
		t.Errorf("X-API-Key未脱敏: %s", safe["X-Api-Key"])
	}
	if safe["X-Plain"] != "visible" {
		t.Errorf("普通头部不应脱敏: %s", safe["X-Plain"])
	}
}
