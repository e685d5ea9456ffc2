package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/SiteMirror/internal/models"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultConfigFile init-config默认写入的路径
	DefaultConfigFile = "configs/config.yaml"

	// EnvPrefix 环境变量前缀
	EnvPrefix = "SITEMIRROR"

	// MaxConfigFileSize 配置文件最大大小 (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024
)

//go:embed config_template.yaml
var defaultTemplate string

// Config 应用程序配置
type Config struct {
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Output   OutputConfig   `mapstructure:"output"`
	Resource ResourceConfig `mapstructure:"resource"`

	// 实际读取的配置文件 (未找到时为空)
	ConfigFile string `mapstructure:"-"`
}

// CrawlConfig 镜像配置
type CrawlConfig struct {
	MaxWorkers        int  `mapstructure:"max_workers"`
	IncludeSubdomains bool `mapstructure:"include_subdomains"`
	MaxBodySizeMB     int  `mapstructure:"max_body_size_mb"`
}

// HTTPConfig HTTP客户端配置
type HTTPConfig struct {
	Timeout            int               `mapstructure:"timeout"`
	UserAgent          string            `mapstructure:"user_agent"`
	InsecureSkipVerify bool              `mapstructure:"insecure_skip_verify"`
	Headers            map[string]string `mapstructure:"headers"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level          string         `mapstructure:"level"`
	LogDir         string         `mapstructure:"log_dir"`
	BackgroundFile string         `mapstructure:"background_file"`
	Rotation       RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	Report  bool   `mapstructure:"report"`
}

// ResourceConfig 资源限制配置 (MB)
type ResourceConfig struct {
	SafetyReserveMemory int `mapstructure:"safety_reserve_memory"`
	SafetyThreshold     int `mapstructure:"safety_threshold"`
	WorkerMemoryUsage   int `mapstructure:"worker_memory_usage"`
}

// Load 加载配置
// configPath为空时依次搜索 ./configs, ., ~/.sitemirror 下的config.yaml,
// 都不存在时使用默认值. 指定的文件不存在则返回错误.
// 工作目录下的.env会先被加载到环境变量(不覆盖已有变量).
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &models.ConfigError{FilePath: ".env", Cause: err}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if err := validateFileSize(configPath); err != nil {
			return nil, err
		}
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".sitemirror"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			path := configPath
			if path == "" {
				path = v.ConfigFileUsed()
			}
			return nil, &models.ConfigError{FilePath: path, Cause: err}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{
			FilePath: v.ConfigFileUsed(),
			Cause:    fmt.Errorf("配置绑定失败: %w", err),
		}
	}
	config.ConfigFile = v.ConfigFileUsed()

	// 空的headers节点解析为nil
	if config.HTTP.Headers == nil {
		config.HTTP.Headers = make(map[string]string)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 镜像配置默认值
	v.SetDefault("crawl.max_workers", 4)
	v.SetDefault("crawl.include_subdomains", false)
	v.SetDefault("crawl.max_body_size_mb", 0)

	// HTTP配置默认值
	v.SetDefault("http.timeout", 30)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.insecure_skip_verify", false)
	v.SetDefault("http.headers", map[string]string{})

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.background_file", "wget-log")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 输出配置默认值
	v.SetDefault("output.base_dir", ".")
	v.SetDefault("output.report", true)

	// 资源配置默认值 (MB)
	v.SetDefault("resource.safety_reserve_memory", 512)
	v.SetDefault("resource.safety_threshold", 256)
	v.SetDefault("resource.worker_memory_usage", 50)
}

// Validate 验证配置取值
func (c *Config) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return &models.ConfigError{FilePath: c.ConfigFile, Cause: fmt.Errorf(format, args...)}
	}

	if c.Crawl.MaxWorkers < 1 || c.Crawl.MaxWorkers > 64 {
		return fail("crawl.max_workers 必须在1-64之间, 当前 %d", c.Crawl.MaxWorkers)
	}
	if c.Crawl.MaxBodySizeMB < 0 {
		return fail("crawl.max_body_size_mb 不能为负数")
	}
	if c.HTTP.Timeout < 1 || c.HTTP.Timeout > 3600 {
		return fail("http.timeout 必须在1-3600秒之间, 当前 %d", c.HTTP.Timeout)
	}
	return nil
}

// RequestTimeout 请求超时
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.Timeout) * time.Second
}

// MirrorConfig 用配置值填充镜像配置的默认部分
func (c *Config) MirrorConfig(seedURL string) models.MirrorConfig {
	return models.MirrorConfig{
		SeedURL:           seedURL,
		OutputDir:         c.Output.BaseDir,
		MaxWorkers:        c.Crawl.MaxWorkers,
		IncludeSubdomains: c.Crawl.IncludeSubdomains,
		RequestTimeout:    c.HTTP.Timeout,
		MaxBodySizeMB:     c.Crawl.MaxBodySizeMB,
	}
}

// validateFileSize 验证配置文件大小是否在限制内
func validateFileSize(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &models.ConfigError{FilePath: path, Cause: err}
	}
	if info.Size() > MaxConfigFileSize {
		return &models.ConfigError{
			FilePath: path,
			Cause:    fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)", info.Size(), MaxConfigFileSize),
		}
	}
	return nil
}

// WriteTemplate 把配置模板写入path
// 文件已存在且force为false时返回错误
func WriteTemplate(path string, force bool) error {
	if path == "" {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("配置文件已存在: %s (使用 --force 覆盖)", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("无法创建配置目录 [%s]: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(defaultTemplate), 0644); err != nil {
		return fmt.Errorf("无法生成配置文件 [%s]: %w", path, err)
	}
	return nil
}
