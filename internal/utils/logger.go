package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultBackgroundLogFile 后台模式下的日志输出文件
const DefaultBackgroundLogFile = "wget-log"

// Logger 全局日志器
var Logger zerolog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

var (
	// statusOut 状态行输出目标(前台为stdout,后台为日志文件)
	statusOut io.Writer = os.Stdout
	statusMu  sync.Mutex

	// sinkFile 后台模式打开的日志文件
	sinkFile *os.File
)

// LogConfig 日志配置
type LogConfig struct {
	Level          string // 日志级别: trace, debug, info, warn, error, fatal, panic
	LogDir         string // 日志目录
	MaxSize        int    // 单个日志文件最大大小(MB)
	MaxBackups     int    // 保留的旧日志文件数量
	MaxAge         int    // 保留天数
	Compress       bool   // 是否压缩旧日志
	Background     bool   // 后台模式: 终端输出改为追加写入BackgroundFile
	BackgroundFile string // 后台日志文件路径 (默认: wget-log)
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:          "info",
		LogDir:         "logs",
		MaxSize:        10,
		MaxBackups:     3,
		MaxAge:         28,
		Compress:       true,
		BackgroundFile: DefaultBackgroundLogFile,
	}
}

// InitLogger 初始化日志系统
func InitLogger(config LogConfig) error {
	// 创建日志目录
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return err
	}

	// 解析日志级别
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// 主日志文件(带轮转)
	mainLogFile := &lumberjack.Logger{
		Filename:   filepath.Join(config.LogDir, "sitemirror.log"),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	// 错误日志文件(带轮转)
	errorLogFile := &lumberjack.Logger{
		Filename:   filepath.Join(config.LogDir, "sitemirror_error.log"),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	// 终端输出: 前台彩色控制台,后台为纯文本追加文件
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	out := io.Writer(os.Stdout)

	CloseLogger()
	if config.Background {
		sinkPath := config.BackgroundFile
		if sinkPath == "" {
			sinkPath = DefaultBackgroundLogFile
		}
		sink, err := OpenLogSink(sinkPath)
		if err != nil {
			return err
		}
		sinkFile = sink
		consoleWriter.Out = sink
		consoleWriter.NoColor = true
		out = sink
	}

	statusMu.Lock()
	statusOut = out
	statusMu.Unlock()

	// 多输出配置:
	// 1. 控制台或后台日志文件
	// 2. 主日志文件(所有级别)
	// 3. 错误日志文件(仅错误及以上级别)
	multiWriter := zerolog.MultiLevelWriter(
		consoleWriter,
		mainLogFile,
		&FilteredWriter{Writer: errorLogFile, MinLevel: zerolog.ErrorLevel},
	)

	// 初始化全局logger
	Logger = zerolog.New(multiWriter).
		With().
		Timestamp().
		Logger()

	// 设置全局logger
	log.Logger = Logger

	Logger.Debug().
		Str("level", level.String()).
		Str("log_dir", config.LogDir).
		Bool("background", config.Background).
		Msg("日志系统初始化完成")

	return nil
}

// OpenLogSink 以追加模式打开日志文件
// os.File无缓冲,每条记录一次write即落盘
func OpenLogSink(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败 [%s]: %w", path, err)
	}
	return f, nil
}

// CloseLogger 关闭后台日志文件
func CloseLogger() {
	statusMu.Lock()
	defer statusMu.Unlock()
	if sinkFile != nil {
		_ = sinkFile.Close()
		sinkFile = nil
		statusOut = os.Stdout
	}
}

// FilteredWriter 过滤写入器,仅写入指定级别及以上的日志
type FilteredWriter struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

// Write 实现io.Writer接口
func (w *FilteredWriter) Write(p []byte) (n int, err error) {
	return w.Writer.Write(p)
}

// WriteLevel 实现zerolog.LevelWriter接口
func (w *FilteredWriter) WriteLevel(level zerolog.Level, p []byte) (n int, err error) {
	if level >= w.MinLevel {
		return w.Writer.Write(p)
	}
	return len(p), nil
}

// Statusf 输出一行状态信息(wget风格),前台写终端,后台追加到日志文件
func Statusf(format string, args ...interface{}) {
	statusMu.Lock()
	defer statusMu.Unlock()
	fmt.Fprintf(statusOut, format+"\n", args...)
}

// StatusWriter 返回当前状态输出目标
func StatusWriter() io.Writer {
	statusMu.Lock()
	defer statusMu.Unlock()
	return statusOut
}

// Info 快捷方法: 信息日志
func Info(msg string) {
	Logger.Info().Msg(msg)
}

// Infof 快捷方法: 格式化信息日志
func Infof(format string, args ...interface{}) {
	Logger.Info().Msgf(format, args...)
}

// Error 快捷方法: 错误日志
func Error(err error, msg string) {
	Logger.Error().Err(err).Msg(msg)
}

// Errorf 快捷方法: 格式化错误日志
func Errorf(format string, args ...interface{}) {
	Logger.Error().Msgf(format, args...)
}

// Warn 快捷方法: 警告日志
func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

// Warnf 快捷方法: 格式化警告日志
func Warnf(format string, args ...interface{}) {
	Logger.Warn().Msgf(format, args...)
}

// Debug 快捷方法: 调试日志
func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

// Debugf 快捷方法: 格式化调试日志
func Debugf(format string, args ...interface{}) {
	Logger.Debug().Msgf(format, args...)
}
