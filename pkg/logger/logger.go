package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02 15:04:05"

var log *logrus.Logger

// Config 日志配置
type Config struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"` // console | file | both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
	Compress   bool   `json:"compress"`
}

// Init 初始化全局日志；配置有误时保留原实例
func Init(config Config) error {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetFormatter(newFormatter(config.Format))

	w, err := openOutput(config)
	if err != nil {
		return err
	}
	l.SetOutput(w)

	log = l
	return nil
}

func newFormatter(format string) logrus.Formatter {
	if strings.EqualFold(format, "json") {
		return &logrus.JSONFormatter{TimestampFormat: timestampFormat, DisableHTMLEscape: true}
	}
	return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: timestampFormat}
}

// openOutput 控制台走 stderr，stdout 留给运行结果
func openOutput(config Config) (io.Writer, error) {
	output := strings.ToLower(config.Output)
	if output == "" {
		output = "console"
	}

	var writers []io.Writer
	switch output {
	case "console":
		return os.Stderr, nil
	case "file", "both":
		if config.FilePath == "" {
			return nil, fmt.Errorf("log file_path is required for output %q", output)
		}
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	default:
		return nil, fmt.Errorf("unknown log output %q", config.Output)
	}
	if output == "both" {
		writers = append(writers, os.Stderr)
	}
	return io.MultiWriter(writers...), nil
}

// GetLogger 获取日志实例；未初始化时输出到 stderr
func GetLogger() *logrus.Logger {
	if log == nil {
		log = logrus.New()
		log.SetOutput(os.Stderr)
	}
	return log
}

// SetOutput 替换输出目标
func SetOutput(w io.Writer) {
	GetLogger().SetOutput(w)
}

// Info 信息日志
func Info(args ...interface{}) {
	GetLogger().Info(args...)
}

// Warn 警告日志
func Warn(args ...interface{}) {
	GetLogger().Warn(args...)
}

// Errorf 格式化错误日志
func Errorf(format string, args ...interface{}) {
	GetLogger().Errorf(format, args...)
}

// WithField 添加字段
func WithField(key string, value interface{}) *logrus.Entry {
	return GetLogger().WithField(key, value)
}

// WithFields 添加多个字段
func WithFields(fields logrus.Fields) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

// WithKV 以键值对形式追加字段
func WithKV(kv ...interface{}) *logrus.Entry {
	return GetLogger().WithFields(KV(kv...))
}

// KV 将 key, value 交替参数转换为 logrus.Fields；奇数个参数时最后一个键记为 "!BADKEY"
func KV(kv ...interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if i+1 >= len(kv) {
			fields["!BADKEY"] = key
			break
		}
		fields[key] = kv[i+1]
	}
	return fields
}

// ForDevice 携带运行与设备标识的日志条目
func ForDevice(runID, hostname string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{"run_id": runID, "host": hostname})
}
