package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server         ServerConfig                      `mapstructure:"server"`
	Log            LogConfig                         `mapstructure:"log"`
	Executor       ExecutorConfig                    `mapstructure:"executor"`
	Inventory      InventoryConfig                   `mapstructure:"inventory"`
	Credentials    CredentialsConfig                 `mapstructure:"credentials"`
	SSH            SSHConfig                         `mapstructure:"ssh"`
	DeviceDefaults map[string]PlatformDefaultsConfig `mapstructure:"device_defaults"`
	Templates      TemplatesConfig                   `mapstructure:"templates"`
	Report         ReportConfig                      `mapstructure:"report"`
	Database       DatabaseConfig                    `mapstructure:"database"`
	Metrics        MetricsConfig                     `mapstructure:"metrics"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ExecutorConfig 执行器配置
type ExecutorConfig struct {
	// Workers 同时处理的设备数上限
	Workers int `mapstructure:"workers"`
	// GracePeriod 取消后关闭在途会话的等待上限
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// InventoryConfig 清单配置
type InventoryConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
	// Platforms 平台名到设备类别的映射，覆盖内置表
	// 类别取值：exec_cli | config_cli | config_api | controller
	Platforms map[string]string `mapstructure:"platforms"`
}

// CredentialsConfig 凭据解析配置（只保存键名映射，不保存秘密本身）
type CredentialsConfig struct {
	// EnvFile 可选 .env 文件，启动时预加载到秘密源
	EnvFile string `mapstructure:"env_file"`
	// Namespaces 平台名 -> 秘密命名空间前缀，例如 cloudgenix_ion -> CG
	Namespaces map[string]string `mapstructure:"namespaces"`
	// ClassNamespaces 设备类别 -> 秘密命名空间前缀
	ClassNamespaces map[string]string `mapstructure:"class_namespaces"`
	// Extras 额外秘密键名，如 TACACS_KEY、SNMP_KEY，供模板渲染使用
	Extras []string `mapstructure:"extras"`
}

// SSHConfig SSH 配置
type SSHConfig struct {
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
}

// TemplatesConfig 配置模板目录
type TemplatesConfig struct {
	Dir string `mapstructure:"dir"`
}

// ReportConfig 结果输出配置
type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	// HostFiles 是否按设备写入 <host>-result.txt
	HostFiles bool `mapstructure:"host_files"`
	// JSON 是否写入整次运行的 JSON 报告
	JSON  bool        `mapstructure:"json"`
	Minio MinioConfig `mapstructure:"minio"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
	Prefix    string `mapstructure:"prefix"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AutoInteractionConfig 自动交互项
type AutoInteractionConfig struct {
	ExpectOutput string `mapstructure:"except_output"`
	AutoSend     string `mapstructure:"command_auto_send"`
}

// PlatformDefaultsConfig 平台交互参数，未设置的字段沿用内置默认
type PlatformDefaultsConfig struct {
	PromptSuffixes    []string                `mapstructure:"prompt_suffixes"`
	DisablePagingCmds []string                `mapstructure:"disable_paging_cmds"`
	AutoInteractions  []AutoInteractionConfig `mapstructure:"auto_interactions"`
	ErrorHints        []string                `mapstructure:"error_hints"`
	EnableRequired    bool                    `mapstructure:"enable_required"`
	EnableCLI         string                  `mapstructure:"enable_cli"`
	// 进入/退出配置模式命令
	ConfigModeCLIs []string `mapstructure:"config_mode_clis"`
	ConfigExitCLI  string   `mapstructure:"config_exit_cli"`
	// RunningConfigCLI 读取运行配置的命令
	RunningConfigCLI string `mapstructure:"running_config_cli"`
	// StructuredSuffix 结构化输出后缀，如 " | json"
	StructuredSuffix string `mapstructure:"structured_suffix"`
	// 整体替换配置：前导命令、提交命令、放弃命令
	ReplacePreludeCLIs []string `mapstructure:"replace_prelude_clis"`
	ReplaceCommitCLIs  []string `mapstructure:"replace_commit_clis"`
	ReplaceAbortCLIs   []string `mapstructure:"replace_abort_clis"`
	CommandTimeoutSec  int      `mapstructure:"command_timeout_sec"`
	CommandIntervalMS  int      `mapstructure:"command_interval_ms"`
}

var globalConfig *Config

// Load 加载配置文件；configPath 为空时按默认路径查找，找不到则只用默认值
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	explicit := configPath != ""
	if explicit {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix("NETFLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Credentials.EnvFile = expandEnv(config.Credentials.EnvFile)
	config.Report.Minio.AccessKey = expandEnv(config.Report.Minio.AccessKey)
	config.Report.Minio.SecretKey = expandEnv(config.Report.Minio.SecretKey)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &config
	return &config, nil
}

// Default 返回仅含默认值的配置（测试与无配置文件场景）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/netfleet.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("executor.workers", 20)
	v.SetDefault("executor.grace_period", 5*time.Second)

	v.SetDefault("inventory.dir", "./inventory")
	v.SetDefault("inventory.watch", false)

	v.SetDefault("credentials.env_file", ".env")
	v.SetDefault("credentials.namespaces", map[string]string{"cloudgenix_ion": "CG"})
	v.SetDefault("credentials.extras", []string{"TACACS_KEY", "SNMP_KEY", "ENABLE_SECRET"})

	v.SetDefault("ssh.connect_timeout", 10*time.Second)
	v.SetDefault("ssh.command_timeout", 60*time.Second)
	v.SetDefault("ssh.keep_alive_interval", 30*time.Second)

	v.SetDefault("templates.dir", "./templates")

	v.SetDefault("report.output_dir", "./output")
	v.SetDefault("report.host_files", false)
	v.SetDefault("report.json", false)
	v.SetDefault("report.minio.prefix", "netfleet-runs")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.sqlite.path", "./data/netfleet.db")
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if c.Executor.Workers < 1 {
		return fmt.Errorf("executor.workers must be >= 1, got %d", c.Executor.Workers)
	}
	if c.Executor.GracePeriod < 0 {
		return fmt.Errorf("executor.grace_period must not be negative")
	}
	if c.Report.Minio.Enabled && strings.TrimSpace(c.Report.Minio.Bucket) == "" {
		return fmt.Errorf("report.minio.bucket is required when minio is enabled")
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CommandTimeout 返回平台命令超时：平台配置优先，其次全局 ssh.command_timeout，最后 60s
func (c *Config) CommandTimeout(platform string) time.Duration {
	if dd, ok := c.DeviceDefaults[strings.ToLower(platform)]; ok && dd.CommandTimeoutSec > 0 {
		return time.Duration(dd.CommandTimeoutSec) * time.Second
	}
	if c.SSH.CommandTimeout > 0 {
		return c.SSH.CommandTimeout
	}
	return 60 * time.Second
}

// expandEnv 支持 ${VAR} 形式的取值
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}"))
	}
	return s
}
