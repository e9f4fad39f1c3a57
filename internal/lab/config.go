package lab

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config 模拟实验室配置
type Config struct {
	Listen string `mapstructure:"listen"`
	// Password 所有设备统一的登录密码；用户名即设备名
	Password    string                  `mapstructure:"password"`
	HostKeyFile string                  `mapstructure:"host_key_file"`
	OutputsDir  string                  `mapstructure:"outputs_dir"`
	IdleTimeout int                     `mapstructure:"idle_seconds"`
	MaxConn     int                     `mapstructure:"max_conn"`
	Devices     map[string]DeviceConfig `mapstructure:"devices"`
}

// DeviceConfig 单台模拟设备
type DeviceConfig struct {
	Platform       string            `mapstructure:"platform"`
	EnableRequired bool              `mapstructure:"enable_required"`
	EnableSecret   string            `mapstructure:"enable_secret"`
	RunningConfig  string            `mapstructure:"running_config"`
	Outputs        map[string]string `mapstructure:"outputs"`
	Reject         []string          `mapstructure:"reject"`
}

// LoadConfig 读取实验室 YAML 配置
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetDefault("listen", "127.0.0.1:2222")
	v.SetDefault("password", "lab")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read lab config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lab config: %w", err)
	}
	return &cfg, nil
}
