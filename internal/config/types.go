package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述日志、缓存与上游访问等运行时参数。
type GlobalConfig struct {
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	CacheTTL        Duration `mapstructure:"CacheTTL"`
	CoalesceMisses  bool     `mapstructure:"CoalesceMisses"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	MaxRedirects    int      `mapstructure:"MaxRedirects"`
	MaxConnections  int      `mapstructure:"MaxConnections"`
	UserAgent       string   `mapstructure:"UserAgent"`
	StatusListen    string   `mapstructure:"StatusListen"`
}

// MountConfig 决定挂载哪个远端目录、挂到哪里。
type MountConfig struct {
	Origin     string `mapstructure:"Origin"`
	MountPoint string `mapstructure:"MountPoint"`
	AllowOther bool   `mapstructure:"AllowOther"`
	FuseDebug  bool   `mapstructure:"FuseDebug"`
	Foreground bool   `mapstructure:"Foreground"`
}

// Config 是 TOML 文件映射的整体结构，所有键都位于顶层。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Mount  MountConfig  `mapstructure:",squash"`
}

// Option 在校验之前修改配置，用于把 CLI 参数叠加到文件/环境变量之上。
type Option func(*Config)

// WithMount 使用位置参数覆盖 Origin 与 MountPoint，空值不覆盖。
func WithMount(origin, mountPoint string) Option {
	return func(c *Config) {
		if origin != "" {
			c.Mount.Origin = origin
		}
		if mountPoint != "" {
			c.Mount.MountPoint = mountPoint
		}
	}
}

// WithVerbose 打开 debug 日志。
func WithVerbose(verbose bool) Option {
	return func(c *Config) {
		if verbose {
			c.Global.LogLevel = "debug"
		}
	}
}

// WithForeground 标记进程保持在前台运行。
func WithForeground(foreground bool) Option {
	return func(c *Config) {
		if foreground {
			c.Mount.Foreground = true
		}
	}
}
