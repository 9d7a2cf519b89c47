package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量覆盖的前缀，例如 INDEXFS_CACHETTL=120。
const EnvPrefix = "INDEXFS"

// Load 读取可选的 TOML 配置文件与环境变量，注入默认值，叠加 opts 后执行校验。
// path 为空时只使用默认值与环境变量。
func Load(path string, opts ...Option) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	for _, opt := range opts {
		opt(&cfg)
	}
	applyGlobalDefaults(&cfg.Global)
	cfg.Mount.Origin = normalizeOrigin(cfg.Mount.Origin)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absMount, err := filepath.Abs(cfg.Mount.MountPoint)
	if err != nil {
		return nil, fmt.Errorf("无法解析挂载目录: %w", err)
	}
	cfg.Mount.MountPoint = absMount

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Origin", "")
	v.SetDefault("MountPoint", "")
	v.SetDefault("AllowOther", false)
	v.SetDefault("FuseDebug", false)
	v.SetDefault("Foreground", false)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheTTL", 60)
	v.SetDefault("CoalesceMisses", true)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("MaxRedirects", 10)
	v.SetDefault("MaxConnections", 16)
	v.SetDefault("UserAgent", "")
	v.SetDefault("StatusListen", "")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.CacheTTL.DurationValue() == 0 {
		g.CacheTTL = Duration(60 * time.Second)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.MaxConnections == 0 {
		g.MaxConnections = 16
	}
}

// normalizeOrigin 保证 Origin 以 "/" 结尾，重定向前缀判断依赖这一点。
func normalizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" || strings.HasSuffix(origin, "/") {
		return origin
	}
	return origin + "/"
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
