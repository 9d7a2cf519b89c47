package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置挂载。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("LogLevel", "无法识别的日志级别")
	}
	if g.CacheTTL.DurationValue() <= 0 {
		return newFieldError("CacheTTL", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("UpstreamTimeout", "必须大于 0")
	}
	if g.MaxRedirects < 0 {
		return newFieldError("MaxRedirects", "不能为负数")
	}
	if g.MaxConnections <= 0 {
		return newFieldError("MaxConnections", "必须大于 0")
	}
	if g.LogMaxSize < 0 || g.LogMaxBackups < 0 {
		return newFieldError("LogMaxSize/LogMaxBackups", "不能为负数")
	}

	if err := validateOrigin(c.Mount.Origin); err != nil {
		return fmt.Errorf("Origin: %w", err)
	}
	if strings.TrimSpace(c.Mount.MountPoint) == "" {
		return newFieldError("MountPoint", "不能为空")
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少远端地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，远端: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("远端缺少 Host: %s", raw)
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("远端地址不应包含 query/fragment: %s", raw)
	}
	return nil
}

// OriginURL 返回解析后的远端地址（假定 Validate 已经通过）。
func (c *Config) OriginURL() *url.URL {
	parsed, _ := url.Parse(c.Mount.Origin)
	return parsed
}
