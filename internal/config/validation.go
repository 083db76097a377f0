package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedLogLevels = map[string]struct{}{
	"trace": {},
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
	"fatal": {},
	"panic": {},
}

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if level := strings.ToLower(strings.TrimSpace(g.LogLevel)); level != "" {
		if _, ok := supportedLogLevels[level]; !ok {
			return newFieldError("Global.LogLevel", "仅支持 trace/debug/info/warn/error/fatal/panic")
		}
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.CacheTTL.DurationValue() <= 0 {
		return newFieldError("Global.CacheTTL", "必须大于 0")
	}
	if g.SweepInterval.DurationValue() <= 0 {
		return newFieldError("Global.SweepInterval", "必须大于 0")
	}
	if g.SizeThreshold <= 0 {
		return newFieldError("Global.SizeThreshold", "必须大于 0")
	}
	if g.ProbeTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ProbeTimeout", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.DownloadRateLimit < 0 {
		return newFieldError("Global.DownloadRateLimit", "不能为负数")
	}
	if g.PublicBaseURL != "" {
		if err := validateHTTPURL(g.PublicBaseURL); err != nil {
			return fmt.Errorf("Global.PublicBaseURL: %w", err)
		}
	}

	r := c.Resolver
	if r.ServiceURL == "" {
		return newFieldError(resolverField("ServiceURL"), "不能为空，可通过 SERVICE_API_URL 提供")
	}
	if err := validateHTTPURL(r.ServiceURL); err != nil {
		return fmt.Errorf("%s: %w", resolverField("ServiceURL"), err)
	}
	if r.APIPath != "" && strings.ContainsAny(r.APIPath, " ?#") {
		return newFieldError(resolverField("APIPath"), "不允许包含空格、查询参数或片段")
	}
	if r.Timeout.DurationValue() <= 0 {
		return newFieldError(resolverField("Timeout"), "必须大于 0")
	}

	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
